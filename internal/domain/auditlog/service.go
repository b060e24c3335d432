package auditlog

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one entry. IDs equal to uuid.Nil are stored as NULL so
// system-initiated events (the expiry sweep) carry no actor.
func (s *Service) Record(ctx context.Context, action string, patientID, actorID, recordID uuid.UUID, reason string, details map[string]any) (*Entry, error) {
	e := &Entry{
		ID:      uuid.New(),
		Action:  action,
		Reason:  reason,
		Details: details,
	}
	if patientID != uuid.Nil {
		pid := patientID
		e.PatientID = &pid
	}
	if actorID != uuid.Nil {
		aid := actorID
		e.ActorID = &aid
	}
	if recordID != uuid.Nil {
		rid := recordID
		e.RecordID = &rid
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByActor(ctx, actorID, limit, offset)
}
