package auditlog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("audit entry not found")

// Repository is the append-only persistence contract. There is no update or
// delete: the audit trail is immutable by construction.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error)
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
