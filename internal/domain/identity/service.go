package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrValidation indicates a malformed registration or profile input.
var ErrValidation = errors.New("validation error")

// Service implements identity registration and profile management.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates an identity. Email is normalized to lower case and must
// be unique across the system.
func (s *Service) Register(ctx context.Context, email, name string, role Role) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	ident := &Identity{
		ID:    uuid.New(),
		Email: email,
		Name:  name,
		Role:  role,
	}
	if err := s.repo.Create(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.repo.GetByEmail(ctx, email)
}

// UpdateProfile changes the display name. Email and role are immutable.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := s.repo.UpdateProfile(ctx, id, name); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Membership returns the stored membership index fields for an identity.
func (s *Service) Membership(ctx context.Context, id uuid.UUID) (*Membership, error) {
	return s.repo.GetMembership(ctx, id)
}

// PutMembership replaces the stored membership index fields. Called only by
// the access synchronizer through its adapter.
func (s *Service) PutMembership(ctx context.Context, id uuid.UUID, m *Membership) error {
	return s.repo.PutMembership(ctx, id, m)
}
