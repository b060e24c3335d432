package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("identity not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Membership is the index sub-structure stored on an identity row.
type Membership struct {
	LinkedPatientIDs []uuid.UUID
	FamilyMemberIDs  []uuid.UUID
	PrimaryPatientID *uuid.UUID
}

// Repository is the persistence contract for identities.
type Repository interface {
	Create(ctx context.Context, ident *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name string) error

	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	PutMembership(ctx context.Context, id uuid.UUID, m *Membership) error
}
