package access

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for access records.
//
// Status transitions are compare-and-set: each Mark* method succeeds only
// when the record is still in the expected prior status, and returns
// ErrConcurrentModification otherwise. This linearizes concurrent
// accept/revoke attempts on the same record without multi-row transactions.
//
// Implementations must never order result sets by optional columns such as
// last_access_at: freshly created rows legitimately lack them, and ordering
// by an absent field silently empties result sets in document stores. Every
// ordered query sorts by created_at, which is guaranteed present.
type Repository interface {
	Create(ctx context.Context, rec *AccessRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*AccessRecord, error)
	GetByToken(ctx context.Context, token string) (*AccessRecord, error)

	// FindLiveByPatientAndEmail returns the pending or active record for the
	// (patient, email) pair, or ErrRecordNotFound. Email matching is
	// case-insensitive.
	FindLiveByPatientAndEmail(ctx context.Context, patientID uuid.UUID, email string) (*AccessRecord, error)

	// FindByPatientAndMember returns the most recent non-terminal record for
	// the pair (active or suspended), or ErrRecordNotFound.
	FindByPatientAndMember(ctx context.Context, patientID, memberID uuid.UUID) (*AccessRecord, error)

	ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessRecord, error)
	ListActiveByMember(ctx context.Context, memberID uuid.UUID) ([]*AccessRecord, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessRecord, int, error)

	// Update persists mutable relationship fields (permissions, access
	// level, event types, member name, emergency grant fields).
	Update(ctx context.Context, rec *AccessRecord) error

	// MarkAccepted moves pending -> active, binds the member identity, and
	// clears the invitation token.
	MarkAccepted(ctx context.Context, id, memberID uuid.UUID, acceptedAt time.Time) error

	// MarkRevoked moves active|suspended|pending -> revoked and records the
	// audit fields. Revoking a pending record cancels the invitation.
	MarkRevoked(ctx context.Context, id, revokedBy uuid.UUID, reason string, revokedAt time.Time) error

	// MarkSuspended moves active -> suspended.
	MarkSuspended(ctx context.Context, id uuid.UUID) error

	// MarkReactivated moves suspended -> active.
	MarkReactivated(ctx context.Context, id uuid.UUID) error

	// MarkExpired moves the record from the expected status to expired and
	// clears the invitation token.
	MarkExpired(ctx context.Context, id uuid.UUID, from Status) error

	// ClearEmergency drops the emergency flag and expiry without touching
	// the record status.
	ClearEmergency(ctx context.Context, id uuid.UUID) error

	// TouchLastAccess records the access time. Best-effort; failures do not
	// affect the gated operation.
	TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListExpiredPending returns pending records whose invitation expiry has
	// passed.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*AccessRecord, error)

	// ListExpiredEmergency returns active records carrying an emergency
	// grant whose expiry has passed.
	ListExpiredEmergency(ctx context.Context, now time.Time, limit int) ([]*AccessRecord, error)
}
