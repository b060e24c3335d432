package access

import "errors"

// Sentinel errors for the access-control core. Handlers map these to stable
// HTTP status codes and machine-readable reason codes; services wrap them
// with context via fmt.Errorf("...: %w", err).
var (
	// ErrNotAuthorized indicates the actor lacks the required capability.
	// Authorization always fails closed; this is never downgraded to an
	// empty result.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrDuplicateRelationship indicates a live (pending or active) record
	// already exists for the (patient, email) pair.
	ErrDuplicateRelationship = errors.New("duplicate relationship")

	// ErrSelfInvitation indicates a patient attempted to invite themselves.
	ErrSelfInvitation = errors.New("self invitation")

	// ErrTokenNotFound indicates no record matches the invitation token.
	ErrTokenNotFound = errors.New("invitation token not found")

	// ErrTokenExpired indicates the invitation is past its expiry. The
	// record is transitioned to expired as a side effect.
	ErrTokenExpired = errors.New("invitation token expired")

	// ErrAlreadyAccepted indicates the invitation was already used.
	ErrAlreadyAccepted = errors.New("invitation already accepted")

	// ErrRecordNotFound indicates the access record does not exist.
	ErrRecordNotFound = errors.New("access record not found")

	// ErrIndexDrift indicates a detected inconsistency between the access
	// record store and the membership index. Recoverable via Rebuild;
	// logged, never fatal, and never blocks an authorized operation.
	ErrIndexDrift = errors.New("membership index drift")

	// ErrConcurrentModification indicates a compare-and-set race on a status
	// transition. Callers should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrValidation indicates a malformed permission or access-level
	// combination.
	ErrValidation = errors.New("validation error")
)

// ReasonCode returns the stable wire code for an error kind, used in denial
// responses so clients can distinguish "no permission" from "invitation
// expired" from "already used".
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrDuplicateRelationship):
		return "duplicate_relationship"
	case errors.Is(err, ErrSelfInvitation):
		return "self_invitation"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, ErrIndexDrift):
		return "index_drift"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	}
	return "internal_error"
}
