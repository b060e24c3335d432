package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Resolver reason codes. Stable wire values: clients and the audit trail
// both key off them.
const (
	ReasonSelf                  = "self"
	ReasonGranted               = "granted"
	ReasonEmergencyOverride     = "emergency_override"
	ReasonNoRelationship        = "no_relationship"
	ReasonCapabilityDenied      = "capability_denied"
	ReasonCategoryNotAllowed    = "category_not_allowed"
	ReasonRelationshipSuspended = "relationship_suspended"
	ReasonEmergencyExpired      = "emergency_expired"
)

// CategoryCheck decides whether the requested data falls inside a limited
// record's event-type allow-list. The caller knows what is being read; the
// resolver only supplies the list. A nil check means no category applies.
type CategoryCheck func(rec *AccessRecord) bool

// Decision is the outcome of one permission resolution. Record is the
// relationship the decision was based on; nil for self-access and for
// denials with no relationship.
type Decision struct {
	Allow  bool
	Reason string
	Record *AccessRecord
}

// Resolver answers "may requester do X to patient's data" from the record
// store directly. It never consults the membership index: the index is a
// navigation cache, not an authority, and a stale entry must not change an
// authorization outcome.
type Resolver struct {
	repo  Repository
	audit AuditRecorder
	now   func() time.Time
	log   zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(repo Repository, audit AuditRecorder, log zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, audit: audit, now: time.Now, log: log}
}

// WithClock overrides the resolver clock. Test hook.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// emergencyAllows lists what an emergency override may do: viewing only.
// Mutation and family management are never unlocked by an emergency grant.
func emergencyAllows(cap Capability) bool {
	return cap == CapView || cap == CapViewMedicalDetails
}

// Resolve runs the decision algorithm. Order matters: self-access first,
// then the direct record lookup, then the emergency override, then the
// permission booleans, then the category allow-list. Denials and
// emergency-override allows are audited; ordinary allows are not, to keep
// the audit log focused on the events reviewers look for.
func (r *Resolver) Resolve(ctx context.Context, requesterID, patientID uuid.UUID, cap Capability, categoryCheck CategoryCheck) (Decision, error) {
	if requesterID == patientID {
		return Decision{Allow: true, Reason: ReasonSelf}, nil
	}

	rec, err := r.repo.FindByPatientAndMember(ctx, patientID, requesterID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonNoRelationship}), nil
		}
		return Decision{}, fmt.Errorf("resolve relationship: %w", err)
	}

	now := r.now().UTC()

	if rec.Status == StatusSuspended {
		if rec.EmergencyActive(now) && emergencyAllows(cap) {
			return r.allowEmergency(ctx, requesterID, patientID, cap, rec), nil
		}
		return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonRelationshipSuspended, Record: rec}), nil
	}

	if rec.AccessLevel == LevelEmergencyOnly {
		// Emergency-only members have no standing access; everything hangs
		// off the active grant, re-checked on every call.
		if !rec.EmergencyAccess {
			return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonCapabilityDenied, Record: rec}), nil
		}
		if !rec.EmergencyActive(now) {
			return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonEmergencyExpired, Record: rec}), nil
		}
		if !emergencyAllows(cap) {
			return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonCapabilityDenied, Record: rec}), nil
		}
		return r.allowEmergency(ctx, requesterID, patientID, cap, rec), nil
	}

	if !rec.Permissions.Has(cap) {
		if rec.EmergencyActive(now) && emergencyAllows(cap) {
			return r.allowEmergency(ctx, requesterID, patientID, cap, rec), nil
		}
		return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonCapabilityDenied, Record: rec}), nil
	}

	if categoryCheck != nil && !categoryCheck(rec) {
		return r.deny(ctx, requesterID, patientID, cap, Decision{Reason: ReasonCategoryNotAllowed, Record: rec}), nil
	}

	return Decision{Allow: true, Reason: ReasonGranted, Record: rec}, nil
}

func (r *Resolver) deny(ctx context.Context, requesterID, patientID uuid.UUID, cap Capability, d Decision) Decision {
	d.Allow = false
	r.writeAudit(ctx, AuditCheckDenied, requesterID, patientID, cap, d)
	return d
}

func (r *Resolver) allowEmergency(ctx context.Context, requesterID, patientID uuid.UUID, cap Capability, rec *AccessRecord) Decision {
	d := Decision{Allow: true, Reason: ReasonEmergencyOverride, Record: rec}
	r.writeAudit(ctx, AuditEmergencyAllow, requesterID, patientID, cap, d)
	return d
}

func (r *Resolver) writeAudit(ctx context.Context, action string, requesterID, patientID uuid.UUID, cap Capability, d Decision) {
	if r.audit == nil {
		return
	}
	e := AuditEntry{
		Action:    action,
		PatientID: patientID,
		ActorID:   requesterID,
		Reason:    d.Reason,
		Details: map[string]any{
			"capability": string(cap),
		},
	}
	if d.Record != nil {
		id := d.Record.ID
		e.RecordID = &id
	}
	if err := r.audit.Record(ctx, e); err != nil {
		r.log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}
