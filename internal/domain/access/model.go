// Package access implements the family access-control core: the invitation
// lifecycle, the permission model and resolver, the membership index
// synchronizer, and the request gate that fronts protected operations.
package access

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an access record. revoked and expired are
// terminal; a new invitation is required to re-establish access.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// AccessLevel is a coarse preset the permission booleans should be consistent
// with. The booleans are authoritative for checks; the level is advisory and
// drives the default boolean set when no explicit permissions are supplied.
type AccessLevel string

const (
	LevelFull          AccessLevel = "full"
	LevelLimited       AccessLevel = "limited"
	LevelEmergencyOnly AccessLevel = "emergency_only"
)

// ValidLevel reports whether l is a known access level.
func ValidLevel(l AccessLevel) bool {
	switch l {
	case LevelFull, LevelLimited, LevelEmergencyOnly:
		return true
	}
	return false
}

// Capability names a single permission flag.
type Capability string

const (
	CapView                 Capability = "view"
	CapCreate               Capability = "create"
	CapEdit                 Capability = "edit"
	CapDelete               Capability = "delete"
	CapClaimResponsibility  Capability = "claim_responsibility"
	CapManageFamily         Capability = "manage_family"
	CapViewMedicalDetails   Capability = "view_medical_details"
	CapReceiveNotifications Capability = "receive_notifications"
)

// Capabilities lists every known capability, in a stable order.
var Capabilities = []Capability{
	CapView, CapCreate, CapEdit, CapDelete,
	CapClaimResponsibility, CapManageFamily,
	CapViewMedicalDetails, CapReceiveNotifications,
}

// ParseCapability maps a wire name to a Capability.
func ParseCapability(s string) (Capability, bool) {
	for _, c := range Capabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Permissions is the closed set of permission flags on a relationship.
// A fixed struct rather than a map, so adding a capability is a
// compile-time-visible change everywhere it matters.
type Permissions struct {
	CanView                 bool `db:"can_view" json:"can_view"`
	CanCreate               bool `db:"can_create" json:"can_create"`
	CanEdit                 bool `db:"can_edit" json:"can_edit"`
	CanDelete               bool `db:"can_delete" json:"can_delete"`
	CanClaimResponsibility  bool `db:"can_claim_responsibility" json:"can_claim_responsibility"`
	CanManageFamily         bool `db:"can_manage_family" json:"can_manage_family"`
	CanViewMedicalDetails   bool `db:"can_view_medical_details" json:"can_view_medical_details"`
	CanReceiveNotifications bool `db:"can_receive_notifications" json:"can_receive_notifications"`
}

// Has reports whether the named capability is granted.
func (p Permissions) Has(c Capability) bool {
	switch c {
	case CapView:
		return p.CanView
	case CapCreate:
		return p.CanCreate
	case CapEdit:
		return p.CanEdit
	case CapDelete:
		return p.CanDelete
	case CapClaimResponsibility:
		return p.CanClaimResponsibility
	case CapManageFamily:
		return p.CanManageFamily
	case CapViewMedicalDetails:
		return p.CanViewMedicalDetails
	case CapReceiveNotifications:
		return p.CanReceiveNotifications
	}
	return false
}

// IsZero reports whether no capability is granted.
func (p Permissions) IsZero() bool {
	return p == Permissions{}
}

// PresetFor returns the permission booleans matching an access level.
func PresetFor(level AccessLevel) Permissions {
	switch level {
	case LevelFull:
		return Permissions{
			CanView: true, CanCreate: true, CanEdit: true, CanDelete: true,
			CanClaimResponsibility: true, CanManageFamily: false,
			CanViewMedicalDetails: true, CanReceiveNotifications: true,
		}
	case LevelLimited:
		return Permissions{
			CanView:                 true,
			CanReceiveNotifications: true,
		}
	case LevelEmergencyOnly:
		return Permissions{
			CanView: true,
		}
	}
	return Permissions{}
}

// AccessRecord is the single source of truth for one directed relationship
// from a patient to a family member. The membership index on identity rows
// is derived from these records and is never authoritative.
type AccessRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	MemberID    *uuid.UUID `db:"member_id" json:"member_id,omitempty"`
	MemberEmail string     `db:"member_email" json:"member_email"`
	MemberName  string     `db:"member_name" json:"member_name"`

	Permissions Permissions `json:"permissions"`
	AccessLevel AccessLevel `db:"access_level" json:"access_level"`
	// EventTypesAllowed restricts limited access to specific record
	// categories. Empty means no category restriction.
	EventTypesAllowed []string `db:"event_types_allowed" json:"event_types_allowed,omitempty"`

	// Emergency access is independent of the normal status; it is checked on
	// every read, not only by the sweep.
	EmergencyAccess    bool       `db:"emergency_access" json:"emergency_access"`
	EmergencyExpiresAt *time.Time `db:"emergency_expires_at" json:"emergency_expires_at,omitempty"`

	InvitationToken     *string    `db:"invitation_token" json:"-"`
	InvitationExpiresAt *time.Time `db:"invitation_expires_at" json:"invitation_expires_at,omitempty"`

	Status Status `db:"status" json:"status"`

	InvitedAt        time.Time  `db:"invited_at" json:"invited_at"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	LastAccessAt     *time.Time `db:"last_access_at" json:"last_access_at,omitempty"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        *uuid.UUID `db:"revoked_by" json:"revoked_by,omitempty"`
	RevocationReason *string    `db:"revocation_reason" json:"revocation_reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Live reports whether the record occupies the one live slot per
// (patient, email) pair.
func (r *AccessRecord) Live() bool {
	return r.Status == StatusPending || r.Status == StatusActive
}

// Terminal reports whether the record has no outgoing transitions.
func (r *AccessRecord) Terminal() bool {
	return r.Status == StatusRevoked || r.Status == StatusExpired
}

// EmergencyActive reports whether the emergency override applies at the given
// instant.
func (r *AccessRecord) EmergencyActive(now time.Time) bool {
	if !r.EmergencyAccess {
		return false
	}
	if r.EmergencyExpiresAt == nil {
		return false
	}
	return now.Before(*r.EmergencyExpiresAt)
}

// InvitationExpired reports whether a pending invitation is past its expiry.
func (r *AccessRecord) InvitationExpired(now time.Time) bool {
	if r.Status != StatusPending || r.InvitationExpiresAt == nil {
		return false
	}
	return !now.Before(*r.InvitationExpiresAt)
}

// AllowsCategory reports whether data in the given category is visible under
// this record's event-type allow-list. Only limited-level records restrict
// categories; an empty allow-list means unrestricted.
func (r *AccessRecord) AllowsCategory(category string) bool {
	if r.AccessLevel != LevelLimited || len(r.EventTypesAllowed) == 0 {
		return true
	}
	for _, t := range r.EventTypesAllowed {
		if t == category {
			return true
		}
	}
	return false
}
