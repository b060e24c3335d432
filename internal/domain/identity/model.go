// Package identity manages the people known to the system: patients and the
// family members they share access with. Identity rows also carry the
// denormalized membership index maintained by the access domain.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role tags what an identity primarily is. A patient may still be someone
// else's family member; the tag drives defaults, not authorization.
type Role string

const (
	RolePatient      Role = "patient"
	RoleFamilyMember Role = "family_member"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RolePatient || r == RoleFamilyMember
}

// Identity maps to the identities table.
type Identity struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Email string    `db:"email" json:"email"`
	Name  string    `db:"name" json:"name"`
	Role  Role      `db:"role" json:"role"`

	// Membership index fields, derived from access records. Mutated only by
	// the access synchronizer; never authoritative for authorization.
	LinkedPatientIDs []uuid.UUID `db:"linked_patient_ids" json:"linked_patient_ids,omitempty"`
	FamilyMemberIDs  []uuid.UUID `db:"family_member_ids" json:"family_member_ids,omitempty"`
	PrimaryPatientID *uuid.UUID  `db:"primary_patient_id" json:"primary_patient_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
