// Package auditlog persists the append-only trail of family-access events:
// lifecycle transitions, denied permission checks, and emergency-override
// reads. Entries are never updated or deleted.
package auditlog

import (
	"time"

	"github.com/google/uuid"
)

// Entry maps to the audit_log table.
type Entry struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Action    string         `db:"action" json:"action"`
	PatientID *uuid.UUID     `db:"patient_id" json:"patient_id,omitempty"`
	ActorID   *uuid.UUID     `db:"actor_id" json:"actor_id,omitempty"`
	RecordID  *uuid.UUID     `db:"record_id" json:"record_id,omitempty"`
	Reason    string         `db:"reason" json:"reason,omitempty"`
	Details   map[string]any `db:"details" json:"details,omitempty"`
	RecordedAt time.Time     `db:"recorded_at" json:"recorded_at"`
}
