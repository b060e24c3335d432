package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MembershipIndex is the denormalized back-reference structure stored on
// identity rows: which patients a member is linked to, which members a
// patient has granted access to, and the member's primary patient when
// exactly one relationship exists. It is a cache of the record store's
// active relationships and is always rebuildable from it.
type MembershipIndex struct {
	LinkedPatientIDs []uuid.UUID `json:"linked_patient_ids"`
	FamilyMemberIDs  []uuid.UUID `json:"family_member_ids"`
	PrimaryPatientID *uuid.UUID  `json:"primary_patient_id,omitempty"`
}

// IndexStore persists membership indexes on identity rows. The identity
// repository provides the implementation; it is wired in through an adapter
// so this package does not depend on the identity package.
type IndexStore interface {
	GetMembership(ctx context.Context, identityID uuid.UUID) (*MembershipIndex, error)
	PutMembership(ctx context.Context, identityID uuid.UUID, idx *MembershipIndex) error
}

// DriftReport is the read-only result of a consistency audit for one
// identity.
type DriftReport struct {
	IdentityID       uuid.UUID   `json:"identity_id"`
	Consistent       bool        `json:"consistent"`
	MissingPatients  []uuid.UUID `json:"missing_patients,omitempty"`
	StalePatients    []uuid.UUID `json:"stale_patients,omitempty"`
	MissingMembers   []uuid.UUID `json:"missing_members,omitempty"`
	StaleMembers     []uuid.UUID `json:"stale_members,omitempty"`
	PrimaryExpected  *uuid.UUID  `json:"primary_expected,omitempty"`
	PrimaryStored    *uuid.UUID  `json:"primary_stored,omitempty"`
	PrimaryMatches   bool        `json:"primary_matches"`
}

// Synchronizer keeps the membership indexes in step with the record store's
// active relationships. Its incremental updates are best-effort: the record
// store is ground truth, readers tolerate a stale index, and Rebuild repairs
// any divergence from scratch.
type Synchronizer struct {
	store   IndexStore
	records Repository
	log     zerolog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(store IndexStore, records Repository, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{store: store, records: records, log: log}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// applyPrimary sets PrimaryPatientID when exactly one linked patient exists,
// clears it when none remain, and leaves it alone otherwise.
func applyPrimary(idx *MembershipIndex) {
	switch len(idx.LinkedPatientIDs) {
	case 0:
		idx.PrimaryPatientID = nil
	case 1:
		p := idx.LinkedPatientIDs[0]
		idx.PrimaryPatientID = &p
	}
}

// OnActivated adds the reciprocal references for a newly active record.
// Additions are idempotent: re-activating an already indexed pair is a no-op.
func (s *Synchronizer) OnActivated(ctx context.Context, rec *AccessRecord) error {
	if rec.MemberID == nil {
		return fmt.Errorf("activated record %s has no member id", rec.ID)
	}
	memberID := *rec.MemberID

	memberIdx, err := s.store.GetMembership(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load member index: %w", err)
	}
	if !containsID(memberIdx.LinkedPatientIDs, rec.PatientID) {
		memberIdx.LinkedPatientIDs = append(memberIdx.LinkedPatientIDs, rec.PatientID)
	}
	applyPrimary(memberIdx)
	if err := s.store.PutMembership(ctx, memberID, memberIdx); err != nil {
		return fmt.Errorf("store member index: %w", err)
	}

	patientIdx, err := s.store.GetMembership(ctx, rec.PatientID)
	if err != nil {
		return fmt.Errorf("load patient index: %w", err)
	}
	if !containsID(patientIdx.FamilyMemberIDs, memberID) {
		patientIdx.FamilyMemberIDs = append(patientIdx.FamilyMemberIDs, memberID)
	}
	if err := s.store.PutMembership(ctx, rec.PatientID, patientIdx); err != nil {
		return fmt.Errorf("store patient index: %w", err)
	}

	return nil
}

// OnDeactivated removes the reciprocal references when a record leaves the
// active state. Removal is dedup-safe: a missing entry is not an error.
func (s *Synchronizer) OnDeactivated(ctx context.Context, rec *AccessRecord) error {
	if rec.MemberID == nil {
		// A pending invitation never made it into the index.
		return nil
	}
	memberID := *rec.MemberID

	memberIdx, err := s.store.GetMembership(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load member index: %w", err)
	}
	memberIdx.LinkedPatientIDs = removeID(memberIdx.LinkedPatientIDs, rec.PatientID)
	applyPrimary(memberIdx)
	if err := s.store.PutMembership(ctx, memberID, memberIdx); err != nil {
		return fmt.Errorf("store member index: %w", err)
	}

	patientIdx, err := s.store.GetMembership(ctx, rec.PatientID)
	if err != nil {
		return fmt.Errorf("load patient index: %w", err)
	}
	patientIdx.FamilyMemberIDs = removeID(patientIdx.FamilyMemberIDs, memberID)
	if err := s.store.PutMembership(ctx, rec.PatientID, patientIdx); err != nil {
		return fmt.Errorf("store patient index: %w", err)
	}

	return nil
}

// compute derives the index for one identity purely from the record store.
func (s *Synchronizer) compute(ctx context.Context, identityID uuid.UUID) (*MembershipIndex, error) {
	idx := &MembershipIndex{}

	asMember, err := s.records.ListActiveByMember(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list active by member: %w", err)
	}
	for _, rec := range asMember {
		if !containsID(idx.LinkedPatientIDs, rec.PatientID) {
			idx.LinkedPatientIDs = append(idx.LinkedPatientIDs, rec.PatientID)
		}
	}

	asPatient, err := s.records.ListActiveByPatient(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list active by patient: %w", err)
	}
	for _, rec := range asPatient {
		if rec.MemberID != nil && !containsID(idx.FamilyMemberIDs, *rec.MemberID) {
			idx.FamilyMemberIDs = append(idx.FamilyMemberIDs, *rec.MemberID)
		}
	}

	applyPrimary(idx)
	return idx, nil
}

// Rebuild recomputes an identity's membership index from the record store
// and persists it, replacing whatever was there. This is the repair path for
// drift between the store and the incrementally maintained index.
func (s *Synchronizer) Rebuild(ctx context.Context, identityID uuid.UUID) (*MembershipIndex, error) {
	idx, err := s.compute(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutMembership(ctx, identityID, idx); err != nil {
		return nil, fmt.Errorf("store rebuilt index: %w", err)
	}
	s.log.Info().Str("identity_id", identityID.String()).
		Int("linked_patients", len(idx.LinkedPatientIDs)).
		Int("family_members", len(idx.FamilyMemberIDs)).
		Msg("membership index rebuilt")
	return idx, nil
}

// AuditConsistency compares the stored index against a fresh computation and
// reports any divergence. Read-only: it never mutates either side.
func (s *Synchronizer) AuditConsistency(ctx context.Context, identityID uuid.UUID) (*DriftReport, error) {
	stored, err := s.store.GetMembership(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load stored index: %w", err)
	}
	expected, err := s.compute(ctx, identityID)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		IdentityID:      identityID,
		PrimaryExpected: expected.PrimaryPatientID,
		PrimaryStored:   stored.PrimaryPatientID,
	}

	for _, id := range expected.LinkedPatientIDs {
		if !containsID(stored.LinkedPatientIDs, id) {
			report.MissingPatients = append(report.MissingPatients, id)
		}
	}
	for _, id := range stored.LinkedPatientIDs {
		if !containsID(expected.LinkedPatientIDs, id) {
			report.StalePatients = append(report.StalePatients, id)
		}
	}
	for _, id := range expected.FamilyMemberIDs {
		if !containsID(stored.FamilyMemberIDs, id) {
			report.MissingMembers = append(report.MissingMembers, id)
		}
	}
	for _, id := range stored.FamilyMemberIDs {
		if !containsID(expected.FamilyMemberIDs, id) {
			report.StaleMembers = append(report.StaleMembers, id)
		}
	}

	switch {
	case expected.PrimaryPatientID == nil && stored.PrimaryPatientID == nil:
		report.PrimaryMatches = true
	case expected.PrimaryPatientID != nil && stored.PrimaryPatientID != nil:
		report.PrimaryMatches = *expected.PrimaryPatientID == *stored.PrimaryPatientID
	}
	// When more than one patient is linked, the primary is whichever was set
	// incrementally; any stored value among the linked patients is fine.
	if !report.PrimaryMatches && len(expected.LinkedPatientIDs) > 1 &&
		stored.PrimaryPatientID != nil && containsID(expected.LinkedPatientIDs, *stored.PrimaryPatientID) {
		report.PrimaryMatches = true
	}

	report.Consistent = len(report.MissingPatients) == 0 && len(report.StalePatients) == 0 &&
		len(report.MissingMembers) == 0 && len(report.StaleMembers) == 0 && report.PrimaryMatches

	if !report.Consistent {
		s.log.Warn().Str("identity_id", identityID.String()).
			Int("missing_patients", len(report.MissingPatients)).
			Int("stale_patients", len(report.StalePatients)).
			Int("missing_members", len(report.MissingMembers)).
			Int("stale_members", len(report.StaleMembers)).
			Msg("membership index drift detected")
	}
	return report, nil
}
