package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Audit action names recorded by the lifecycle manager and resolver.
const (
	AuditInviteCreated     = "invite_created"
	AuditInviteAccepted    = "invite_accepted"
	AuditPermissionChanged = "permission_changed"
	AuditAccessRevoked     = "access_revoked"
	AuditAccessSuspended   = "access_suspended"
	AuditAccessReactivated = "access_reactivated"
	AuditEmergencyGranted  = "emergency_granted"
	AuditExpirySweep       = "expiry_sweep"
	AuditCheckDenied       = "check_denied"
	AuditEmergencyAllow    = "emergency_allow"
)

// AuditEntry is one append-only audit event emitted by this package. The
// auditlog domain persists it; an adapter bridges the two in main.
type AuditEntry struct {
	Action    string
	PatientID uuid.UUID
	ActorID   uuid.UUID
	RecordID  *uuid.UUID
	Reason    string
	Details   map[string]any
}

// AuditRecorder persists audit entries. Failures are logged by the caller
// and never fail the operation being audited.
type AuditRecorder interface {
	Record(ctx context.Context, e AuditEntry) error
}

// Person is the slice of an identity this package needs: enough to detect
// self-invitations and address notifications.
type Person struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// Directory resolves identities. The identity domain provides the
// implementation through a main.go adapter.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*Person, error)
}

// Notifier dispatches templated notifications. Best-effort from this
// package's perspective.
type Notifier interface {
	Notify(ctx context.Context, templateID string, data map[string]string, recipient string) error
}

// TokenSource mints opaque invitation tokens with their expiry.
type TokenSource interface {
	Generate() (token string, expiresAt time.Time, err error)
}

// TxRunner executes fn atomically when the underlying store supports
// transactions. The db package supplies the Postgres implementation; stores
// without transactions leave it unset.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service is the invitation lifecycle manager. It owns every status
// transition of an access record; nothing else writes to the record store.
type Service struct {
	repo   Repository
	sync   *Synchronizer
	dir    Directory
	audit  AuditRecorder
	notify Notifier
	tokens TokenSource

	emergencyMax time.Duration
	txRun        TxRunner
	now          func() time.Time
	log          zerolog.Logger
}

// NewService creates the lifecycle manager. emergencyMax caps the duration of
// emergency grants; now is injectable for tests.
func NewService(repo Repository, sync *Synchronizer, dir Directory, audit AuditRecorder, notify Notifier, tokens TokenSource, emergencyMax time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		sync:         sync,
		dir:          dir,
		audit:        audit,
		notify:       notify,
		tokens:       tokens,
		emergencyMax: emergencyMax,
		now:          time.Now,
		log:          log,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTxRunner makes each record transition and its membership index update
// commit or roll back together. Without a runner the index may drift after a
// transition; Rebuild repairs it.
func (s *Service) WithTxRunner(run TxRunner) *Service {
	s.txRun = run
	return s
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txRun == nil {
		return fn(ctx)
	}
	return s.txRun(ctx, fn)
}

// syncActivated updates the membership index after an activating transition.
// Inside a transaction the failure aborts the transition; otherwise the
// record store stays authoritative and the drift is logged.
func (s *Service) syncActivated(ctx context.Context, rec *AccessRecord, op string) error {
	err := s.sync.OnActivated(ctx, rec)
	if err == nil {
		return nil
	}
	if s.txRun != nil {
		return fmt.Errorf("membership index update after %s: %w", op, err)
	}
	s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msgf("membership index update failed after %s", op)
	return nil
}

func (s *Service) syncDeactivated(ctx context.Context, rec *AccessRecord, op string) error {
	err := s.sync.OnDeactivated(ctx, rec)
	if err == nil {
		return nil
	}
	if s.txRun != nil {
		return fmt.Errorf("membership index update after %s: %w", op, err)
	}
	s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msgf("membership index update failed after %s", op)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, e AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("action", e.Action).Msg("audit write failed")
	}
}

func (s *Service) sendNotification(ctx context.Context, templateID string, data map[string]string, recipient string) {
	if s.notify == nil || recipient == "" {
		return
	}
	if err := s.notify.Notify(ctx, templateID, data, recipient); err != nil {
		s.log.Warn().Err(err).Str("template", templateID).Msg("notification send failed")
	}
}

// authorizeManage checks that the actor may manage the patient's family
// circle: the actor is the patient, or holds an active record granting
// can_manage_family. The patient's own authority is implicit and absolute.
func (s *Service) authorizeManage(ctx context.Context, actorID, patientID uuid.UUID) error {
	if actorID == patientID {
		return nil
	}
	rec, err := s.repo.FindByPatientAndMember(ctx, patientID, actorID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrNotAuthorized
		}
		return fmt.Errorf("authorize manage: %w", err)
	}
	if rec.Status != StatusActive || !rec.Permissions.CanManageFamily {
		return ErrNotAuthorized
	}
	return nil
}

// InviteInput carries the caller-supplied fields of a new invitation. When
// Permissions is nil the access level's preset booleans are applied.
type InviteInput struct {
	Email       string
	Name        string
	AccessLevel AccessLevel
	Permissions *Permissions
	EventTypes  []string
}

// Invite creates a pending invitation for the (patient, email) pair, mints
// its token, and sends the invitation email. At most one live record may
// exist per pair; the store's partial unique index backs the pre-check.
func (s *Service) Invite(ctx context.Context, actorID, patientID uuid.UUID, in InviteInput) (*AccessRecord, error) {
	if err := s.authorizeManage(ctx, actorID, patientID); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid invitee email", ErrValidation)
	}
	if !ValidLevel(in.AccessLevel) {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrValidation, in.AccessLevel)
	}

	patient, err := s.dir.Lookup(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	if strings.EqualFold(patient.Email, email) {
		return nil, ErrSelfInvitation
	}

	if existing, err := s.repo.FindLiveByPatientAndEmail(ctx, patientID, email); err == nil && existing != nil {
		return nil, ErrDuplicateRelationship
	} else if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("check live relationship: %w", err)
	}

	perms := PresetFor(in.AccessLevel)
	if in.Permissions != nil {
		perms = *in.Permissions
	}

	token, tokenExpiry, err := s.tokens.Generate()
	if err != nil {
		return nil, fmt.Errorf("mint invitation token: %w", err)
	}

	now := s.now().UTC()
	rec := &AccessRecord{
		ID:                  uuid.New(),
		PatientID:           patientID,
		MemberEmail:         email,
		MemberName:          strings.TrimSpace(in.Name),
		Permissions:         perms,
		AccessLevel:         in.AccessLevel,
		EventTypesAllowed:   in.EventTypes,
		InvitationToken:     &token,
		InvitationExpiresAt: &tokenExpiry,
		Status:              StatusPending,
		InvitedAt:           now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.recordAudit(ctx, AuditEntry{
		Action:    AuditInviteCreated,
		PatientID: patientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
		Details: map[string]any{
			"member_email": email,
			"access_level": string(in.AccessLevel),
		},
	})
	s.sendNotification(ctx, "family-invitation", map[string]string{
		"patient_name": patient.Name,
		"member_name":  rec.MemberName,
		"token":        token,
		"expires_at":   tokenExpiry.Format(time.RFC1123),
	}, email)

	return rec, nil
}

// Accept redeems an invitation token for the authenticated member, moving the
// record to active and binding the member identity. The transition is
// compare-and-set; a concurrent accept of the same token loses with
// ErrAlreadyAccepted. After the write the record is read back and verified
// before the membership index is updated.
func (s *Service) Accept(ctx context.Context, memberID uuid.UUID, token string) (*AccessRecord, error) {
	rec, err := s.repo.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		if rec.Status == StatusActive {
			return nil, ErrAlreadyAccepted
		}
		return nil, ErrTokenNotFound
	}
	if memberID == rec.PatientID {
		return nil, ErrSelfInvitation
	}

	now := s.now().UTC()
	if rec.InvitationExpired(now) {
		// Lazy expiry on the read path; the sweep would catch it later.
		if err := s.repo.MarkExpired(ctx, rec.ID, StatusPending); err != nil && !errors.Is(err, ErrConcurrentModification) {
			s.log.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("lazy invitation expiry failed")
		}
		return nil, ErrTokenExpired
	}

	var accepted *AccessRecord
	if err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkAccepted(ctx, rec.ID, memberID, now); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return ErrAlreadyAccepted
			}
			return fmt.Errorf("accept invitation: %w", err)
		}
		cur, err := s.repo.GetByID(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("read back accepted record: %w", err)
		}
		if cur.Status != StatusActive || cur.MemberID == nil || *cur.MemberID != memberID {
			return fmt.Errorf("accepted record %s failed verification: status=%s", rec.ID, cur.Status)
		}
		accepted = cur
		return s.syncActivated(ctx, cur, "accept")
	}); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, AuditEntry{
		Action:    AuditInviteAccepted,
		PatientID: accepted.PatientID,
		ActorID:   memberID,
		RecordID:  &accepted.ID,
	})
	if patient, err := s.dir.Lookup(ctx, accepted.PatientID); err == nil {
		s.sendNotification(ctx, "invitation-accepted", map[string]string{
			"patient_name": patient.Name,
			"member_name":  accepted.MemberName,
		}, patient.Email)
	}

	return accepted, nil
}

// UpdateInput carries the mutable fields of a relationship. Setting
// AccessLevel without explicit Permissions rewrites the booleans to the
// level's preset; explicit Permissions always win.
type UpdateInput struct {
	AccessLevel *AccessLevel
	Permissions *Permissions
	EventTypes  *[]string
	MemberName  *string
}

// UpdatePermissions changes the permission set of a non-terminal record.
func (s *Service) UpdatePermissions(ctx context.Context, actorID, recordID uuid.UUID, in UpdateInput) (*AccessRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, actorID, rec.PatientID); err != nil {
		return nil, err
	}
	if rec.Terminal() {
		return nil, fmt.Errorf("%w: record is %s", ErrValidation, rec.Status)
	}

	if in.AccessLevel != nil {
		if !ValidLevel(*in.AccessLevel) {
			return nil, fmt.Errorf("%w: unknown access level %q", ErrValidation, *in.AccessLevel)
		}
		rec.AccessLevel = *in.AccessLevel
		if in.Permissions == nil {
			rec.Permissions = PresetFor(*in.AccessLevel)
		}
	}
	if in.Permissions != nil {
		rec.Permissions = *in.Permissions
	}
	if in.EventTypes != nil {
		rec.EventTypesAllowed = *in.EventTypes
	}
	if in.MemberName != nil {
		rec.MemberName = strings.TrimSpace(*in.MemberName)
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update permissions: %w", err)
	}

	s.recordAudit(ctx, AuditEntry{
		Action:    AuditPermissionChanged,
		PatientID: rec.PatientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
		Details: map[string]any{
			"access_level": string(rec.AccessLevel),
		},
	})
	return rec, nil
}

// Revoke terminates a relationship or cancels a pending invitation. It is
// idempotent: revoking an already terminal record succeeds without effect.
// The member may revoke their own record (leaving the circle); anyone else
// needs manage authority.
func (s *Service) Revoke(ctx context.Context, actorID, recordID uuid.UUID, reason string) error {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Terminal() {
		return nil
	}

	selfLeave := rec.MemberID != nil && *rec.MemberID == actorID
	if !selfLeave {
		if err := s.authorizeManage(ctx, actorID, rec.PatientID); err != nil {
			return err
		}
	}

	wasActive := rec.Status == StatusActive || rec.Status == StatusSuspended
	if err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkRevoked(ctx, recordID, actorID, reason, s.now().UTC()); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				// Re-read: a racing revoke reaching the terminal state first is
				// still success for this caller.
				if cur, rerr := s.repo.GetByID(ctx, recordID); rerr == nil && cur.Terminal() {
					return nil
				}
			}
			return fmt.Errorf("revoke record: %w", err)
		}
		if !wasActive {
			return nil
		}
		return s.syncDeactivated(ctx, rec, "revoke")
	}); err != nil {
		return err
	}

	s.recordAudit(ctx, AuditEntry{
		Action:    AuditAccessRevoked,
		PatientID: rec.PatientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
		Reason:    reason,
	})
	if patient, err := s.dir.Lookup(ctx, rec.PatientID); err == nil {
		s.sendNotification(ctx, "access-revoked", map[string]string{
			"patient_name": patient.Name,
			"member_name":  rec.MemberName,
		}, rec.MemberEmail)
	}
	return nil
}

// Suspend pauses an active relationship without terminating it.
func (s *Service) Suspend(ctx context.Context, actorID, recordID uuid.UUID) (*AccessRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, actorID, rec.PatientID); err != nil {
		return nil, err
	}
	if err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkSuspended(ctx, recordID); err != nil {
			return fmt.Errorf("suspend record: %w", err)
		}
		return s.syncDeactivated(ctx, rec, "suspend")
	}); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, AuditEntry{
		Action:    AuditAccessSuspended,
		PatientID: rec.PatientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
	})
	return s.repo.GetByID(ctx, recordID)
}

// Reactivate resumes a suspended relationship.
func (s *Service) Reactivate(ctx context.Context, actorID, recordID uuid.UUID) (*AccessRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, actorID, rec.PatientID); err != nil {
		return nil, err
	}
	var cur *AccessRecord
	if err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkReactivated(ctx, recordID); err != nil {
			return fmt.Errorf("reactivate record: %w", err)
		}
		c, err := s.repo.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		cur = c
		return s.syncActivated(ctx, c, "reactivate")
	}); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, AuditEntry{
		Action:    AuditAccessReactivated,
		PatientID: rec.PatientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
	})
	return cur, nil
}

// GrantEmergencyAccess puts a time-boxed view-only override on the member's
// record. The duration is capped by the configured maximum. Only the patient
// or a manager may grant it; it applies even while the record is suspended.
// When no relationship exists yet, a member that resolves to a known identity
// gets a fresh active emergency_only record so the override does not wait on
// an invitation round-trip.
func (s *Service) GrantEmergencyAccess(ctx context.Context, actorID, patientID, memberID uuid.UUID, d time.Duration) (*AccessRecord, error) {
	if err := s.authorizeManage(ctx, actorID, patientID); err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: emergency duration must be positive", ErrValidation)
	}
	if memberID == patientID {
		return nil, fmt.Errorf("%w: patient already holds full access to their own data", ErrValidation)
	}
	if d > s.emergencyMax {
		d = s.emergencyMax
	}
	expiry := s.now().UTC().Add(d)

	rec, err := s.repo.FindByPatientAndMember(ctx, patientID, memberID)
	switch {
	case err == nil:
		rec.EmergencyAccess = true
		rec.EmergencyExpiresAt = &expiry
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("grant emergency access: %w", err)
		}
	case errors.Is(err, ErrRecordNotFound):
		rec, err = s.createEmergencyRecord(ctx, patientID, memberID, expiry)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.recordAudit(ctx, AuditEntry{
		Action:    AuditEmergencyGranted,
		PatientID: patientID,
		ActorID:   actorID,
		RecordID:  &rec.ID,
		Details: map[string]any{
			"expires_at": expiry.Format(time.RFC3339),
		},
	})
	if patient, err := s.dir.Lookup(ctx, patientID); err == nil {
		s.sendNotification(ctx, "emergency-access-granted", map[string]string{
			"patient_name": patient.Name,
			"member_name":  rec.MemberName,
			"expires_at":   expiry.Format(time.RFC1123),
		}, rec.MemberEmail)
	}
	return rec, nil
}

// createEmergencyRecord establishes the relationship directly in the active
// state with access_level emergency_only. The member must already be a known
// identity; an emergency grant never creates accounts. A live record for the
// member's email, such as an unredeemed invitation, still owns the
// (patient, email) slot and surfaces as ErrDuplicateRelationship.
func (s *Service) createEmergencyRecord(ctx context.Context, patientID, memberID uuid.UUID, expiry time.Time) (*AccessRecord, error) {
	member, err := s.dir.Lookup(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: member %s is not a known identity", ErrRecordNotFound, memberID)
	}

	mid := memberID
	exp := expiry
	rec := &AccessRecord{
		ID:                 uuid.New(),
		PatientID:          patientID,
		MemberID:           &mid,
		MemberEmail:        strings.ToLower(member.Email),
		MemberName:         member.Name,
		Permissions:        PresetFor(LevelEmergencyOnly),
		AccessLevel:        LevelEmergencyOnly,
		EmergencyAccess:    true,
		EmergencyExpiresAt: &exp,
		Status:             StatusActive,
		InvitedAt:          s.now().UTC(),
	}
	if err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rec); err != nil {
			return err
		}
		return s.syncActivated(ctx, rec, "emergency grant")
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	ExpiredInvitations int `json:"expired_invitations"`
	ClearedEmergency   int `json:"cleared_emergency"`
}

const sweepBatchSize = 100

// ExpireStale expires overdue pending invitations and clears lapsed
// emergency grants. Records with access_level emergency_only expire outright
// when their grant lapses; for everyone else only the override is cleared.
// Compare-and-set losses are skipped, not errors: someone else already moved
// the record.
func (s *Service) ExpireStale(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()

	for {
		stale, err := s.repo.ListExpiredPending(ctx, now, sweepBatchSize)
		if err != nil {
			return res, fmt.Errorf("list expired invitations: %w", err)
		}
		for _, rec := range stale {
			if err := s.repo.MarkExpired(ctx, rec.ID, StatusPending); err != nil {
				if errors.Is(err, ErrConcurrentModification) {
					continue
				}
				return res, fmt.Errorf("expire invitation %s: %w", rec.ID, err)
			}
			res.ExpiredInvitations++
		}
		if len(stale) < sweepBatchSize {
			break
		}
	}

	for {
		lapsed, err := s.repo.ListExpiredEmergency(ctx, now, sweepBatchSize)
		if err != nil {
			return res, fmt.Errorf("list lapsed emergency grants: %w", err)
		}
		for _, rec := range lapsed {
			if rec.AccessLevel == LevelEmergencyOnly {
				err := s.runTx(ctx, func(ctx context.Context) error {
					if err := s.repo.MarkExpired(ctx, rec.ID, rec.Status); err != nil {
						return err
					}
					return s.syncDeactivated(ctx, rec, "sweep expiry")
				})
				if err != nil {
					if errors.Is(err, ErrConcurrentModification) {
						continue
					}
					return res, fmt.Errorf("expire emergency-only record %s: %w", rec.ID, err)
				}
			} else {
				if err := s.repo.ClearEmergency(ctx, rec.ID); err != nil {
					return res, fmt.Errorf("clear emergency grant %s: %w", rec.ID, err)
				}
			}
			res.ClearedEmergency++
		}
		if len(lapsed) < sweepBatchSize {
			break
		}
	}

	if res.ExpiredInvitations > 0 || res.ClearedEmergency > 0 {
		s.recordAudit(ctx, AuditEntry{
			Action: AuditExpirySweep,
			Details: map[string]any{
				"expired_invitations": res.ExpiredInvitations,
				"cleared_emergency":   res.ClearedEmergency,
			},
		})
		s.log.Info().
			Int("expired_invitations", res.ExpiredInvitations).
			Int("cleared_emergency", res.ClearedEmergency).
			Msg("expiry sweep completed")
	}
	return res, nil
}

// ListForPatient returns every record of a patient's circle, any status,
// newest first, paged. Visible to the patient and manage-family holders.
func (s *Service) ListForPatient(ctx context.Context, actorID, patientID uuid.UUID, limit, offset int) ([]*AccessRecord, int, error) {
	if err := s.authorizeManage(ctx, actorID, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListForMember returns the member's active relationships across all
// patients.
func (s *Service) ListForMember(ctx context.Context, memberID uuid.UUID) ([]*AccessRecord, error) {
	return s.repo.ListActiveByMember(ctx, memberID)
}

// Get returns one record, visible to the patient, a manager, or the member
// it names.
func (s *Service) Get(ctx context.Context, actorID, recordID uuid.UUID) (*AccessRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.MemberID != nil && *rec.MemberID == actorID {
		return rec, nil
	}
	if err := s.authorizeManage(ctx, actorID, rec.PatientID); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordAccess touches the record's last-access time. Best-effort; the gate
// calls it after an allow and ignores failures.
func (s *Service) RecordAccess(ctx context.Context, recordID uuid.UUID) {
	if err := s.repo.TouchLastAccess(ctx, recordID, s.now().UTC()); err != nil {
		s.log.Debug().Err(err).Str("record_id", recordID.String()).Msg("last-access touch failed")
	}
}
