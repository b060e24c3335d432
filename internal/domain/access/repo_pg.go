package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecircle/carecircle/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the PostgreSQL-backed access record repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accessCols = `id, patient_id, member_id, member_email, member_name,
	can_view, can_create, can_edit, can_delete,
	can_claim_responsibility, can_manage_family,
	can_view_medical_details, can_receive_notifications,
	access_level, event_types_allowed,
	emergency_access, emergency_expires_at,
	invitation_token, invitation_expires_at,
	status, invited_at, accepted_at, last_access_at,
	revoked_at, revoked_by, revocation_reason, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*AccessRecord, error) {
	var rec AccessRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.MemberID, &rec.MemberEmail, &rec.MemberName,
		&rec.Permissions.CanView, &rec.Permissions.CanCreate, &rec.Permissions.CanEdit, &rec.Permissions.CanDelete,
		&rec.Permissions.CanClaimResponsibility, &rec.Permissions.CanManageFamily,
		&rec.Permissions.CanViewMedicalDetails, &rec.Permissions.CanReceiveNotifications,
		&rec.AccessLevel, &rec.EventTypesAllowed,
		&rec.EmergencyAccess, &rec.EmergencyExpiresAt,
		&rec.InvitationToken, &rec.InvitationExpiresAt,
		&rec.Status, &rec.InvitedAt, &rec.AcceptedAt, &rec.LastAccessAt,
		&rec.RevokedAt, &rec.RevokedBy, &rec.RevocationReason, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// isLiveUniqueViolation reports whether the error is a violation of the
// partial unique index guarding the one-live-record-per-(patient,email)
// invariant. The index backs up the service-level pre-check so that two
// concurrent invites cannot both commit.
func isLiveUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == "ux_access_live"
}

func (r *repoPG) Create(ctx context.Context, rec *AccessRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.MemberEmail = strings.ToLower(strings.TrimSpace(rec.MemberEmail))
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_records (id, patient_id, member_id, member_email, member_name,
			can_view, can_create, can_edit, can_delete,
			can_claim_responsibility, can_manage_family,
			can_view_medical_details, can_receive_notifications,
			access_level, event_types_allowed,
			emergency_access, emergency_expires_at,
			invitation_token, invitation_expires_at,
			status, invited_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		rec.ID, rec.PatientID, rec.MemberID, rec.MemberEmail, rec.MemberName,
		rec.Permissions.CanView, rec.Permissions.CanCreate, rec.Permissions.CanEdit, rec.Permissions.CanDelete,
		rec.Permissions.CanClaimResponsibility, rec.Permissions.CanManageFamily,
		rec.Permissions.CanViewMedicalDetails, rec.Permissions.CanReceiveNotifications,
		rec.AccessLevel, rec.EventTypesAllowed,
		rec.EmergencyAccess, rec.EmergencyExpiresAt,
		rec.InvitationToken, rec.InvitationExpiresAt,
		rec.Status, rec.InvitedAt)
	if isLiveUniqueViolation(err) {
		return ErrDuplicateRelationship
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AccessRecord, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accessCols+` FROM access_records WHERE id = $1`, id))
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*AccessRecord, error) {
	rec, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accessCols+` FROM access_records WHERE invitation_token = $1`, token))
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	return rec, err
}

func (r *repoPG) FindLiveByPatientAndEmail(ctx context.Context, patientID uuid.UUID, email string) (*AccessRecord, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE patient_id = $1 AND member_email = lower($2) AND status IN ('pending','active')
		ORDER BY created_at DESC LIMIT 1`,
		patientID, strings.TrimSpace(email)))
}

func (r *repoPG) FindByPatientAndMember(ctx context.Context, patientID, memberID uuid.UUID) (*AccessRecord, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE patient_id = $1 AND member_id = $2 AND status IN ('active','suspended')
		ORDER BY created_at DESC LIMIT 1`,
		patientID, memberID))
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*AccessRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AccessRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessRecord, error) {
	return r.list(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE patient_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, patientID)
}

func (r *repoPG) ListActiveByMember(ctx context.Context, memberID uuid.UUID) ([]*AccessRecord, error) {
	return r.list(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE member_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, memberID)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM access_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.list(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) Update(ctx context.Context, rec *AccessRecord) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_records SET
			member_name=$2,
			can_view=$3, can_create=$4, can_edit=$5, can_delete=$6,
			can_claim_responsibility=$7, can_manage_family=$8,
			can_view_medical_details=$9, can_receive_notifications=$10,
			access_level=$11, event_types_allowed=$12,
			emergency_access=$13, emergency_expires_at=$14,
			updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.MemberName,
		rec.Permissions.CanView, rec.Permissions.CanCreate, rec.Permissions.CanEdit, rec.Permissions.CanDelete,
		rec.Permissions.CanClaimResponsibility, rec.Permissions.CanManageFamily,
		rec.Permissions.CanViewMedicalDetails, rec.Permissions.CanReceiveNotifications,
		rec.AccessLevel, rec.EventTypesAllowed,
		rec.EmergencyAccess, rec.EmergencyExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// cas runs a compare-and-set transition and maps a missed guard to
// ErrConcurrentModification.
func (r *repoPG) cas(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *repoPG) MarkAccepted(ctx context.Context, id, memberID uuid.UUID, acceptedAt time.Time) error {
	return r.cas(ctx, `
		UPDATE access_records SET
			member_id=$2, status='active', accepted_at=$3,
			invitation_token=NULL, invitation_expires_at=NULL, updated_at=NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, memberID, acceptedAt)
}

func (r *repoPG) MarkRevoked(ctx context.Context, id, revokedBy uuid.UUID, reason string, revokedAt time.Time) error {
	return r.cas(ctx, `
		UPDATE access_records SET
			status='revoked', revoked_at=$2, revoked_by=$3, revocation_reason=$4,
			invitation_token=NULL, invitation_expires_at=NULL, updated_at=NOW()
		WHERE id = $1 AND status IN ('pending','active','suspended')`,
		id, revokedAt, revokedBy, reason)
}

func (r *repoPG) MarkSuspended(ctx context.Context, id uuid.UUID) error {
	return r.cas(ctx, `
		UPDATE access_records SET status='suspended', updated_at=NOW()
		WHERE id = $1 AND status = 'active'`, id)
}

func (r *repoPG) MarkReactivated(ctx context.Context, id uuid.UUID) error {
	return r.cas(ctx, `
		UPDATE access_records SET status='active', updated_at=NOW()
		WHERE id = $1 AND status = 'suspended'`, id)
}

func (r *repoPG) MarkExpired(ctx context.Context, id uuid.UUID, from Status) error {
	return r.cas(ctx, `
		UPDATE access_records SET
			status='expired',
			invitation_token=NULL, invitation_expires_at=NULL, updated_at=NOW()
		WHERE id = $1 AND status = $2`, id, from)
}

func (r *repoPG) ClearEmergency(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_records SET
			emergency_access=FALSE, emergency_expires_at=NULL, updated_at=NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE access_records SET last_access_at=$2 WHERE id = $1`, id, at)
	return err
}

func (r *repoPG) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*AccessRecord, error) {
	return r.list(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE status = 'pending' AND invitation_expires_at IS NOT NULL AND invitation_expires_at <= $1
		ORDER BY created_at LIMIT $2`, now, limit)
}

func (r *repoPG) ListExpiredEmergency(ctx context.Context, now time.Time, limit int) ([]*AccessRecord, error) {
	return r.list(ctx, `
		SELECT `+accessCols+` FROM access_records
		WHERE status = 'active' AND emergency_access AND emergency_expires_at IS NOT NULL AND emergency_expires_at <= $1
		ORDER BY created_at LIMIT $2`, now, limit)
}
