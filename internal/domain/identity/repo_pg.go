package identity

import (
	"context"
	"errors"
	"strings"

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

// NewRepoPG returns the PostgreSQL-backed identity repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const identityCols = `id, email, name, role,
	linked_patient_ids, family_member_ids, primary_patient_id,
	created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(&ident.ID, &ident.Email, &ident.Name, &ident.Role,
		&ident.LinkedPatientIDs, &ident.FamilyMemberIDs, &ident.PrimaryPatientID,
		&ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

func isEmailUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == "ux_identities_email"
}

func (r *repoPG) Create(ctx context.Context, ident *Identity) error {
	if ident.ID == uuid.Nil {
		ident.ID = uuid.New()
	}
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO identities (id, email, name, role)
		VALUES ($1, $2, $3, $4)`,
		ident.ID, ident.Email, ident.Name, ident.Role)
	if isEmailUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identities WHERE email = lower($1)`,
		strings.TrimSpace(email)))
}

func (r *repoPG) UpdateProfile(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE identities SET name=$2, updated_at=NOW() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error) {
	var m Membership
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT linked_patient_ids, family_member_ids, primary_patient_id
		FROM identities WHERE id = $1`, id).
		Scan(&m.LinkedPatientIDs, &m.FamilyMemberIDs, &m.PrimaryPatientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) PutMembership(ctx context.Context, id uuid.UUID, m *Membership) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE identities SET
			linked_patient_ids=$2, family_member_ids=$3, primary_patient_id=$4,
			updated_at=NOW()
		WHERE id = $1`,
		id, m.LinkedPatientIDs, m.FamilyMemberIDs, m.PrimaryPatientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
