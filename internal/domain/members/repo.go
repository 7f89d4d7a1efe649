package members

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEnrollmentConflict means the fingerprint id is already bound to a
// different member of the brand, or the member is enrolled under another id.
var ErrEnrollmentConflict = errors.New("members: enrollment conflict")

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const memberCols = `id, brand_id, site_id, name, phone, fingerprint_id, enrolled, enrolled_at, is_active, created_at`

func (r *Repo) GetByID(ctx context.Context, id int64) (*Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memberCols+`
		FROM members
		WHERE id = $1
	`, id)
	return scanMember(row)
}

// GetByFingerprint resolves a device fingerprint id within a brand.
// Returns (nil, nil) when no member carries the id.
func (r *Repo) GetByFingerprint(ctx context.Context, brandID, fingerprintID int64) (*Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memberCols+`
		FROM members
		WHERE brand_id = $1 AND fingerprint_id = $2
	`, brandID, fingerprintID)
	return scanMember(row)
}

// PendingEnrollment lists active members still waiting for the device to
// confirm their fingerprint.
func (r *Repo) PendingEnrollment(ctx context.Context, brandID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberCols+`
		FROM members
		WHERE brand_id = $1 AND enrolled = FALSE AND is_active = TRUE
		ORDER BY id
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMemberRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ConfirmEnrollment records a device-confirmed enrollment. Re-confirming with
// the same fingerprint id is a no-op; a different id, or an id already held
// by another member of the brand, is ErrEnrollmentConflict.
func (r *Repo) ConfirmEnrollment(ctx context.Context, memberID, fingerprintID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT brand_id, fingerprint_id, enrolled
		FROM members
		WHERE id = $1
		FOR UPDATE
	`, memberID)
	var brandID int64
	var current *int64
	var enrolled bool
	if err := row.Scan(&brandID, &current, &enrolled); err != nil {
		return err
	}

	heldByOther := false
	var holder int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM members
		WHERE brand_id = $1 AND fingerprint_id = $2 AND id <> $3
	`, brandID, fingerprintID, memberID).Scan(&holder)
	switch err {
	case nil:
		heldByOther = true
	case pgx.ErrNoRows:
	default:
		return err
	}

	alreadyDone, err := decideEnrollment(enrolled, current, fingerprintID, heldByOther)
	if err != nil {
		return err
	}
	if alreadyDone {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE members
		SET fingerprint_id = $2, enrolled = TRUE, enrolled_at = NOW()
		WHERE id = $1
	`, memberID, fingerprintID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE members SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

func scanMember(row pgx.Row) (*Member, error) {
	m, err := scanMemberRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func scanMemberRow(row pgx.Row) (*Member, error) {
	var m Member
	if err := row.Scan(
		&m.ID,
		&m.BrandID,
		&m.SiteID,
		&m.Name,
		&m.Phone,
		&m.FingerprintID,
		&m.Enrolled,
		&m.EnrolledAt,
		&m.IsActive,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
