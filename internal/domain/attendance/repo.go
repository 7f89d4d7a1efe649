package attendance

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Insert writes an attendance record. For device-origin records the
// (site_id, device_log_id) key makes redelivery a no-op: the duplicate is
// reported as inserted=false, not as an error.
func (r *Repo) Insert(ctx context.Context, rec *Record) (bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO member_attendance
			(member_id, subscription_id, brand_id, site_id,
			 check_in, source, device_log_id, has_warning, warning_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (site_id, device_log_id) WHERE device_log_id IS NOT NULL
		DO NOTHING
		RETURNING id
	`, rec.MemberID, rec.SubscriptionID, rec.BrandID, rec.SiteID,
		rec.CheckIn, rec.Source, rec.DeviceLogID, rec.HasWarning, rec.WarningMessage)
	if err := row.Scan(&rec.ID); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repo) ListByMember(ctx context.Context, memberID int64, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, subscription_id, brand_id, site_id,
		       check_in, check_out, source, device_log_id, has_warning, warning_message
		FROM member_attendance
		WHERE member_id = $1
		ORDER BY check_in DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *Repo) ListForDay(ctx context.Context, brandID int64, day time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, subscription_id, brand_id, site_id,
		       check_in, check_out, source, device_log_id, has_warning, warning_message
		FROM member_attendance
		WHERE brand_id = $1 AND check_in::date = $2::date
		ORDER BY check_in DESC
	`, brandID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.MemberID,
			&rec.SubscriptionID,
			&rec.BrandID,
			&rec.SiteID,
			&rec.CheckIn,
			&rec.CheckOut,
			&rec.Source,
			&rec.DeviceLogID,
			&rec.HasWarning,
			&rec.WarningMessage,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
