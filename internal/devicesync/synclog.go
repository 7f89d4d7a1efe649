package devicesync

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SyncLogRepo struct{ pool *pgxpool.Pool }

func NewSyncLogRepo(pool *pgxpool.Pool) *SyncLogRepo { return &SyncLogRepo{pool: pool} }

func (r *SyncLogRepo) Insert(ctx context.Context, entry *SyncLog) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sync_logs
			(batch_id, brand_id, site_id, sync_type, records_synced, last_sync_id, status, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, synced_at
	`, entry.BatchID, entry.BrandID, entry.SiteID, entry.SyncType,
		entry.RecordsSynced, entry.LastSyncID, entry.Status, entry.ErrorMessage)
	return row.Scan(&entry.ID, &entry.SyncedAt)
}

// Last returns the most recent sync-log entry for a brand, nil when the brand
// has never synced.
func (r *SyncLogRepo) Last(ctx context.Context, brandID int64) (*SyncLog, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, batch_id, brand_id, site_id, sync_type, records_synced, last_sync_id, status, error_message, synced_at
		FROM sync_logs
		WHERE brand_id = $1
		ORDER BY synced_at DESC
		LIMIT 1
	`, brandID)
	entry, err := scanSyncLog(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (r *SyncLogRepo) ListRecent(ctx context.Context, brandID int64, limit int) ([]SyncLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, brand_id, site_id, sync_type, records_synced, last_sync_id, status, error_message, synced_at
		FROM sync_logs
		WHERE brand_id = $1
		ORDER BY synced_at DESC
		LIMIT $2
	`, brandID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncLog
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

func scanSyncLog(row pgx.Row) (*SyncLog, error) {
	var entry SyncLog
	if err := row.Scan(
		&entry.ID,
		&entry.BatchID,
		&entry.BrandID,
		&entry.SiteID,
		&entry.SyncType,
		&entry.RecordsSynced,
		&entry.LastSyncID,
		&entry.Status,
		&entry.ErrorMessage,
		&entry.SyncedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
