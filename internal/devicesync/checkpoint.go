package devicesync

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckpointRepo stores the per-site high-water mark of terminally processed
// device log ids. Advance is monotonic; only Reset may move it backwards.
type CheckpointRepo struct{ pool *pgxpool.Pool }

func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo { return &CheckpointRepo{pool: pool} }

func (r *CheckpointRepo) Get(ctx context.Context, siteID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT last_log_id FROM sync_checkpoints WHERE site_id = $1`,
		siteID,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (r *CheckpointRepo) Advance(ctx context.Context, siteID, logID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_checkpoints (site_id, last_log_id)
		VALUES ($1, $2)
		ON CONFLICT (site_id)
		DO UPDATE SET last_log_id = GREATEST(sync_checkpoints.last_log_id, EXCLUDED.last_log_id),
		              updated_at = NOW()
	`, siteID, logID)
	return err
}

// Reset is the explicit administrative override, e.g. after a device database
// was replaced. It may move the checkpoint backwards.
func (r *CheckpointRepo) Reset(ctx context.Context, siteID, logID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_checkpoints (site_id, last_log_id)
		VALUES ($1, $2)
		ON CONFLICT (site_id)
		DO UPDATE SET last_log_id = EXCLUDED.last_log_id, updated_at = NOW()
	`, siteID, logID)
	return err
}
