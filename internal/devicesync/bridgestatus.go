package devicesync

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type BridgeStatusRepo struct{ pool *pgxpool.Pool }

func NewBridgeStatusRepo(pool *pgxpool.Pool) *BridgeStatusRepo { return &BridgeStatusRepo{pool: pool} }

// Heartbeat upserts the bridge row for (site, computer) and bumps its online
// state. syncCount adds to the lifetime total.
func (r *BridgeStatusRepo) Heartbeat(ctx context.Context, b *BridgeStatus, syncCount int64) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bridge_status
			(brand_id, site_id, computer_name, ip_address, os_info,
			 database_path, database_found, is_online, last_heartbeat, total_syncs, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,NOW(),$8,$9)
		ON CONFLICT (site_id, computer_name)
		DO UPDATE SET
			ip_address     = EXCLUDED.ip_address,
			os_info        = EXCLUDED.os_info,
			database_path  = EXCLUDED.database_path,
			database_found = EXCLUDED.database_found,
			is_online      = TRUE,
			last_heartbeat = NOW(),
			total_syncs    = bridge_status.total_syncs + $8,
			last_error     = CASE WHEN $9 <> '' THEN $9 ELSE bridge_status.last_error END
		RETURNING id, first_seen, last_heartbeat, total_syncs
	`, b.BrandID, b.SiteID, b.ComputerName, b.IPAddress, b.OSInfo,
		b.DatabasePath, b.DatabaseFound, syncCount, b.LastError)
	return row.Scan(&b.ID, &b.FirstSeen, &b.LastHeartbeat, &b.TotalSyncs)
}

func (r *BridgeStatusRepo) ListByBrand(ctx context.Context, brandID int64) ([]BridgeStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_id, site_id, computer_name, ip_address, os_info,
		       database_path, database_found, is_online, last_heartbeat, first_seen, total_syncs, last_error
		FROM bridge_status
		WHERE brand_id = $1
		ORDER BY last_heartbeat DESC
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BridgeStatus
	for rows.Next() {
		var b BridgeStatus
		if err := rows.Scan(
			&b.ID,
			&b.BrandID,
			&b.SiteID,
			&b.ComputerName,
			&b.IPAddress,
			&b.OSInfo,
			&b.DatabasePath,
			&b.DatabaseFound,
			&b.IsOnline,
			&b.LastHeartbeat,
			&b.FirstSeen,
			&b.TotalSyncs,
			&b.LastError,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
