package plans

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetByID(ctx context.Context, id int64) (*Plan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, brand_id, name, description, duration_days, price,
		       max_freezes, max_freeze_days, all_sites, is_active, created_at
		FROM plans
		WHERE id = $1
	`, id)
	p, err := scanPlan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadSites(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Available returns active plans that can be sold at the site: brand plans
// marked all_sites plus plans whose explicit site set includes it.
func (r *Repo) Available(ctx context.Context, brandID, siteID int64) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_id, name, description, duration_days, price,
		       max_freezes, max_freeze_days, all_sites, is_active, created_at
		FROM plans
		WHERE brand_id = $1 AND is_active = TRUE
		  AND (all_sites = TRUE
		       OR id IN (SELECT plan_id FROM plan_sites WHERE site_id = $2))
		ORDER BY duration_days, price
	`, brandID, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadSites(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Deactivate soft-disables a plan. Existing subscriptions keep their terms.
func (r *Repo) Deactivate(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE plans SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func (r *Repo) loadSites(ctx context.Context, p *Plan) error {
	if p.AllSites {
		return nil
	}
	rows, err := r.pool.Query(ctx, `SELECT site_id FROM plan_sites WHERE plan_id = $1 ORDER BY site_id`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		p.SiteIDs = append(p.SiteIDs, id)
	}
	return rows.Err()
}

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	if err := row.Scan(
		&p.ID,
		&p.BrandID,
		&p.Name,
		&p.Description,
		&p.DurationDays,
		&p.Price,
		&p.MaxFreezes,
		&p.MaxFreezeDays,
		&p.AllSites,
		&p.IsActive,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
