package tenant

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetBrand(ctx context.Context, id int64) (*Brand, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, company_id, name, uses_device, strict_admission, is_active, created_at
		FROM brands
		WHERE id = $1
	`, id)
	var b Brand
	if err := row.Scan(&b.ID, &b.CompanyID, &b.Name, &b.UsesDevice, &b.StrictAdmission, &b.IsActive, &b.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetSite(ctx context.Context, id int64) (*Site, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, brand_id, name, address, is_active, created_at
		FROM sites
		WHERE id = $1
	`, id)
	var s Site
	if err := row.Scan(&s.ID, &s.BrandID, &s.Name, &s.Address, &s.IsActive, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListSitesByBrand(ctx context.Context, brandID int64) ([]Site, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_id, name, address, is_active, created_at
		FROM sites
		WHERE brand_id = $1 AND is_active = TRUE
		ORDER BY name
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.BrandID, &s.Name, &s.Address, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListDeviceBrands returns active brands with an attendance device enabled.
func (r *Repo) ListDeviceBrands(ctx context.Context) ([]Brand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name, uses_device, strict_admission, is_active, created_at
		FROM brands
		WHERE uses_device = TRUE AND is_active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Brand
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.Name, &b.UsesDevice, &b.StrictAdmission, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
