package subscriptions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the pgx-backed Store. Per-subscription serialization comes from
// row locks taken inside each mutation transaction.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const subCols = `id, member_id, plan_id, brand_id, site_id,
       start_date, end_date, original_end_date,
       total_amount, paid_amount, remaining_amount, discount,
       status, notes, created_at`

func (r *Repo) Get(ctx context.Context, id int64) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subCols+`
		FROM subscriptions
		WHERE id = $1
	`, id)
	s, err := scanSub(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *Repo) ListByMember(ctx context.Context, memberID int64) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subCols+`
		FROM subscriptions
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repo) CountFreezes(ctx context.Context, subscriptionID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscription_freezes WHERE subscription_id = $1`,
		subscriptionID,
	).Scan(&n)
	return n, err
}

func (r *Repo) Create(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions
			(member_id, plan_id, brand_id, site_id,
			 start_date, end_date, original_end_date,
			 total_amount, paid_amount, remaining_amount, discount, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at
	`, sub.MemberID, sub.PlanID, sub.BrandID, sub.SiteID,
		sub.StartDate, sub.EndDate, sub.OriginalEndDate,
		sub.TotalAmount, sub.PaidAmount, sub.RemainingAmount, sub.Discount, sub.Status, sub.Notes)
	if err := row.Scan(&sub.ID, &sub.CreatedAt); err != nil {
		return err
	}

	if pay != nil {
		pay.SubscriptionID = sub.ID
		if err := insertPayment(ctx, tx, pay, incomeType); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) SaveRenewal(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	return r.saveWithPayment(ctx, sub, pay, incomeType)
}

func (r *Repo) SavePayment(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	return r.saveWithPayment(ctx, sub, pay, incomeType)
}

func (r *Repo) saveWithPayment(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSub(ctx, tx, sub.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET start_date = $2, end_date = $3, original_end_date = $4,
		    total_amount = $5, paid_amount = $6, remaining_amount = $7,
		    status = $8
		WHERE id = $1
	`, sub.ID, sub.StartDate, sub.EndDate, sub.OriginalEndDate,
		sub.TotalAmount, sub.PaidAmount, sub.RemainingAmount, sub.Status); err != nil {
		return err
	}
	if pay != nil {
		if err := insertPayment(ctx, tx, pay, incomeType); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) SaveFreeze(ctx context.Context, sub *Subscription, fr *Freeze) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSub(ctx, tx, sub.ID); err != nil {
		return err
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO subscription_freezes
			(subscription_id, freeze_start, freeze_end, freeze_days, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, fr.SubscriptionID, fr.FreezeStart, fr.FreezeEnd, fr.FreezeDays, fr.Reason)
	if err := row.Scan(&fr.ID, &fr.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE subscriptions SET end_date = $2, status = $3 WHERE id = $1
	`, sub.ID, sub.EndDate, sub.Status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) SetStatus(ctx context.Context, id int64, to Status, allowedFrom ...Status) (bool, error) {
	from := make([]string, 0, len(allowedFrom))
	for _, s := range allowedFrom {
		from = append(from, string(s))
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $2 WHERE id = $1 AND status = ANY($3)
	`, id, to, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) ListFreezes(ctx context.Context, subscriptionID int64) ([]Freeze, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subscription_id, freeze_start, freeze_end, freeze_days, reason, created_at
		FROM subscription_freezes
		WHERE subscription_id = $1
		ORDER BY freeze_start
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Freeze
	for rows.Next() {
		var f Freeze
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.FreezeStart, &f.FreezeEnd, &f.FreezeDays, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repo) ListPayments(ctx context.Context, subscriptionID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subscription_id, brand_id, amount, payment_method, note, paid_at
		FROM subscription_payments
		WHERE subscription_id = $1
		ORDER BY paid_at
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.BrandID, &p.Amount, &p.Method, &p.Note, &p.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func lockSub(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `SELECT 1 FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
	return err
}

// Payments are immutable and always paired with an income row.
func insertPayment(ctx context.Context, tx pgx.Tx, pay *Payment, incomeType string) error {
	row := tx.QueryRow(ctx, `
		INSERT INTO subscription_payments (subscription_id, brand_id, amount, payment_method, note)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, paid_at
	`, pay.SubscriptionID, pay.BrandID, pay.Amount, pay.Method, pay.Note)
	if err := row.Scan(&pay.ID, &pay.PaidAt); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO income (brand_id, subscription_id, payment_id, amount, type, date)
		VALUES ($1,$2,$3,$4,$5,CURRENT_DATE)
	`, pay.BrandID, pay.SubscriptionID, pay.ID, pay.Amount, incomeType)
	return err
}

func scanSub(row pgx.Row) (*Subscription, error) {
	var s Subscription
	if err := row.Scan(
		&s.ID,
		&s.MemberID,
		&s.PlanID,
		&s.BrandID,
		&s.SiteID,
		&s.StartDate,
		&s.EndDate,
		&s.OriginalEndDate,
		&s.TotalAmount,
		&s.PaidAmount,
		&s.RemainingAmount,
		&s.Discount,
		&s.Status,
		&s.Notes,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
