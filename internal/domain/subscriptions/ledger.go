package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/plans"
)

var (
	ErrIneligiblePlan         = errors.New("subscriptions: plan not eligible at site")
	ErrInvalidTransition      = errors.New("subscriptions: invalid status transition")
	ErrFreezeLimitExceeded    = errors.New("subscriptions: freeze limit exceeded")
	ErrFreezeDurationExceeded = errors.New("subscriptions: freeze duration exceeded")
	ErrInvalidFreezeRange     = errors.New("subscriptions: freeze end must be after start")
	ErrOverpayment            = errors.New("subscriptions: payment exceeds remaining amount")
)

const (
	incomeSubscription = "subscription"
	incomeRenewal      = "renewal"
)

// Store is the persistence surface the ledger drives. Every mutation method
// commits all of its writes in one transaction.
type Store interface {
	Get(ctx context.Context, id int64) (*Subscription, error)
	ListByMember(ctx context.Context, memberID int64) ([]Subscription, error)
	CountFreezes(ctx context.Context, subscriptionID int64) (int, error)

	Create(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error
	SaveRenewal(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error
	SaveFreeze(ctx context.Context, sub *Subscription, fr *Freeze) error
	SavePayment(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error
	// SetStatus moves id to the target status only if the current status is
	// one of allowedFrom; reports whether a row changed.
	SetStatus(ctx context.Context, id int64, to Status, allowedFrom ...Status) (bool, error)
}

// Ledger owns every subscription state transition and the money bookkeeping
// attached to it. It is the only writer of subscription rows.
type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Create opens a new subscription for a member, booking the first payment and
// its income record in the same transaction.
func (l *Ledger) Create(ctx context.Context, member *members.Member, plan *plans.Plan, siteID int64, paid, discount float64) (*Subscription, error) {
	if plan.BrandID != member.BrandID {
		return nil, ErrIneligiblePlan
	}
	if siteID != 0 && !plan.AvailableAt(siteID) {
		return nil, ErrIneligiblePlan
	}
	if !plan.IsActive {
		return nil, ErrIneligiblePlan
	}

	today := dateOnly(l.now())
	end := today.AddDate(0, 0, plan.DurationDays)
	total := clampTotal(plan.Price, discount)
	if paid > total {
		return nil, ErrOverpayment
	}

	sub := &Subscription{
		MemberID:        member.ID,
		PlanID:          plan.ID,
		BrandID:         member.BrandID,
		StartDate:       today,
		EndDate:         end,
		OriginalEndDate: end,
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: total - paid,
		Discount:        discount,
		Status:          StatusActive,
	}
	if siteID != 0 {
		sub.SiteID = &siteID
	}

	var pay *Payment
	if paid > 0 {
		pay = &Payment{BrandID: member.BrandID, Amount: paid, Method: "cash"}
	}
	if err := l.store.Create(ctx, sub, pay, incomeSubscription); err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew extends the subscription by one plan duration. A renewal before
// expiry continues from the current end date so paid time is never lost;
// after expiry the new term starts today.
func (l *Ledger) Renew(ctx context.Context, sub *Subscription, plan *plans.Plan, paid float64) error {
	if sub.Status == StatusCancelled {
		return ErrInvalidTransition
	}
	// Deactivated plans can still be renewed; site eligibility still applies.
	if sub.SiteID != nil && !plan.ServesSite(*sub.SiteID) {
		return ErrIneligiblePlan
	}
	if paid > sub.RemainingAmount+plan.Price {
		return ErrOverpayment
	}

	start, end := renewalTerm(sub.EndDate, dateOnly(l.now()), plan.DurationDays)
	sub.StartDate = start
	sub.EndDate = end
	sub.OriginalEndDate = end
	sub.TotalAmount += plan.Price
	sub.PaidAmount += paid
	sub.RemainingAmount = sub.TotalAmount - sub.PaidAmount
	sub.Status = StatusActive

	var pay *Payment
	if paid > 0 {
		pay = &Payment{SubscriptionID: sub.ID, BrandID: sub.BrandID, Amount: paid, Method: "cash"}
	}
	return l.store.SaveRenewal(ctx, sub, pay, incomeRenewal)
}

// Freeze suspends an active subscription between the given dates, pushing the
// end date forward by the freeze length. OriginalEndDate keeps the pre-freeze
// baseline.
func (l *Ledger) Freeze(ctx context.Context, sub *Subscription, plan *plans.Plan, freezeStart, freezeEnd time.Time, reason string) (*Freeze, error) {
	if sub.Status != StatusActive {
		return nil, ErrInvalidTransition
	}
	days := freezeDays(freezeStart, freezeEnd)
	if days <= 0 {
		return nil, ErrInvalidFreezeRange
	}
	if days > plan.MaxFreezeDays {
		return nil, ErrFreezeDurationExceeded
	}
	count, err := l.store.CountFreezes(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if count >= plan.MaxFreezes {
		return nil, ErrFreezeLimitExceeded
	}

	fr := &Freeze{
		SubscriptionID: sub.ID,
		FreezeStart:    dateOnly(freezeStart),
		FreezeEnd:      dateOnly(freezeEnd),
		FreezeDays:     days,
		Reason:         reason,
	}
	sub.EndDate = sub.EndDate.AddDate(0, 0, days)
	sub.Status = StatusFrozen
	if err := l.store.SaveFreeze(ctx, sub, fr); err != nil {
		return nil, err
	}
	return fr, nil
}

// Unfreeze returns a frozen subscription to active without shifting dates.
func (l *Ledger) Unfreeze(ctx context.Context, sub *Subscription) error {
	ok, err := l.store.SetStatus(ctx, sub.ID, StatusActive, StatusFrozen)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	sub.Status = StatusActive
	return nil
}

// Cancel is terminal. No transition leaves cancelled.
func (l *Ledger) Cancel(ctx context.Context, sub *Subscription) error {
	if sub.Status == StatusCancelled {
		return ErrInvalidTransition
	}
	ok, err := l.store.SetStatus(ctx, sub.ID, StatusCancelled, StatusActive, StatusFrozen, StatusExpired)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	sub.Status = StatusCancelled
	return nil
}

// AddPayment books a further payment against the open balance.
func (l *Ledger) AddPayment(ctx context.Context, sub *Subscription, amount float64, note string) error {
	if sub.Status == StatusCancelled {
		return ErrInvalidTransition
	}
	if amount > sub.RemainingAmount {
		return ErrOverpayment
	}
	sub.PaidAmount += amount
	sub.RemainingAmount = sub.TotalAmount - sub.PaidAmount
	pay := &Payment{SubscriptionID: sub.ID, BrandID: sub.BrandID, Amount: amount, Method: "cash", Note: note}
	return l.store.SavePayment(ctx, sub, pay, incomeSubscription)
}

// ExpireCheck applies the passive active→expired transition when the end date
// has passed. Repeated checks after expiry are no-ops.
func (l *Ledger) ExpireCheck(ctx context.Context, sub *Subscription, asOf time.Time) error {
	if sub.Status != StatusActive || !sub.EndDate.Before(dateOnly(asOf)) {
		return nil
	}
	ok, err := l.store.SetStatus(ctx, sub.ID, StatusExpired, StatusActive)
	if err != nil {
		return err
	}
	if ok {
		sub.Status = StatusExpired
	}
	return nil
}

// CurrentForMember loads a member's subscriptions with the passive expire
// check applied. This is the view the attendance validator decides on.
func (l *Ledger) CurrentForMember(ctx context.Context, memberID int64, asOf time.Time) ([]Subscription, error) {
	subs, err := l.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if err := l.ExpireCheck(ctx, &subs[i], asOf); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (*Subscription, error) {
	return l.store.Get(ctx, id)
}

func renewalTerm(endDate, today time.Time, durationDays int) (start, end time.Time) {
	start = today
	if endDate.After(today) {
		start = endDate
	}
	return start, start.AddDate(0, 0, durationDays)
}

func clampTotal(price, discount float64) float64 {
	total := price - discount
	if total < 0 {
		return 0
	}
	return total
}

// freezeDays counts calendar days between the dates. Normalized to UTC so a
// DST transition inside the range cannot shift the count.
func freezeDays(start, end time.Time) int {
	return int(utcDate(end).Sub(utcDate(start)).Hours() / 24)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
