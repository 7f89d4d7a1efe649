package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/plans"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeStore struct {
	subs        map[int64]*Subscription
	freezeCount int

	created      *Subscription
	createdPay   *Payment
	savedRenewal *Subscription
	savedFreeze  *Freeze
	savedPay     *Payment
	incomeTypes  []string
	statusSets   []Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: map[int64]*Subscription{}}
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*Subscription, error) {
	return f.subs[id], nil
}

func (f *fakeStore) ListByMember(ctx context.Context, memberID int64) ([]Subscription, error) {
	var out []Subscription
	for _, s := range f.subs {
		if s.MemberID == memberID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) CountFreezes(ctx context.Context, subscriptionID int64) (int, error) {
	return f.freezeCount, nil
}

func (f *fakeStore) Create(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	sub.ID = int64(len(f.subs) + 1)
	f.subs[sub.ID] = sub
	f.created = sub
	f.createdPay = pay
	f.incomeTypes = append(f.incomeTypes, incomeType)
	return nil
}

func (f *fakeStore) SaveRenewal(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	f.savedRenewal = sub
	f.savedPay = pay
	f.incomeTypes = append(f.incomeTypes, incomeType)
	return nil
}

func (f *fakeStore) SaveFreeze(ctx context.Context, sub *Subscription, fr *Freeze) error {
	f.savedFreeze = fr
	f.freezeCount++
	return nil
}

func (f *fakeStore) SavePayment(ctx context.Context, sub *Subscription, pay *Payment, incomeType string) error {
	f.savedPay = pay
	f.incomeTypes = append(f.incomeTypes, incomeType)
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id int64, to Status, allowedFrom ...Status) (bool, error) {
	f.statusSets = append(f.statusSets, to)
	s, ok := f.subs[id]
	if !ok {
		return false, nil
	}
	for _, from := range allowedFrom {
		if s.Status == from {
			s.Status = to
			return true, nil
		}
	}
	return false, nil
}

func testLedger(store Store, today time.Time) *Ledger {
	l := NewLedger(store)
	l.now = func() time.Time { return today }
	return l
}

func testMember() *members.Member {
	return &members.Member{ID: 10, BrandID: 1, IsActive: true}
}

func testPlan() *plans.Plan {
	return &plans.Plan{
		ID: 5, BrandID: 1, Name: "monthly",
		DurationDays: 30, Price: 500,
		MaxFreezes: 3, MaxFreezeDays: 14,
		AllSites: true, IsActive: true,
	}
}

func TestRenewalTerm(t *testing.T) {
	tests := []struct {
		name      string
		endDate   time.Time
		today     time.Time
		duration  int
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "renew before expiry extends from current end",
			endDate:   date(2025, 6, 1),
			today:     date(2025, 5, 20),
			duration:  30,
			wantStart: date(2025, 6, 1),
			wantEnd:   date(2025, 7, 1),
		},
		{
			name:      "renew after expiry restarts from today",
			endDate:   date(2025, 4, 1),
			today:     date(2025, 5, 20),
			duration:  30,
			wantStart: date(2025, 5, 20),
			wantEnd:   date(2025, 6, 19),
		},
		{
			name:      "renew on the expiry day continues without a gap",
			endDate:   date(2025, 5, 20),
			today:     date(2025, 5, 20),
			duration:  30,
			wantStart: date(2025, 5, 20),
			wantEnd:   date(2025, 6, 19),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := renewalTerm(tt.endDate, tt.today, tt.duration)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("expected %v..%v, got %v..%v", tt.wantStart, tt.wantEnd, start, end)
			}
		})
	}
}

func TestFreezeDays(t *testing.T) {
	if got := freezeDays(date(2025, 6, 1), date(2025, 6, 11)); got != 10 {
		t.Fatalf("expected 10 days, got %d", got)
	}
	if got := freezeDays(date(2025, 6, 1), date(2025, 6, 1)); got != 0 {
		t.Fatalf("expected 0 days, got %d", got)
	}

	// A spring-forward day is only 23 wall-clock hours long; the count must
	// still be a full calendar day.
	std := time.FixedZone("STD", -5*3600)
	dst := time.FixedZone("DST", -4*3600)
	start := time.Date(2025, 3, 9, 0, 0, 0, 0, std)
	end := time.Date(2025, 3, 10, 0, 0, 0, 0, dst)
	if got := freezeDays(start, end); got != 1 {
		t.Fatalf("expected 1 day across the transition, got %d", got)
	}
}

func TestClampTotal(t *testing.T) {
	if got := clampTotal(500, 100); got != 400 {
		t.Fatalf("expected 400, got %v", got)
	}
	if got := clampTotal(500, 600); got != 0 {
		t.Fatalf("discount above price must clamp to 0, got %v", got)
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 1))

	sub, err := l.Create(ctx, testMember(), testPlan(), 0, 300, 50)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.Status != StatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if !sub.StartDate.Equal(date(2025, 5, 1)) || !sub.EndDate.Equal(date(2025, 5, 31)) {
		t.Fatalf("unexpected term %v..%v", sub.StartDate, sub.EndDate)
	}
	if !sub.OriginalEndDate.Equal(sub.EndDate) {
		t.Fatalf("original end date must equal end date on creation")
	}
	if sub.TotalAmount != 450 || sub.RemainingAmount != 150 {
		t.Fatalf("unexpected amounts: total=%v remaining=%v", sub.TotalAmount, sub.RemainingAmount)
	}
	if store.createdPay == nil || store.createdPay.Amount != 300 {
		t.Fatalf("expected a 300 payment to be booked")
	}
	if sub.RemainingAmount != sub.TotalAmount-sub.PaidAmount {
		t.Fatalf("remaining invariant broken")
	}
}

func TestCreateNoPaymentWhenNothingPaid(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 1))

	if _, err := l.Create(context.Background(), testMember(), testPlan(), 0, 0, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.createdPay != nil {
		t.Fatalf("no payment row expected when paid amount is zero")
	}
}

func TestCreateIneligiblePlan(t *testing.T) {
	ctx := context.Background()
	l := testLedger(newFakeStore(), date(2025, 5, 1))

	tests := []struct {
		name   string
		plan   *plans.Plan
		siteID int64
	}{
		{
			name: "plan from another brand",
			plan: &plans.Plan{ID: 5, BrandID: 2, DurationDays: 30, AllSites: true, IsActive: true},
		},
		{
			name: "site outside the plan's set",
			plan: &plans.Plan{
				ID: 5, BrandID: 1, DurationDays: 30,
				SiteIDs: []int64{2, 3}, IsActive: true,
			},
			siteID: 7,
		},
		{
			name: "deactivated plan",
			plan: &plans.Plan{ID: 5, BrandID: 1, DurationDays: 30, AllSites: true, IsActive: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Create(ctx, testMember(), tt.plan, tt.siteID, 0, 0); err != ErrIneligiblePlan {
				t.Fatalf("expected ErrIneligiblePlan, got %v", err)
			}
		})
	}
}

func TestRenewExtendsFromEndDate(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 20))

	sub := &Subscription{
		ID: 1, MemberID: 10, BrandID: 1, PlanID: 5,
		StartDate: date(2025, 5, 2), EndDate: date(2025, 6, 1),
		OriginalEndDate: date(2025, 6, 1),
		TotalAmount:     500, PaidAmount: 500,
		Status: StatusActive,
	}
	if err := l.Renew(context.Background(), sub, testPlan(), 500); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !sub.StartDate.Equal(date(2025, 6, 1)) || !sub.EndDate.Equal(date(2025, 7, 1)) {
		t.Fatalf("expected term 2025-06-01..2025-07-01, got %v..%v", sub.StartDate, sub.EndDate)
	}
	if sub.TotalAmount != 1000 || sub.PaidAmount != 1000 || sub.RemainingAmount != 0 {
		t.Fatalf("amounts did not accumulate: %+v", sub)
	}
	if store.savedPay == nil {
		t.Fatalf("renewal payment not booked")
	}
	if store.incomeTypes[len(store.incomeTypes)-1] != incomeRenewal {
		t.Fatalf("renewal income row must use the renewal type")
	}
}

func TestRenewAfterExpiryRestartsToday(t *testing.T) {
	store := newFakeStore()
	today := date(2025, 5, 20)
	l := testLedger(store, today)

	sub := &Subscription{
		ID: 1, MemberID: 10, BrandID: 1, PlanID: 5,
		EndDate: date(2025, 4, 1), OriginalEndDate: date(2025, 4, 1),
		Status: StatusExpired,
	}
	if err := l.Renew(context.Background(), sub, testPlan(), 0); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !sub.StartDate.Equal(today) || !sub.EndDate.Equal(date(2025, 6, 19)) {
		t.Fatalf("expected restart from today, got %v..%v", sub.StartDate, sub.EndDate)
	}
	if sub.Status != StatusActive {
		t.Fatalf("renew must reset status to active, got %s", sub.Status)
	}
}

func TestRenewCancelledFails(t *testing.T) {
	l := testLedger(newFakeStore(), date(2025, 5, 20))
	sub := &Subscription{ID: 1, BrandID: 1, Status: StatusCancelled}
	if err := l.Renew(context.Background(), sub, testPlan(), 100); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateOverpaymentRejected(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 1))

	// Total after discount is 450; paying 600 must fail up front.
	if _, err := l.Create(context.Background(), testMember(), testPlan(), 0, 600, 50); err != ErrOverpayment {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if store.created != nil {
		t.Fatalf("overpaid create must not persist a subscription")
	}
}

func TestRenewOverpaymentRejected(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 20))

	sub := &Subscription{
		ID: 1, MemberID: 10, BrandID: 1, PlanID: 5,
		EndDate: date(2025, 6, 1), OriginalEndDate: date(2025, 6, 1),
		TotalAmount: 500, PaidAmount: 500, RemainingAmount: 0,
		Status: StatusActive,
	}
	if err := l.Renew(context.Background(), sub, testPlan(), 600); err != ErrOverpayment {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if sub.TotalAmount != 500 || sub.PaidAmount != 500 || !sub.EndDate.Equal(date(2025, 6, 1)) {
		t.Fatalf("rejected renewal mutated subscription: %+v", sub)
	}
	if store.savedRenewal != nil {
		t.Fatalf("rejected renewal must not persist")
	}
}

func TestFreezeExtendsEndDate(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 1))

	sub := &Subscription{
		ID: 1, BrandID: 1,
		EndDate: date(2025, 6, 1), OriginalEndDate: date(2025, 6, 1),
		Status: StatusActive,
	}
	fr, err := l.Freeze(context.Background(), sub, testPlan(), date(2025, 5, 5), date(2025, 5, 15), "travel")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if fr.FreezeDays != 10 {
		t.Fatalf("expected 10 freeze days, got %d", fr.FreezeDays)
	}
	if !sub.EndDate.Equal(date(2025, 6, 11)) {
		t.Fatalf("expected end date 2025-06-11, got %v", sub.EndDate)
	}
	if !sub.OriginalEndDate.Equal(date(2025, 6, 1)) {
		t.Fatalf("original end date must stay at the pre-freeze baseline")
	}
	if sub.Status != StatusFrozen {
		t.Fatalf("expected frozen, got %s", sub.Status)
	}
}

func TestFreezeGuards(t *testing.T) {
	plan := testPlan() // max 3 freezes, 14 days each

	t.Run("duration above plan limit", func(t *testing.T) {
		l := testLedger(newFakeStore(), date(2025, 5, 1))
		sub := &Subscription{ID: 1, EndDate: date(2025, 6, 1), Status: StatusActive}
		_, err := l.Freeze(context.Background(), sub, plan, date(2025, 5, 1), date(2025, 5, 20), "")
		if err != ErrFreezeDurationExceeded {
			t.Fatalf("expected ErrFreezeDurationExceeded, got %v", err)
		}
	})

	t.Run("end before start", func(t *testing.T) {
		l := testLedger(newFakeStore(), date(2025, 5, 1))
		sub := &Subscription{ID: 1, EndDate: date(2025, 6, 1), Status: StatusActive}
		_, err := l.Freeze(context.Background(), sub, plan, date(2025, 5, 10), date(2025, 5, 5), "")
		if err != ErrInvalidFreezeRange {
			t.Fatalf("expected ErrInvalidFreezeRange, got %v", err)
		}
	})

	t.Run("fourth freeze rejected with state intact", func(t *testing.T) {
		store := newFakeStore()
		store.freezeCount = 3
		l := testLedger(store, date(2025, 5, 1))
		sub := &Subscription{ID: 1, EndDate: date(2025, 6, 1), OriginalEndDate: date(2025, 6, 1), Status: StatusActive}

		_, err := l.Freeze(context.Background(), sub, plan, date(2025, 5, 5), date(2025, 5, 10), "")
		if err != ErrFreezeLimitExceeded {
			t.Fatalf("expected ErrFreezeLimitExceeded, got %v", err)
		}
		if !sub.EndDate.Equal(date(2025, 6, 1)) || sub.Status != StatusActive {
			t.Fatalf("rejected freeze must leave the subscription unchanged: %+v", sub)
		}
		if store.savedFreeze != nil {
			t.Fatalf("no freeze row may be written on rejection")
		}
	})

	t.Run("frozen subscription cannot be re-frozen", func(t *testing.T) {
		l := testLedger(newFakeStore(), date(2025, 5, 1))
		sub := &Subscription{ID: 1, EndDate: date(2025, 6, 1), Status: StatusFrozen}
		_, err := l.Freeze(context.Background(), sub, plan, date(2025, 5, 5), date(2025, 5, 10), "")
		if err != ErrInvalidTransition {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestUnfreeze(t *testing.T) {
	store := newFakeStore()
	sub := &Subscription{ID: 1, Status: StatusFrozen}
	store.subs[1] = sub
	l := testLedger(store, date(2025, 5, 1))

	if err := l.Unfreeze(context.Background(), sub); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if sub.Status != StatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}

	active := &Subscription{ID: 2, Status: StatusActive}
	store.subs[2] = active
	if err := l.Unfreeze(context.Background(), active); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for non-frozen, got %v", err)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	store := newFakeStore()
	sub := &Subscription{ID: 1, Status: StatusActive}
	store.subs[1] = sub
	l := testLedger(store, date(2025, 5, 1))

	if err := l.Cancel(context.Background(), sub); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sub.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sub.Status)
	}
	if err := l.Cancel(context.Background(), sub); err != ErrInvalidTransition {
		t.Fatalf("second cancel must fail with ErrInvalidTransition, got %v", err)
	}
}

func TestAddPaymentKeepsRemainingInvariant(t *testing.T) {
	store := newFakeStore()
	l := testLedger(store, date(2025, 5, 1))
	sub := &Subscription{ID: 1, BrandID: 1, TotalAmount: 500, PaidAmount: 200, RemainingAmount: 300, Status: StatusActive}

	if err := l.AddPayment(context.Background(), sub, 150, ""); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if sub.PaidAmount != 350 || sub.RemainingAmount != 150 {
		t.Fatalf("unexpected amounts: %+v", sub)
	}
	if sub.RemainingAmount != sub.TotalAmount-sub.PaidAmount {
		t.Fatalf("remaining invariant broken")
	}

	if err := l.AddPayment(context.Background(), sub, 200, ""); err != ErrOverpayment {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if sub.PaidAmount != 350 || sub.RemainingAmount != 150 {
		t.Fatalf("overpayment mutated subscription: %+v", sub)
	}
}

func TestExpireCheck(t *testing.T) {
	store := newFakeStore()
	sub := &Subscription{ID: 1, EndDate: date(2025, 5, 1), Status: StatusActive}
	store.subs[1] = sub
	l := testLedger(store, date(2025, 5, 10))

	if err := l.ExpireCheck(context.Background(), sub, date(2025, 5, 10)); err != nil {
		t.Fatalf("expire check: %v", err)
	}
	if sub.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", sub.Status)
	}

	// Repeated checks after expiry are no-ops.
	before := len(store.statusSets)
	if err := l.ExpireCheck(context.Background(), sub, date(2025, 5, 11)); err != nil {
		t.Fatalf("expire check: %v", err)
	}
	if len(store.statusSets) != before {
		t.Fatalf("second expire check must not touch the store")
	}

	// End date today is still current.
	current := &Subscription{ID: 2, EndDate: date(2025, 5, 10), Status: StatusActive}
	store.subs[2] = current
	if err := l.ExpireCheck(context.Background(), current, date(2025, 5, 10)); err != nil {
		t.Fatalf("expire check: %v", err)
	}
	if current.Status != StatusActive {
		t.Fatalf("subscription ending today must stay active")
	}
}
