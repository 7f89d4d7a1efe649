package subscriptions

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusFrozen    Status = "frozen"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type Subscription struct {
	ID       int64
	MemberID int64
	PlanID   int64
	BrandID  int64
	SiteID   *int64

	StartDate time.Time
	EndDate   time.Time
	// End date of the current term before any freeze extension.
	// Re-baselined on renewal, untouched by freezes.
	OriginalEndDate time.Time

	TotalAmount     float64
	PaidAmount      float64
	RemainingAmount float64
	Discount        float64

	Status    Status
	Notes     string
	CreatedAt time.Time
}

// IsCurrent reports whether the subscription grants access as of the given
// instant: status active and the end date not yet passed.
func (s *Subscription) IsCurrent(asOf time.Time) bool {
	return s.Status == StatusActive && !s.EndDate.Before(dateOnly(asOf))
}

func (s *Subscription) DaysRemaining(asOf time.Time) int {
	d := int(s.EndDate.Sub(dateOnly(asOf)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

type Freeze struct {
	ID             int64
	SubscriptionID int64
	FreezeStart    time.Time
	FreezeEnd      time.Time
	FreezeDays     int
	Reason         string
	CreatedAt      time.Time
}

type Payment struct {
	ID             int64
	SubscriptionID int64
	BrandID        int64
	Amount         float64
	Method         string
	Note           string
	PaidAt         time.Time
}

// Income mirrors every payment in the append-only financial trail.
type Income struct {
	ID             int64
	BrandID        int64
	SubscriptionID int64
	Amount         float64
	Type           string // subscription, renewal
	Date           time.Time
	CreatedAt      time.Time
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
