package attendance

import "time"

type Source string

const (
	SourceManual      Source = "manual"
	SourceQR          Source = "qr"
	SourceFingerprint Source = "fingerprint"
)

// Record is the observed check-in fact. Eligibility is a separate judgment:
// a denied check-in is still recorded, flagged with the denial reason.
type Record struct {
	ID             int64
	MemberID       int64
	SubscriptionID *int64
	BrandID        int64
	SiteID         *int64
	CheckIn        time.Time
	CheckOut       *time.Time
	Source         Source
	// Device log id for device-origin records; with the site it forms the
	// idempotency key. Nil for manual and QR check-ins.
	DeviceLogID    *int64
	HasWarning     bool
	WarningMessage string
}
