package members

import "time"

type Member struct {
	ID      int64
	BrandID int64
	SiteID  *int64

	Name  string
	Phone string

	// Device-local biometric identifier. Assigned by us, mirrored onto the
	// device out of band; Enrolled flips only on a confirmed enrollment
	// event from the device side.
	FingerprintID *int64
	Enrolled      bool
	EnrolledAt    *time.Time

	IsActive  bool
	CreatedAt time.Time
}
