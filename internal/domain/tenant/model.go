package tenant

import "time"

type Company struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Brand struct {
	ID        int64
	CompanyID int64
	Name      string
	// UsesDevice marks brands running an attendance device at their sites.
	UsesDevice bool
	// StrictAdmission rejects denied check-ins instead of recording them
	// as flagged attendance.
	StrictAdmission bool
	IsActive        bool
	CreatedAt       time.Time
}

type Site struct {
	ID        int64
	BrandID   int64
	Name      string
	Address   string
	IsActive  bool
	CreatedAt time.Time
}

// Scope is the tenant boundary passed explicitly through ledger, validator
// and reconciler calls. SiteID is zero for brand-wide operations.
type Scope struct {
	BrandID int64
	SiteID  int64
}
