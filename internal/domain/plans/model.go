package plans

import "time"

type Plan struct {
	ID           int64
	BrandID      int64
	Name         string
	Description  string
	DurationDays int
	Price        float64

	// Freeze settings
	MaxFreezes    int
	MaxFreezeDays int

	// AllSites makes the plan available at every site of the brand;
	// otherwise SiteIDs holds the explicit set.
	AllSites bool
	SiteIDs  []int64

	IsActive  bool
	CreatedAt time.Time
}

// AvailableAt reports whether the plan can be sold at the given site.
func (p *Plan) AvailableAt(siteID int64) bool {
	return p.IsActive && p.ServesSite(siteID)
}

// ServesSite checks site eligibility alone. Deactivation does not revoke the
// sites an existing subscription was sold at.
func (p *Plan) ServesSite(siteID int64) bool {
	if p.AllSites {
		return true
	}
	for _, id := range p.SiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}
