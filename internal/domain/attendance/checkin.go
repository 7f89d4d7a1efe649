package attendance

import (
	"context"
	"time"

	"github.com/fitgate/fitgate/internal/domain/members"
)

type RecordStore interface {
	Insert(ctx context.Context, rec *Record) (bool, error)
}

// Service handles front-desk check-ins (manual and QR). Device-origin
// check-ins go through the sync reconciler instead.
type Service struct {
	validator *Validator
	records   RecordStore
}

func NewService(validator *Validator, records RecordStore) *Service {
	return &Service{validator: validator, records: records}
}

// CheckIn records the attendance fact whether or not the member is admitted;
// a denial is flagged on the record rather than dropped.
func (s *Service) CheckIn(ctx context.Context, member *members.Member, siteID int64, source Source, asOf time.Time) (*Record, Decision, error) {
	d, err := s.validator.CanAdmit(ctx, member, asOf)
	if err != nil {
		return nil, Decision{}, err
	}

	rec := &Record{
		MemberID: member.ID,
		BrandID:  member.BrandID,
		CheckIn:  asOf,
		Source:   source,
	}
	if siteID != 0 {
		rec.SiteID = &siteID
	}
	if d.Subscription != nil {
		rec.SubscriptionID = &d.Subscription.ID
	}
	if !d.Admitted {
		rec.HasWarning = true
		rec.WarningMessage = d.Reason.Message()
	}

	if _, err := s.records.Insert(ctx, rec); err != nil {
		return nil, Decision{}, err
	}
	return rec, d, nil
}
