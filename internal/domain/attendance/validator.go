package attendance

import (
	"context"
	"time"

	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/subscriptions"
)

type Reason string

const (
	ReasonMemberInactive       Reason = "member_inactive"
	ReasonSubscriptionFrozen   Reason = "subscription_frozen"
	ReasonNoActiveSubscription Reason = "no_active_subscription"
)

func (r Reason) Message() string {
	switch r {
	case ReasonMemberInactive:
		return "member is inactive"
	case ReasonSubscriptionFrozen:
		return "subscription is frozen"
	case ReasonNoActiveSubscription:
		return "no active subscription"
	}
	return string(r)
}

type Decision struct {
	Admitted bool
	Reason   Reason
	// The subscription the decision was made on: the admitting one, or the
	// frozen one for display on a frozen denial. Nil otherwise.
	Subscription *subscriptions.Subscription
}

// SubscriptionSource supplies a member's subscriptions with the passive
// expire check already applied. The ledger implements it.
type SubscriptionSource interface {
	CurrentForMember(ctx context.Context, memberID int64, asOf time.Time) ([]subscriptions.Subscription, error)
}

// Validator decides admit/deny for a check-in attempt. Pure decision logic;
// it mutates nothing and snapshots subscription status at decision time.
type Validator struct {
	subs SubscriptionSource
}

func NewValidator(subs SubscriptionSource) *Validator {
	return &Validator{subs: subs}
}

func (v *Validator) CanAdmit(ctx context.Context, member *members.Member, asOf time.Time) (Decision, error) {
	if member == nil || !member.IsActive {
		return Decision{Reason: ReasonMemberInactive}, nil
	}

	subs, err := v.subs.CurrentForMember(ctx, member.ID, asOf)
	if err != nil {
		return Decision{}, err
	}

	// A member should hold at most one active subscription; if the data
	// carries more, the one with the latest end date wins.
	var admit *subscriptions.Subscription
	var frozen *subscriptions.Subscription
	for i := range subs {
		s := &subs[i]
		switch {
		case s.IsCurrent(asOf):
			if admit == nil || s.EndDate.After(admit.EndDate) {
				admit = s
			}
		case s.Status == subscriptions.StatusFrozen:
			if frozen == nil || s.EndDate.After(frozen.EndDate) {
				frozen = s
			}
		}
	}

	if admit != nil {
		return Decision{Admitted: true, Subscription: admit}, nil
	}
	if frozen != nil {
		return Decision{Reason: ReasonSubscriptionFrozen, Subscription: frozen}, nil
	}
	return Decision{Reason: ReasonNoActiveSubscription}, nil
}
