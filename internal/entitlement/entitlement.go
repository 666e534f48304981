// Package entitlement decides which of a user's contacts are locked given the user's plan.
//
// The decision is a pure function of the current contact set and a normalized billing event.
// Both outcomes are set operations (unlock everything, or lock everything beyond the oldest
// quota contacts), so applying the same event twice yields the same state.
package entitlement

import (
	"sort"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// FreeQuota is the number of unlocked contacts a user on the free plan may have.
const FreeQuota = 20

// Event is a normalized billing event.
type Event int

const (
	// SubscriptionActive means the subscription is active or trialing.
	SubscriptionActive Event = iota + 1
	// SubscriptionEnded means the subscription is canceled, unpaid, past due or expired.
	SubscriptionEnded
	// CheckoutCompleted means a checkout for a subscription finished.
	CheckoutCompleted
)

func (e Event) String() string {
	switch e {
	case SubscriptionActive:
		return "subscription_active"
	case SubscriptionEnded:
		return "subscription_ended"
	case CheckoutCompleted:
		return "checkout_completed"
	default:
		return "unknown"
	}
}

// State summarizes a user's lock state.
type State string

const (
	UnlockedAll     State = "UNLOCKED_ALL"
	PartiallyLocked State = "PARTIALLY_LOCKED"
)

// Decision lists the contacts whose lock flag has to change.
type Decision struct {
	Lock   []int64
	Unlock []int64
}

// Empty reports whether nothing has to change.
func (d Decision) Empty() bool {
	return len(d.Lock) == 0 && len(d.Unlock) == 0
}

// Decide computes the lock changes that bring contacts into agreement with event.
//
// On SubscriptionActive and CheckoutCompleted every locked contact is unlocked. On
// SubscriptionEnded the oldest quota contacts (by id, the creation-order key) end up unlocked and
// all newer ones locked; users with an unlimited quota are left alone.
func Decide(user model.User, contacts []model.ContactState, event Event, quota int) Decision {
	var d Decision
	switch event {
	case SubscriptionActive, CheckoutCompleted:
		for _, c := range contacts {
			if c.Locked {
				d.Unlock = append(d.Unlock, c.Id)
			}
		}
	case SubscriptionEnded:
		if user.Unlimited() || len(contacts) <= quota {
			return d
		}
		ordered := make([]model.ContactState, len(contacts))
		copy(ordered, contacts)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Id < ordered[j].Id })
		for i, c := range ordered {
			keep := i < quota
			switch {
			case keep && c.Locked:
				d.Unlock = append(d.Unlock, c.Id)
			case !keep && !c.Locked:
				d.Lock = append(d.Lock, c.Id)
			}
		}
	}
	return d
}

// StateOf reports the lock state of a contact set.
func StateOf(contacts []model.ContactState) State {
	for _, c := range contacts {
		if c.Locked {
			return PartiallyLocked
		}
	}
	return UnlockedAll
}

// Admit reports whether a newly created contact may start unlocked. Free users that already have
// quota unlocked contacts get new contacts locked.
func Admit(user model.User, unlocked, quota int) bool {
	if user.Plan != model.PlanFree {
		return true
	}
	return unlocked < quota
}

// PlanAfter returns the plan status a user holds after event.
func PlanAfter(user model.User, event Event) model.PlanStatus {
	if user.Unlimited() {
		return user.Plan
	}
	switch event {
	case SubscriptionActive, CheckoutCompleted:
		return model.PlanSubscribed
	case SubscriptionEnded:
		return model.PlanFree
	}
	return user.Plan
}
