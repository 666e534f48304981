package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/metrics"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// Result describes what an Apply call changed.
type Result struct {
	UserID   int64
	Event    Event
	Locked   int
	Unlocked int
	State    State
	// Stale is set when the event was older than the last applied one and was ignored.
	Stale bool
}

// Applier persists entitlement decisions while holding the user's lock.
type Applier struct {
	locker store.Locker
	clock  clock.Clock
	quota  int
	log    *logger.Logger
}

// NewApplier returns an Applier enforcing quota.
func NewApplier(locker store.Locker, clk clock.Clock, quota int, log *logger.Logger) *Applier {
	return &Applier{locker: locker, clock: clk, quota: quota, log: log.With("component", "entitlement")}
}

// Quota returns the free-tier quota this Applier enforces.
func (a *Applier) Quota() int {
	return a.quota
}

// ErrNotSubscribed is returned by Cancel for users without a paid subscription.
var ErrNotSubscribed = errors.New("no active subscription to cancel")

// ErrNotResumable is returned by Resume for users that never had a paid subscription or whose
// subscription ended on the provider's side.
var ErrNotResumable = errors.New("no canceled subscription to resume")

// Apply brings the user's contacts and plan in line with event. occurredAt is the provider's
// timestamp for the event; events strictly older than the last applied one are ignored so that a
// late "ended" cannot undo a newer "active". A zero occurredAt means "now".
//
// Provider events settle the subscription, so a pending cancellation mark is cleared.
func (a *Applier) Apply(ctx context.Context, userID int64, event Event, occurredAt time.Time) (Result, error) {
	now := a.clock.Now()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	result := Result{UserID: userID, Event: event}
	err := a.locker.WithUser(ctx, userID, func(session store.Session) error {
		user := session.User()
		if user.BillingEventAt.Valid && occurredAt.Before(user.BillingEventAt.Time) {
			result.Stale = true
			return nil
		}
		if err := a.apply(ctx, session, event, occurredAt, now, &result); err != nil {
			return err
		}
		if user.CanceledAt.Valid {
			return session.SetCanceled(ctx, nil)
		}
		return nil
	})
	return a.finish(userID, event, occurredAt, result, err)
}

// Cancel ends the user's paid subscription on request of the user. The contacts beyond the quota
// are locked and the subscription stays resumable until the provider reports it ended.
func (a *Applier) Cancel(ctx context.Context, userID int64) (Result, error) {
	now := a.clock.Now()
	result := Result{UserID: userID, Event: SubscriptionEnded}
	err := a.locker.WithUser(ctx, userID, func(session store.Session) error {
		user := session.User()
		if user.BillingCustomer == nil || user.Plan != model.PlanSubscribed {
			return ErrNotSubscribed
		}
		if err := a.apply(ctx, session, SubscriptionEnded, now, now, &result); err != nil {
			return err
		}
		return session.SetCanceled(ctx, &now)
	})
	return a.finish(userID, SubscriptionEnded, now, result, err)
}

// Resume takes up a subscription the user canceled before. It never grants a plan to users that
// did not pay for one.
func (a *Applier) Resume(ctx context.Context, userID int64) (Result, error) {
	now := a.clock.Now()
	result := Result{UserID: userID, Event: SubscriptionActive}
	err := a.locker.WithUser(ctx, userID, func(session store.Session) error {
		if !session.User().Resumable() {
			return ErrNotResumable
		}
		if err := a.apply(ctx, session, SubscriptionActive, now, now, &result); err != nil {
			return err
		}
		return session.SetCanceled(ctx, nil)
	})
	return a.finish(userID, SubscriptionActive, now, result, err)
}

func (a *Applier) apply(ctx context.Context, session store.Session, event Event, occurredAt, now time.Time, result *Result) error {
	user := session.User()
	contacts, err := session.ContactStates(ctx)
	if err != nil {
		return err
	}
	decision := Decide(user, contacts, event, a.quota)
	if _, err := session.SetLocked(ctx, decision.Lock, true, now); err != nil {
		return err
	}
	if _, err := session.SetLocked(ctx, decision.Unlock, false, now); err != nil {
		return err
	}
	if err := session.SetPlan(ctx, PlanAfter(user, event), occurredAt); err != nil {
		return err
	}
	result.Locked, result.Unlocked = len(decision.Lock), len(decision.Unlock)
	result.State = stateAfter(contacts, decision)
	return nil
}

func (a *Applier) finish(userID int64, event Event, occurredAt time.Time, result Result, err error) (Result, error) {
	if err != nil {
		return result, fmt.Errorf("apply %s for user %d: %w", event, userID, err)
	}
	if result.Stale {
		a.log.Warn("Ignoring stale billing event", "user_id", userID, "event", event.String(), "occurred_at", occurredAt)
		return result, nil
	}
	metrics.ContactsLocked.Add(float64(result.Locked))
	metrics.ContactsUnlocked.Add(float64(result.Unlocked))
	a.log.Info("Entitlement applied",
		"user_id", userID,
		"event", event.String(),
		"locked", result.Locked,
		"unlocked", result.Unlocked,
		"state", string(result.State),
	)
	return result, nil
}

func stateAfter(contacts []model.ContactState, d Decision) State {
	lock := make(map[int64]bool, len(d.Lock)+len(d.Unlock))
	for _, id := range d.Lock {
		lock[id] = true
	}
	for _, id := range d.Unlock {
		lock[id] = false
	}
	after := make([]model.ContactState, len(contacts))
	for i, c := range contacts {
		if v, ok := lock[c.Id]; ok {
			c.Locked = v
		}
		after[i] = c
	}
	return StateOf(after)
}
