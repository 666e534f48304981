package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/metrics"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// Outcome tells the caller what happened to a delivered event. All outcomes are acknowledged to
// the provider; only errors cause a retry.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeUnknownCustomer Outcome = "unknown_customer"
	OutcomeStale           Outcome = "stale"
)

// CustomerLookup resolves a provider customer id to a user.
type CustomerLookup interface {
	UserByBillingCustomer(ctx context.Context, customer string) (*model.User, error)
}

// Applier applies a normalized event to a user.
type Applier interface {
	Apply(ctx context.Context, userID int64, event entitlement.Event, occurredAt time.Time) (entitlement.Result, error)
}

// Reconciler handles webhook deliveries. Every delivery may be a replay: the entitlement changes
// it triggers are idempotent set operations, and out-of-order deliveries are detected by the
// event timestamp.
type Reconciler struct {
	users   CustomerLookup
	applier Applier
	log     *logger.Logger
}

func NewReconciler(users CustomerLookup, applier Applier, log *logger.Logger) *Reconciler {
	return &Reconciler{users: users, applier: applier, log: log.With("component", "billing")}
}

// Handle processes one raw webhook body.
func (r *Reconciler) Handle(ctx context.Context, payload []byte) (Outcome, error) {
	env, err := ParseEnvelope(payload)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("invalid", "rejected").Inc()
		return "", err
	}
	outcome, err := r.handle(ctx, env)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(env.Type, "error").Inc()
		return "", err
	}
	metrics.WebhookEvents.WithLabelValues(env.Type, string(outcome)).Inc()
	return outcome, nil
}

func (r *Reconciler) handle(ctx context.Context, env Envelope) (Outcome, error) {
	normalized, ok := Normalize(env)
	if !ok {
		r.log.Debug("Ignoring billing event", "event_id", env.ID, "type", env.Type, "status", env.Data.Object.Status)
		return OutcomeIgnored, nil
	}

	user, err := r.users.UserByBillingCustomer(ctx, normalized.Customer)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("Billing event for unknown customer", "event_id", env.ID, "customer", normalized.Customer)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return "", fmt.Errorf("look up customer %s: %w", normalized.Customer, err)
	}

	result, err := r.applier.Apply(ctx, user.Id, normalized.Event, normalized.OccurredAt)
	if err != nil {
		return "", err
	}
	if result.Stale {
		return OutcomeStale, nil
	}
	r.log.Info("Billing event applied", "event_id", env.ID, "type", env.Type, "user_id", user.Id)
	return OutcomeApplied, nil
}
