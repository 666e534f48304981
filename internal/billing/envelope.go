// Package billing turns billing provider webhooks into normalized entitlement events.
//
// The provider envelope follows Stripe's event shape. Nothing outside this package looks at
// provider specific fields.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
)

// ErrMalformedPayload is returned for bodies that are not a provider event.
var ErrMalformedPayload = errors.New("malformed billing event payload")

// Envelope is the subset of a provider event this service reads.
type Envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			Customer string `json:"customer"`
			Status   string `json:"status"`
			Mode     string `json:"mode"`
		} `json:"object"`
	} `json:"data"`
}

// Normalized is a provider event reduced to what the entitlement engine consumes.
type Normalized struct {
	EventID    string
	Customer   string
	Event      entitlement.Event
	OccurredAt time.Time
}

const (
	typeSubscriptionCreated = "customer.subscription.created"
	typeSubscriptionUpdated = "customer.subscription.updated"
	typeSubscriptionDeleted = "customer.subscription.deleted"
	typeCheckoutCompleted   = "checkout.session.completed"
)

// ParseEnvelope decodes a webhook body.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	return env, nil
}

// Normalize maps an envelope onto an entitlement event. The boolean is false for event types
// and subscription statuses that do not affect entitlements.
func Normalize(env Envelope) (Normalized, bool) {
	n := Normalized{EventID: env.ID, Customer: env.Data.Object.Customer}
	if env.Created > 0 {
		n.OccurredAt = time.Unix(env.Created, 0).UTC()
	}
	switch env.Type {
	case typeSubscriptionCreated:
		n.Event = entitlement.SubscriptionActive
	case typeSubscriptionUpdated:
		switch env.Data.Object.Status {
		case "active", "trialing":
			n.Event = entitlement.SubscriptionActive
		case "canceled", "unpaid", "past_due", "incomplete_expired":
			n.Event = entitlement.SubscriptionEnded
		default:
			return n, false
		}
	case typeSubscriptionDeleted:
		n.Event = entitlement.SubscriptionEnded
	case typeCheckoutCompleted:
		if mode := env.Data.Object.Mode; mode != "" && mode != "subscription" {
			return n, false
		}
		n.Event = entitlement.CheckoutCompleted
	default:
		return n, false
	}
	return n, n.Customer != ""
}
