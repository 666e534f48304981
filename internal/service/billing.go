package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/billing"
	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
)

const (
	// SignatureHeader carries the webhook signature.
	SignatureHeader = "Stripe-Signature"

	maxWebhookBytes = 1 << 20
)

// billingWebhook receives events from the billing provider. It answers 200 once the event has
// been applied or deliberately ignored, 400 for bodies that will never be valid, and 500 when
// applying failed so that the provider delivers the event again.
//
// Example REST API call:
//
//	> curl http://localhost:8080/webhooks/billing --request "POST" --header "Content-Type: application/json" --data '{"id": "evt_1", "type": "customer.subscription.deleted", "created": 1717236000, "data": {"object": {"customer": "cus_1"}}}'
func (s *Server) billingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "could not read body"})
		return
	}
	if s.cfg.BillingWebhookSecret != "" {
		err := billing.VerifySignature(payload, c.GetHeader(SignatureHeader), s.cfg.BillingWebhookSecret)
		if err != nil {
			s.log.Warn("Rejected billing webhook", "error", err, "request_id", c.GetString("request_id"))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.webhookTimeout())
	defer cancel()
	outcome, err := s.billing.Handle(ctx, payload)
	switch {
	case errors.Is(err, billing.ErrMalformedPayload):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case err != nil:
		s.internalError(c, err)
	default:
		c.IndentedJSON(http.StatusOK, gin.H{"message": "ok", "outcome": outcome})
	}
}

func (s *Server) webhookTimeout() time.Duration {
	if s.cfg.WebhookTimeout > 0 {
		return s.cfg.WebhookTimeout
	}
	return 10 * time.Second
}

// cancelSubscription ends the calling user's paid subscription, locking the contacts beyond the
// free quota. Users without a subscription get 409.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/subscription/cancel --request "POST"
func (s *Server) cancelSubscription(c *gin.Context) {
	s.subscriptionChange(c, s.applier.Cancel)
}

// resumeSubscription takes up a subscription the calling user canceled and unlocks all contacts.
// Users without a canceled subscription get 409; a plan is only granted through the billing
// provider.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/subscription/resume --request "POST"
func (s *Server) resumeSubscription(c *gin.Context) {
	s.subscriptionChange(c, s.applier.Resume)
}

func (s *Server) subscriptionChange(c *gin.Context, change func(context.Context, int64) (entitlement.Result, error)) {
	result, err := change(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err, "")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{
		"state":    result.State,
		"locked":   result.Locked,
		"unlocked": result.Unlocked,
	})
}
