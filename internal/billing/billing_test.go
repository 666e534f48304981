package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store/storetest"
)

var now = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func event(typ, customer, status string, created time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_%d",
		"type": %q,
		"created": %d,
		"data": {"object": {"customer": %q, "status": %q}}
	}`, created.Unix(), typ, created.Unix(), customer, status))
}

// TestNormalize checks the mapping of provider event types and statuses.
func TestNormalize(t *testing.T) {
	cases := []struct {
		typ    string
		status string
		event  entitlement.Event
		ok     bool
	}{
		{"customer.subscription.created", "active", entitlement.SubscriptionActive, true},
		{"customer.subscription.updated", "active", entitlement.SubscriptionActive, true},
		{"customer.subscription.updated", "trialing", entitlement.SubscriptionActive, true},
		{"customer.subscription.updated", "canceled", entitlement.SubscriptionEnded, true},
		{"customer.subscription.updated", "unpaid", entitlement.SubscriptionEnded, true},
		{"customer.subscription.updated", "past_due", entitlement.SubscriptionEnded, true},
		{"customer.subscription.updated", "incomplete_expired", entitlement.SubscriptionEnded, true},
		{"customer.subscription.updated", "incomplete", 0, false},
		{"customer.subscription.deleted", "canceled", entitlement.SubscriptionEnded, true},
		{"checkout.session.completed", "complete", entitlement.CheckoutCompleted, true},
		{"invoice.paid", "paid", 0, false},
	}
	for _, c := range cases {
		env, err := ParseEnvelope(event(c.typ, "cus_1", c.status, now))
		require.NoError(t, err)
		n, ok := Normalize(env)
		assert.Equal(t, c.ok, ok, c.typ+"/"+c.status)
		if c.ok {
			assert.Equal(t, c.event, n.Event, c.typ+"/"+c.status)
			assert.Equal(t, "cus_1", n.Customer)
			assert.Equal(t, now, n.OccurredAt)
		}
	}
}

// TestNormalizeWithoutCustomer expects events without a customer to be ignored.
func TestNormalizeWithoutCustomer(t *testing.T) {
	env, err := ParseEnvelope(event("customer.subscription.deleted", "", "canceled", now))
	require.NoError(t, err)
	_, ok := Normalize(env)
	assert.False(t, ok)
}

// TestParseEnvelopeInvalid expects garbage to be rejected.
func TestParseEnvelopeInvalid(t *testing.T) {
	for _, body := range []string{"", "not JSON", "{}"} {
		_, err := ParseEnvelope([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedPayload, "request body: "+body)
	}
}

// TestVerifySignature checks valid, tampered and expired signatures. Signatures are checked
// against the wall clock, so they are made for the current time.
func TestVerifySignature(t *testing.T) {
	payload := event("customer.subscription.deleted", "cus_1", "canceled", now)
	signedAt := time.Now()
	header := SignatureHeader(payload, "whsec_test", signedAt)

	assert.NoError(t, VerifySignature(payload, header, "whsec_test"))
	assert.NoError(t, VerifySignature(payload, header+",v1=00ff", "whsec_test"))
	assert.NoError(t, VerifySignature(payload, SignatureHeader(payload, "whsec_test", signedAt.Add(-time.Minute)), "whsec_test"))
	assert.ErrorIs(t, VerifySignature(payload, header, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(append(payload, ' '), header, "whsec_test"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, SignatureHeader(payload, "whsec_test", signedAt.Add(-10*time.Minute)), "whsec_test"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "", "whsec_test"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=abc,v1=00", "whsec_test"), ErrInvalidSignature)
}

func setup(t *testing.T, contacts int) (*storetest.Memory, *Reconciler, int64) {
	m := storetest.New()
	customer := "cus_123"
	userID := m.AddUser(model.User{Name: "Dirk", Plan: model.PlanSubscribed, BillingCustomer: &customer})
	for i := 0; i < contacts; i++ {
		m.AddContact(model.Contact{UserId: userID, Name: fmt.Sprintf("Contact %d", i+1), Active: true})
	}
	applier := entitlement.NewApplier(m, clock.Fixed(now), entitlement.FreeQuota, logger.Nop())
	return m, NewReconciler(m, applier, logger.Nop()), userID
}

func countLocked(m *storetest.Memory, userID int64) int {
	n := 0
	for _, c := range m.ContactsOf(userID) {
		if c.Locked {
			n++
		}
	}
	return n
}

// TestHandleReplayAndReorder delivers a cancellation twice, then a stale activation and finally
// a newer activation.
func TestHandleReplayAndReorder(t *testing.T) {
	m, r, userID := setup(t, 25)
	ctx := context.Background()

	deleted := event("customer.subscription.deleted", "cus_123", "canceled", now)
	outcome, err := r.Handle(ctx, deleted)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 5, countLocked(m, userID))

	outcome, err = r.Handle(ctx, deleted)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 5, countLocked(m, userID))

	outcome, err = r.Handle(ctx, event("customer.subscription.updated", "cus_123", "active", now.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, 5, countLocked(m, userID))

	outcome, err = r.Handle(ctx, event("customer.subscription.updated", "cus_123", "active", now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Zero(t, countLocked(m, userID))
	assert.Equal(t, model.PlanSubscribed, m.User(userID).Plan)
}

// TestHandleUnknownCustomer expects the event to be acknowledged without changes.
func TestHandleUnknownCustomer(t *testing.T) {
	m, r, userID := setup(t, 25)
	outcome, err := r.Handle(context.Background(), event("customer.subscription.deleted", "cus_999", "canceled", now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownCustomer, outcome)
	assert.Zero(t, countLocked(m, userID))
}

// TestHandleIgnored expects unrelated events to be acknowledged without changes.
func TestHandleIgnored(t *testing.T) {
	m, r, userID := setup(t, 25)
	outcome, err := r.Handle(context.Background(), event("invoice.paid", "cus_123", "paid", now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, countLocked(m, userID))
}

// TestHandleMalformed expects a malformed body to be reported.
func TestHandleMalformed(t *testing.T) {
	_, r, _ := setup(t, 0)
	_, err := r.Handle(context.Background(), []byte("not JSON"))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
