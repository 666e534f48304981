package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature is returned when a webhook signature is missing, malformed, expired or
// does not match.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureTolerance is how far the signed timestamp may be from now.
const SignatureTolerance = 5 * time.Minute

// VerifySignature checks the provider's "t=<unix>,v1=<hex>" signature header of payload. Only the
// signature is checked here; the event itself is decoded by ParseEnvelope.
func VerifySignature(payload []byte, header, secret string) error {
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, SignatureTolerance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// SignatureHeader formats a header value for payload signed at the given time, as the provider
// would send it.
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}
