package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"
)

// StripeSignatureHeader carries "t=<unix>,v1=<hex>[,v1=<hex>...]".
const StripeSignatureHeader = "Stripe-Signature"

// StripeScheme verifies payment-provider deliveries with the stripe-go
// webhook package.
type StripeScheme struct{}

func (StripeScheme) Name() string { return "stripe" }

func (StripeScheme) Extract(h http.Header) Headers {
	return Headers{Signature: strings.TrimSpace(h.Get(StripeSignatureHeader))}
}

func (StripeScheme) Bind(secret string) (Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return stripeAuthenticator{secret: secret}, nil
}

type stripeAuthenticator struct {
	secret string
}

func (a stripeAuthenticator) Authenticate(h Headers, body []byte, tolerance time.Duration) (time.Time, error) {
	if h.Signature == "" {
		return time.Time{}, stripeRejection(webhook.ErrNotSigned)
	}
	signedAt, err := stripeSignedAt(h.Signature)
	if err != nil {
		return time.Time{}, AuthenticityError(ReasonMalformedHeader, err)
	}
	if err := webhook.ValidatePayloadWithTolerance(body, h.Signature, a.secret, tolerance); err != nil {
		return time.Time{}, stripeRejection(err)
	}
	return signedAt, nil
}

func (a stripeAuthenticator) Sign(h Headers, signedAt time.Time, body []byte) (Headers, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    a.secret,
		Timestamp: signedAt,
	})
	h.Timestamp = strconv.FormatInt(signedAt.Unix(), 10)
	h.Signature = signed.Header
	return h, nil
}

func stripeRejection(err error) error {
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return AuthenticityError(ReasonMissingHeader, fmt.Errorf("%s header missing", StripeSignatureHeader))
	case errors.Is(err, webhook.ErrInvalidHeader):
		return AuthenticityError(ReasonMalformedHeader, err)
	case errors.Is(err, webhook.ErrTooOld):
		return AuthenticityError(ReasonStaleTimestamp, err)
	case errors.Is(err, webhook.ErrNoValidSignature):
		return AuthenticityError(ReasonSignatureMismatch, err)
	default:
		return AuthenticityError(ReasonMalformedHeader, err)
	}
}

// stripeSignedAt reads the t= element; the library keeps its parsed form private.
func stripeSignedAt(header string) (time.Time, error) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "t" {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return time.Unix(ts, 0).UTC(), nil
	}
	return time.Time{}, errors.New("signature header has no timestamp")
}
