package webhooks

import (
	"time"

	"github.com/projectdash/dashboard-backend/pkg/enums"
)

// Headers are the transport values a scheme reads from a delivery.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
	// Kind is the event kind declared outside the body, when the provider sends one.
	Kind string
}

// Envelope is a raw, untrusted delivery. Body must be the exact bytes received.
type Envelope struct {
	Provider   enums.WebhookProvider
	Headers    Headers
	Body       []byte
	ReceivedAt time.Time
}

// VerifiedEnvelope is an envelope whose signature and freshness checks passed.
// Only Verifier.Verify produces one.
type VerifiedEnvelope struct {
	env      Envelope
	signedAt time.Time
	verified bool
}

func (v VerifiedEnvelope) Provider() enums.WebhookProvider { return v.env.Provider }

func (v VerifiedEnvelope) Headers() Headers { return v.env.Headers }

// Body returns a copy of the verified bytes.
func (v VerifiedEnvelope) Body() []byte {
	out := make([]byte, len(v.env.Body))
	copy(out, v.env.Body)
	return out
}

func (v VerifiedEnvelope) SignedAt() time.Time { return v.signedAt }

func (v VerifiedEnvelope) ReceivedAt() time.Time { return v.env.ReceivedAt }

// Valid reports whether the value came from a successful verification.
func (v VerifiedEnvelope) Valid() bool { return v.verified }
