package webhooks

import (
	"time"

	"github.com/projectdash/dashboard-backend/pkg/enums"
)

// Event is a verified, decoded delivery.
type Event struct {
	Provider   enums.WebhookProvider
	ID         string
	Kind       string
	OccurredAt time.Time
	Body       []byte
	// Payload is PaymentPayload or IdentityPayload, nil for kinds the decoder does not know.
	Payload any
}

// PaymentPayload is the payment-provider object an event refers to.
type PaymentPayload struct {
	ObjectID    string `validate:"required"`
	CustomerID  string `validate:"required"`
	AmountCents int64  `validate:"gte=0"`
	Currency    string
}

// IdentityPayload is the identity-provider user an event refers to.
type IdentityPayload struct {
	UserID string `validate:"required"`
	Email  string `validate:"omitempty,email"`
}

func (e Event) PaymentPayload() (PaymentPayload, bool) {
	p, ok := e.Payload.(PaymentPayload)
	return p, ok
}

func (e Event) IdentityPayload() (IdentityPayload, bool) {
	p, ok := e.Payload.(IdentityPayload)
	return p, ok
}

// Decoder turns a verified envelope into an Event. Failures are DecodeErrors.
type Decoder interface {
	Decode(env VerifiedEnvelope) (Event, error)
}
