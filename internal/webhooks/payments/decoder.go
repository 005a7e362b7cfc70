// Package payments decodes payment-provider webhook deliveries.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v84"

	"github.com/projectdash/dashboard-backend/internal/webhooks"
)

// Event kinds with a registered effect.
const (
	KindPaymentSucceeded     = string(stripe.EventTypePaymentIntentSucceeded)
	KindPaymentFailed        = string(stripe.EventTypePaymentIntentPaymentFailed)
	KindInvoicePaid          = string(stripe.EventTypeInvoicePaid)
	KindInvoicePaymentFailed = string(stripe.EventTypeInvoicePaymentFailed)
	KindSubscriptionDeleted  = string(stripe.EventTypeCustomerSubscriptionDeleted)
)

type eventHeader struct {
	ID      string `validate:"required"`
	Type    string `validate:"required"`
	Created int64  `validate:"gt=0"`
}

type objectDecoder func(raw []byte) (webhooks.PaymentPayload, error)

// Decoder reads Stripe event JSON into webhooks.Event values.
type Decoder struct {
	validate *validator.Validate
	objects  map[string]objectDecoder
}

func NewDecoder() *Decoder {
	return &Decoder{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		objects: map[string]objectDecoder{
			KindPaymentSucceeded:     decodePaymentIntent,
			KindPaymentFailed:        decodePaymentIntent,
			KindInvoicePaid:          decodeInvoice,
			KindInvoicePaymentFailed: decodeInvoice,
			KindSubscriptionDeleted:  decodeSubscription,
		},
	}
}

func (d *Decoder) Decode(env webhooks.VerifiedEnvelope) (webhooks.Event, error) {
	if !env.Valid() {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, errors.New("envelope was not verified"))
	}
	body := env.Body()

	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, err)
	}
	header := eventHeader{ID: evt.ID, Type: string(evt.Type), Created: evt.Created}
	if err := d.validate.Struct(header); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, err)
	}

	declared := env.Headers()
	if declared.Kind != "" && declared.Kind != header.Type {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonKindMismatch, fmt.Errorf("declared kind %q, body kind %q", declared.Kind, header.Type))
	}
	if declared.ID != "" && declared.ID != header.ID {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonIDMismatch, fmt.Errorf("declared id %q, body id %q", declared.ID, header.ID))
	}

	ev := webhooks.Event{
		Provider:   env.Provider(),
		ID:         header.ID,
		Kind:       header.Type,
		OccurredAt: time.Unix(header.Created, 0).UTC(),
		Body:       body,
	}

	decode, known := d.objects[header.Type]
	if !known {
		return ev, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, errors.New("data.object is required"))
	}
	payload, err := decode(evt.Data.Raw)
	if err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, err)
	}
	ev.Payload = payload
	return ev, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func decodePaymentIntent(raw []byte) (webhooks.PaymentPayload, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return webhooks.PaymentPayload{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return webhooks.PaymentPayload{
		ObjectID:    pi.ID,
		CustomerID:  customerID(pi.Customer),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
	}, nil
}

func decodeInvoice(raw []byte) (webhooks.PaymentPayload, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return webhooks.PaymentPayload{}, fmt.Errorf("decode invoice: %w", err)
	}
	amount := inv.AmountPaid
	if amount == 0 {
		amount = inv.AmountDue
	}
	return webhooks.PaymentPayload{
		ObjectID:    inv.ID,
		CustomerID:  customerID(inv.Customer),
		AmountCents: amount,
		Currency:    string(inv.Currency),
	}, nil
}

func decodeSubscription(raw []byte) (webhooks.PaymentPayload, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return webhooks.PaymentPayload{}, fmt.Errorf("decode subscription: %w", err)
	}
	return webhooks.PaymentPayload{
		ObjectID:   sub.ID,
		CustomerID: customerID(sub.Customer),
		Currency:   string(sub.Currency),
	}, nil
}
