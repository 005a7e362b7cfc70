// Package identity decodes identity-provider user lifecycle deliveries.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/projectdash/dashboard-backend/internal/webhooks"
)

const (
	KindUserCreated = "user.created"
	KindUserUpdated = "user.updated"
	KindUserDeleted = "user.deleted"
)

type userEvent struct {
	Type string `json:"type" validate:"required"`
	// Timestamp is in milliseconds.
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type userData struct {
	ID                    string         `json:"id"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// primaryEmail returns the primary address, falling back to the first one listed.
func (u userData) primaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID != "" && addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Decoder reads user lifecycle JSON. The event id comes from the signed
// message id header since the body does not carry one.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(requireEmailForUpserts, payloadWithKind{})
	return &Decoder{validate: v}
}

type payloadWithKind struct {
	Kind    string
	Payload webhooks.IdentityPayload
}

func requireEmailForUpserts(sl validator.StructLevel) {
	p := sl.Current().Interface().(payloadWithKind)
	if (p.Kind == KindUserCreated || p.Kind == KindUserUpdated) && p.Payload.Email == "" {
		sl.ReportError(p.Payload.Email, "Email", "Email", "required", "")
	}
}

func (d *Decoder) Decode(env webhooks.VerifiedEnvelope) (webhooks.Event, error) {
	if !env.Valid() {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, errors.New("envelope was not verified"))
	}
	body := env.Body()
	headers := env.Headers()
	if headers.ID == "" {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, errors.New("message id is required"))
	}

	var evt userEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, err)
	}
	if err := d.validate.Struct(evt); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, err)
	}
	if headers.Kind != "" && headers.Kind != evt.Type {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonKindMismatch, fmt.Errorf("declared kind %q, body kind %q", headers.Kind, evt.Type))
	}

	occurredAt := env.SignedAt()
	if evt.Timestamp > 0 {
		occurredAt = time.UnixMilli(evt.Timestamp).UTC()
	}
	ev := webhooks.Event{
		Provider:   env.Provider(),
		ID:         headers.ID,
		Kind:       evt.Type,
		OccurredAt: occurredAt,
		Body:       body,
	}

	switch evt.Type {
	case KindUserCreated, KindUserUpdated, KindUserDeleted:
	default:
		return ev, nil
	}

	if len(evt.Data) == 0 {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, errors.New("data is required"))
	}
	var user userData
	if err := json.Unmarshal(evt.Data, &user); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMalformedBody, err)
	}
	payload := webhooks.IdentityPayload{UserID: user.ID, Email: user.primaryEmail()}
	if err := d.validate.Struct(payloadWithKind{Kind: evt.Type, Payload: payload}); err != nil {
		return webhooks.Event{}, webhooks.DecodeError(webhooks.ReasonMissingField, err)
	}
	ev.Payload = payload
	return ev, nil
}
