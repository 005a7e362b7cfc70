package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// SvixScheme verifies identity-provider deliveries with the Svix library.
// Both the svix-* and the unbranded webhook-* header names are accepted.
type SvixScheme struct{}

func (SvixScheme) Name() string { return "svix" }

func (SvixScheme) Extract(h http.Header) Headers {
	first := func(names ...string) string {
		for _, name := range names {
			if v := strings.TrimSpace(h.Get(name)); v != "" {
				return v
			}
		}
		return ""
	}
	return Headers{
		ID:        first("svix-id", "webhook-id"),
		Timestamp: first("svix-timestamp", "webhook-timestamp"),
		Signature: first("svix-signature", "webhook-signature"),
	}
}

func (SvixScheme) Bind(secret string) (Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if strings.TrimPrefix(secret, "whsec_") == "" {
		return nil, errors.New("svix webhook secret is required")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decoding svix webhook secret: %w", err)
	}
	return svixAuthenticator{wh: wh}, nil
}

type svixAuthenticator struct {
	wh *svix.Webhook
}

// Authenticate leaves the freshness window to the Verifier, whose tolerance is
// configurable; the library's own window is fixed.
func (a svixAuthenticator) Authenticate(h Headers, body []byte, _ time.Duration) (time.Time, error) {
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return time.Time{}, AuthenticityError(ReasonMissingHeader, errors.New("svix id, timestamp, and signature headers are required"))
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, AuthenticityError(ReasonMalformedHeader, fmt.Errorf("invalid timestamp: %w", err))
	}
	if err := a.wh.VerifyIgnoringTimestamp(body, svixHeaders(h)); err != nil {
		return time.Time{}, AuthenticityError(ReasonSignatureMismatch, err)
	}
	return time.Unix(ts, 0).UTC(), nil
}

func (a svixAuthenticator) Sign(h Headers, signedAt time.Time, body []byte) (Headers, error) {
	sig, err := a.wh.Sign(h.ID, signedAt, body)
	if err != nil {
		return h, fmt.Errorf("svix sign: %w", err)
	}
	h.Timestamp = strconv.FormatInt(signedAt.Unix(), 10)
	h.Signature = sig
	return h, nil
}

func svixHeaders(h Headers) http.Header {
	out := http.Header{}
	out.Set("svix-id", h.ID)
	out.Set("svix-timestamp", h.Timestamp)
	out.Set("svix-signature", h.Signature)
	return out
}
