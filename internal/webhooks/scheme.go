package webhooks

import (
	"net/http"
	"time"
)

// Scheme describes how one provider signs its deliveries.
type Scheme interface {
	Name() string
	// Extract reads the scheme's headers from a request.
	Extract(h http.Header) Headers
	// Bind checks the configured secret and returns an authenticator for it.
	Bind(secret string) (Authenticator, error)
}

// Authenticator checks and produces signatures for one endpoint secret.
type Authenticator interface {
	// Authenticate verifies the signature over the exact body and returns the
	// signing time. Failures are AuthenticityErrors.
	Authenticate(h Headers, body []byte, tolerance time.Duration) (time.Time, error)
	// Sign produces headers for body as the provider would send them.
	Sign(h Headers, signedAt time.Time, body []byte) (Headers, error)
}
