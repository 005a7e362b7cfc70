package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
)

// DefaultTolerance is the allowed clock skew between signing and receipt.
const DefaultTolerance = 5 * time.Minute

type VerifierOptions struct {
	Tolerance time.Duration
	Logger    *logger.Logger
	Metrics   *metrics.WebhookMetrics
}

// Verifier checks the signature and freshness of one provider's deliveries.
type Verifier struct {
	provider  enums.WebhookProvider
	scheme    Scheme
	auth      Authenticator
	tolerance time.Duration
	logg      *logger.Logger
	metrics   *metrics.WebhookMetrics
}

// NewVerifier fails when the secret is missing or cannot be decoded; callers
// treat that as a fatal configuration error.
func NewVerifier(provider enums.WebhookProvider, scheme Scheme, secret string, opts VerifierOptions) (*Verifier, error) {
	if scheme == nil {
		return nil, errors.New("signature scheme is required")
	}
	auth, err := scheme.Bind(secret)
	if err != nil {
		return nil, fmt.Errorf("%s verifier: %w", provider, err)
	}
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		provider:  provider,
		scheme:    scheme,
		auth:      auth,
		tolerance: tolerance,
		logg:      opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

func (v *Verifier) Provider() enums.WebhookProvider { return v.provider }

func (v *Verifier) Scheme() Scheme { return v.scheme }

// Configured reports whether the verifier holds a usable secret.
func (v *Verifier) Configured() bool { return v != nil && v.auth != nil }

// Verify authenticates the raw body and rejects timestamps outside the
// tolerance window in either direction.
func (v *Verifier) Verify(ctx context.Context, env Envelope) (VerifiedEnvelope, error) {
	signedAt, err := v.auth.Authenticate(env.Headers, env.Body, v.tolerance)
	if err != nil {
		return VerifiedEnvelope{}, v.reject(ctx, err)
	}

	now := time.Now()
	skew := now.Sub(signedAt)
	if skew > v.tolerance || skew < -v.tolerance {
		return VerifiedEnvelope{}, v.reject(ctx, AuthenticityError(ReasonStaleTimestamp, fmt.Errorf("timestamp %s outside %s window", signedAt.Format(time.RFC3339), v.tolerance)))
	}

	env.Body = append([]byte(nil), env.Body...)
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = now.UTC()
	}
	return VerifiedEnvelope{env: env, signedAt: signedAt, verified: true}, nil
}

// Sign builds the headers a provider would send for body. Used by fixtures and
// local replay tooling.
func (v *Verifier) Sign(h Headers, signedAt time.Time, body []byte) (Headers, error) {
	return v.auth.Sign(h, signedAt, body)
}

func (v *Verifier) reject(ctx context.Context, err error) error {
	reason := ReasonMalformedHeader
	if typed, ok := AsError(err); ok {
		reason = typed.Reason
	} else {
		err = AuthenticityError(reason, err)
	}
	v.metrics.IncRejection(string(v.provider), reason)
	if v.logg != nil {
		logCtx := v.logg.WithFields(ctx, map[string]any{
			"provider": string(v.provider),
			"scheme":   v.scheme.Name(),
			"reason":   reason,
			"security": true,
			"error":    err.Error(),
		})
		v.logg.Warn(logCtx, "webhook.authenticity_rejected")
	}
	return err
}
