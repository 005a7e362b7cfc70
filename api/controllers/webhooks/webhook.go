package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/projectdash/dashboard-backend/api/responses"
	webhookcore "github.com/projectdash/dashboard-backend/internal/webhooks"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	pkgerrors "github.com/projectdash/dashboard-backend/pkg/errors"
	"github.com/projectdash/dashboard-backend/pkg/logger"
)

// DefaultMaxBodyBytes caps a delivery body when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Processor runs a delivery through verification, decoding and reconciliation.
type Processor interface {
	Source(provider enums.WebhookProvider) (webhookcore.Source, bool)
	Process(ctx context.Context, env webhookcore.Envelope) (webhookcore.Result, error)
}

type ackResponse struct {
	Outcome   string `json:"outcome"`
	AccountID string `json:"account_id,omitempty"`
}

// Webhook handles deliveries for one provider. The body is read unparsed so
// the signature is computed over the exact bytes received.
func Webhook(provider enums.WebhookProvider, proc Processor, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if proc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}
		src, ok := proc.Source(provider)
		if !ok || src.Verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "webhook provider not enabled"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		env := webhookcore.Envelope{
			Provider:   provider,
			Headers:    src.Verifier.Scheme().Extract(r.Header),
			Body:       body,
			ReceivedAt: time.Now().UTC(),
		}
		res, err := proc.Process(ctx, env)
		if err != nil {
			responses.WriteError(ctx, logg, w, webhookcore.ToHTTPError(err))
			return
		}
		responses.WriteSuccess(w, ackResponse{Outcome: string(res.Outcome), AccountID: res.AccountID})
	}
}
