package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectdash/dashboard-backend/internal/notifications"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
)

// DefaultReconcileTimeout bounds the reconcile step once it has started.
const DefaultReconcileTimeout = 15 * time.Second

// SideEffects receives work that must not affect the acknowledgment.
type SideEffects interface {
	Dispatch(ctx context.Context, n notifications.Notice)
	Escalate(ctx context.Context, a notifications.Alert)
}

// Source pairs a provider's verifier with its decoder.
type Source struct {
	Verifier *Verifier
	Decoder  Decoder
}

type PipelineParams struct {
	Logger           *logger.Logger
	Metrics          *metrics.WebhookMetrics
	Router           *Router
	SideEffects      SideEffects
	Sources          map[enums.WebhookProvider]Source
	ReconcileTimeout time.Duration
}

// Pipeline runs verify, decode, route, reconcile, then dispatch.
type Pipeline struct {
	logg             *logger.Logger
	metrics          *metrics.WebhookMetrics
	router           *Router
	sideEffects      SideEffects
	sources          map[enums.WebhookProvider]Source
	reconcileTimeout time.Duration
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Router == nil {
		return nil, errors.New("router required")
	}
	if len(params.Sources) == 0 {
		return nil, errors.New("at least one webhook source is required")
	}
	sources := make(map[enums.WebhookProvider]Source, len(params.Sources))
	for provider, src := range params.Sources {
		if src.Verifier == nil || src.Decoder == nil {
			return nil, fmt.Errorf("source %s: verifier and decoder are required", provider)
		}
		if src.Verifier.Provider() != provider {
			return nil, fmt.Errorf("source %s: verifier is configured for %s", provider, src.Verifier.Provider())
		}
		sources[provider] = src
	}
	timeout := params.ReconcileTimeout
	if timeout <= 0 {
		timeout = DefaultReconcileTimeout
	}
	return &Pipeline{
		logg:             params.Logger,
		metrics:          params.Metrics,
		router:           params.Router,
		sideEffects:      params.SideEffects,
		sources:          sources,
		reconcileTimeout: timeout,
	}, nil
}

// Source returns the configured source for provider.
func (p *Pipeline) Source(provider enums.WebhookProvider) (Source, bool) {
	src, ok := p.sources[provider]
	return src, ok
}

// Process handles one delivery. A nil error means the sender should get a 2xx.
func (p *Pipeline) Process(ctx context.Context, env Envelope) (Result, error) {
	ctx = p.logg.WithProvider(ctx, string(env.Provider))

	src, ok := p.sources[env.Provider]
	if !ok {
		return Result{}, fmt.Errorf("webhook provider %q is not enabled", env.Provider)
	}

	verified, err := src.Verifier.Verify(ctx, env)
	if err != nil {
		p.metrics.IncDelivery(string(env.Provider), "", "rejected")
		return Result{}, err
	}

	ev, err := src.Decoder.Decode(verified)
	if err != nil {
		if _, typed := AsError(err); !typed {
			err = DecodeError(ReasonMalformedBody, err)
		}
		p.fail(ctx, env.Provider, env.Headers.ID, env.Headers.Kind, err)
		return Result{}, err
	}
	ctx = p.logg.WithEvent(ctx, ev.ID, ev.Kind)

	handler, err := p.router.Route(ev)
	if err != nil {
		p.metrics.IncDelivery(string(ev.Provider), ev.Kind, string(OutcomeIgnored))
		p.logg.Info(ctx, "webhook.ignored")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	res, err := p.reconcile(ctx, handler, ev)
	if err != nil {
		p.fail(ctx, ev.Provider, ev.ID, ev.Kind, err)
		return Result{}, err
	}

	if res.AccountID != "" {
		ctx = p.logg.WithAccountID(ctx, res.AccountID)
	}
	p.metrics.IncDelivery(string(ev.Provider), ev.Kind, string(res.Outcome))
	p.logg.Info(p.logg.WithField(ctx, "outcome", string(res.Outcome)), "webhook.processed")

	if p.sideEffects != nil {
		for _, n := range res.Notices {
			if n.Provider == "" {
				n.Provider = string(ev.Provider)
			}
			if n.EventID == "" {
				n.EventID = ev.ID
			}
			p.sideEffects.Dispatch(ctx, n)
		}
	}
	return res, nil
}

// reconcile runs detached from the request so a dropped connection cannot
// abort a transaction that has begun.
func (p *Pipeline) reconcile(ctx context.Context, handler Handler, ev Event) (res Result, err error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.reconcileTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.metrics.ObserveReconcile(string(ev.Provider), ev.Kind, time.Since(start))
		if r := recover(); r != nil {
			err = StorageFailure(ReasonStorage, fmt.Errorf("reconcile panic: %v", r))
		}
	}()

	res, err = handler.Handle(runCtx, ev)
	if err != nil {
		if _, typed := AsError(err); !typed {
			err = StorageFailure(ReasonStorage, err)
		}
		return Result{}, err
	}
	if res.Outcome == "" {
		res.Outcome = OutcomeApplied
	}
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, provider enums.WebhookProvider, eventID, kind string, err error) {
	typed, _ := AsError(err)
	outcome := "failed"
	reason := ""
	alert := false
	if typed != nil {
		outcome = string(typed.Kind)
		reason = typed.Reason
		alert = typed.Kind == KindDecode || (typed.Kind == KindReconciliation && !typed.Retryable)
	}
	p.metrics.IncDelivery(string(provider), kind, outcome)

	logCtx := p.logg.WithField(ctx, "reason", reason)
	if typed != nil && typed.Retryable {
		p.logg.Error(logCtx, "webhook.retryable_failure", err)
	} else {
		p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "webhook.failed")
	}

	if alert && p.sideEffects != nil {
		p.sideEffects.Escalate(ctx, notifications.Alert{
			Source:    "pipeline",
			Kind:      outcome,
			Reason:    reason,
			Provider:  string(provider),
			EventID:   eventID,
			EventKind: kind,
			Message:   err.Error(),
			At:        time.Now().UTC(),
		})
	}
}
