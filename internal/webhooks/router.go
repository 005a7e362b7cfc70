package webhooks

import (
	"context"
	"fmt"
	"sort"

	"github.com/projectdash/dashboard-backend/internal/notifications"
	"github.com/projectdash/dashboard-backend/pkg/enums"
)

// Outcome is how a delivery was acknowledged.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeIgnored   Outcome = "ignored"
)

// Result is what a handler reports back to the pipeline.
type Result struct {
	Outcome   Outcome
	AccountID string
	// Notices are dispatched after the handler returns successfully.
	Notices []notifications.Notice
}

// Handler applies one event kind's effect.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Result, error)
}

type HandlerFunc func(ctx context.Context, ev Event) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) (Result, error) { return f(ctx, ev) }

// Route registers a handler for one (provider, kind) pair.
type Route struct {
	Provider enums.WebhookProvider
	Kind     string
	Handler  Handler
}

type routeKey struct {
	provider enums.WebhookProvider
	kind     string
}

// Router is a static dispatch table built once at construction.
type Router struct {
	table map[routeKey]Handler
}

// NewRouter fails on duplicate or incomplete registrations.
func NewRouter(routes ...Route) (*Router, error) {
	table := make(map[routeKey]Handler, len(routes))
	for _, route := range routes {
		if !route.Provider.IsValid() {
			return nil, fmt.Errorf("route %q: invalid provider %q", route.Kind, route.Provider)
		}
		if route.Kind == "" {
			return nil, fmt.Errorf("route for %s: kind is required", route.Provider)
		}
		if route.Handler == nil {
			return nil, fmt.Errorf("route %s/%s: handler is required", route.Provider, route.Kind)
		}
		key := routeKey{provider: route.Provider, kind: route.Kind}
		if _, exists := table[key]; exists {
			return nil, fmt.Errorf("route %s/%s registered twice", route.Provider, route.Kind)
		}
		table[key] = route.Handler
	}
	return &Router{table: table}, nil
}

// Route returns the handler for ev, or a RoutingMiss error.
func (r *Router) Route(ev Event) (Handler, error) {
	if r != nil {
		if h, ok := r.table[routeKey{provider: ev.Provider, kind: ev.Kind}]; ok {
			return h, nil
		}
	}
	return nil, RoutingMiss(string(ev.Provider), ev.Kind)
}

// Kinds lists the registered kinds for a provider, sorted.
func (r *Router) Kinds(provider enums.WebhookProvider) []string {
	if r == nil {
		return nil
	}
	kinds := []string{}
	for key := range r.table {
		if key.provider == provider {
			kinds = append(kinds, key.kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}
