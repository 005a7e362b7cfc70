package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/projectdash/dashboard-backend/api/responses"
	"github.com/projectdash/dashboard-backend/pkg/config"
	pkgerrors "github.com/projectdash/dashboard-backend/pkg/errors"
	"github.com/projectdash/dashboard-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VerifierCheck reports whether a provider's signing key is loaded.
type VerifierCheck interface {
	Configured() bool
}

// ReadyDeps are the dependencies /health/ready reports on.
type ReadyDeps struct {
	DB        Pinger
	Redis     Pinger
	Verifiers map[string]VerifierCheck
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dashboard-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails with 503 when a dependency is unreachable or a provider
// has no usable signing key.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ReadyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dashboard-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		ping := func(name string, p Pinger) {
			if p == nil {
				return
			}
			if err := p.Ping(ctx); err != nil {
				healthy = false
				checks[name] = "unavailable"
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "health.dependency_down")
				}
				return
			}
			checks[name] = "ok"
		}
		ping("database", deps.DB)
		ping("redis", deps.Redis)

		for provider, v := range deps.Verifiers {
			if v == nil || !v.Configured() {
				healthy = false
				checks["webhook_"+provider] = "unconfigured"
				continue
			}
			checks["webhook_"+provider] = "ok"
		}

		if !healthy {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "service not ready").WithDetails(checks))
			return
		}
		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
