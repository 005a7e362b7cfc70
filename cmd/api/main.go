package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/projectdash/dashboard-backend/api"
	"github.com/projectdash/dashboard-backend/api/controllers"
	"github.com/projectdash/dashboard-backend/api/routes"
	"github.com/projectdash/dashboard-backend/internal/accounts"
	"github.com/projectdash/dashboard-backend/internal/notifications"
	"github.com/projectdash/dashboard-backend/internal/webhooks"
	"github.com/projectdash/dashboard-backend/internal/webhooks/identity"
	"github.com/projectdash/dashboard-backend/internal/webhooks/payments"
	"github.com/projectdash/dashboard-backend/pkg/config"
	"github.com/projectdash/dashboard-backend/pkg/db"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
	"github.com/projectdash/dashboard-backend/pkg/migrate"
	"github.com/projectdash/dashboard-backend/pkg/pubsub"
	"github.com/projectdash/dashboard-backend/pkg/redis"
	"github.com/projectdash/dashboard-backend/pkg/stripe"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	escalator, alertsClient := newEscalator(context.Background(), cfg, logg)
	sender, err := newSender(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification sender", err)
		os.Exit(1)
	}
	guard, err := notifications.NewGuard(redisClient, cfg.Notifications.DedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create notice guard", err)
		os.Exit(1)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Logger:        logg,
		Metrics:       webhookMetrics,
		Sender:        sender,
		Escalator:     escalator,
		Guard:         guard,
		Workers:       cfg.Notifications.Workers,
		QueueSize:     cfg.Notifications.QueueSize,
		SendTimeout:   cfg.Notifications.SendTimeout,
		OperatorEmail: cfg.Notifications.OperatorEmail,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	var customers accounts.CustomerCreator
	if cfg.Payments.APIKey != "" {
		stripeClient, err := stripe.NewClient(context.Background(), cfg.Payments, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create payments client", err)
			os.Exit(1)
		}
		customers = stripeClient
	} else {
		logg.Warn(context.Background(), "payments api key not set, new users will not get a payment customer")
	}

	reconciler, err := accounts.NewReconciler(accounts.ReconcilerParams{
		DB:        dbClient,
		Repo:      accounts.NewRepository(dbClient.DB()),
		Customers: customers,
		Logger:    logg,
		RowLocks:  db.SupportsRowLocks(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create account reconciler", err)
		os.Exit(1)
	}
	eventRouter, err := webhooks.NewRouter(reconciler.Routes()...)
	if err != nil {
		logg.Error(context.Background(), "failed to build event router", err)
		os.Exit(1)
	}

	sources, err := newSources(cfg, logg, webhookMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to configure webhook verifiers", err)
		os.Exit(1)
	}
	pipeline, err := webhooks.NewPipeline(webhooks.PipelineParams{
		Logger:           logg,
		Metrics:          webhookMetrics,
		Router:           eventRouter,
		SideEffects:      dispatcher,
		Sources:          sources,
		ReconcileTimeout: cfg.Webhooks.ReconcileTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook pipeline", err)
		os.Exit(1)
	}

	verifierChecks := make(map[string]controllers.VerifierCheck, len(sources))
	for provider, src := range sources {
		verifierChecks[provider.String()] = src.Verifier
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := api.NewServer(addr, routes.NewRouter(routes.RouterParams{
		Config:   cfg,
		Logger:   logg,
		Pipeline: pipeline,
		Ready: controllers.ReadyDeps{
			DB:        dbClient,
			Redis:     redisClient,
			Verifiers: verifierChecks,
		},
	}))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// Stop accepting deliveries before draining queued notices.
	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, dispatcher.Close(shutdownCtx))
	if alertsClient != nil {
		shutdownErr = multierr.Append(shutdownErr, alertsClient.Close())
	}
	if shutdownErr != nil {
		logg.Error(ctx, "api server shutdown incomplete", shutdownErr)
		exitCode = 1
	} else {
		logg.Info(ctx, "api server shut down gracefully")
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newSources(cfg *config.Config, logg *logger.Logger, m *metrics.WebhookMetrics) (map[enums.WebhookProvider]webhooks.Source, error) {
	opts := webhooks.VerifierOptions{
		Tolerance: cfg.Webhooks.Tolerance,
		Logger:    logg,
		Metrics:   m,
	}
	sources := map[enums.WebhookProvider]webhooks.Source{}
	if cfg.Payments.Enabled {
		v, err := webhooks.NewVerifier(enums.WebhookProviderPayments, webhooks.StripeScheme{}, cfg.Payments.WebhookSecret, opts)
		if err != nil {
			return nil, err
		}
		sources[enums.WebhookProviderPayments] = webhooks.Source{Verifier: v, Decoder: payments.NewDecoder()}
	}
	if cfg.Identity.Enabled {
		v, err := webhooks.NewVerifier(enums.WebhookProviderIdentity, webhooks.SvixScheme{}, cfg.Identity.WebhookSecret, opts)
		if err != nil {
			return nil, err
		}
		sources[enums.WebhookProviderIdentity] = webhooks.Source{Verifier: v, Decoder: identity.NewDecoder()}
	}
	return sources, nil
}

// newEscalator publishes alerts to Pub/Sub when a topic is configured and
// falls back to error logs otherwise.
func newEscalator(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Escalator, *pubsub.Client) {
	if cfg.PubSub.AlertsTopic == "" {
		return notifications.NewLogEscalator(logg), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "pubsub alerts unavailable, escalating to logs", err)
		return notifications.NewLogEscalator(logg), nil
	}
	esc, err := notifications.NewPubSubEscalator(client, logg)
	if err != nil {
		_ = client.Close()
		logg.Error(ctx, "pubsub escalator unavailable, escalating to logs", err)
		return notifications.NewLogEscalator(logg), nil
	}
	return esc, client
}

func newSender(cfg *config.Config, logg *logger.Logger) (notifications.Sender, error) {
	if !cfg.SMTP.Configured() {
		logg.Warn(context.Background(), "smtp not configured, notices will be logged")
		return notifications.NewLogSender(logg), nil
	}
	return notifications.NewMailSender(cfg.SMTP, cfg.Notifications.SendTimeout)
}
