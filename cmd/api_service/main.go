package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	inboundapp "github.com/orderpilot/dispatch_services/internal/inbound_service/app"
	inboundrepo "github.com/orderpilot/dispatch_services/internal/inbound_service/repository/postgres"
	jobapp "github.com/orderpilot/dispatch_services/internal/job_service/app"
	jobrepo "github.com/orderpilot/dispatch_services/internal/job_service/repository/postgres"
	"github.com/orderpilot/dispatch_services/internal/outbound_service/adapters/msgprovider"
	outboundapp "github.com/orderpilot/dispatch_services/internal/outbound_service/app"
	outboundrepo "github.com/orderpilot/dispatch_services/internal/outbound_service/repository/postgres"
	"github.com/orderpilot/dispatch_services/internal/platform/config"
	"github.com/orderpilot/dispatch_services/internal/platform/database"
	"github.com/orderpilot/dispatch_services/internal/platform/logger"
	"github.com/orderpilot/dispatch_services/internal/platform/messagebroker"
	httptransport "github.com/orderpilot/dispatch_services/internal/public_api_service/transport/http"

	"github.com/go-playground/validator/v10"
)

const (
	serviceName     = "api_service"
	shutdownTimeout = 30 * time.Second
)

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...", "port", cfg.APIServicePort, "metrics_port", cfg.APIServiceMetricsPort)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Database connection pool initialized")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("NATS connection initialized")

	// Outbound side: provider, repository, sender, adapters.
	provider := newProvider(cfg, appLogger)
	outboundRepository := outboundrepo.NewPgOutboundRepository(dbPool, appLogger)
	sender := outboundapp.NewSender(outboundRepository, provider, appLogger)
	dispatchAdapter := outboundapp.NewJobDispatchAdapter(sender)

	// Job side.
	jobRepository := jobrepo.NewPgJobRepository(dbPool, appLogger)
	stateGuard := jobapp.NewStateGuard(jobRepository, appLogger)
	coordinator := jobapp.NewDispatchCoordinator(jobRepository, stateGuard, appLogger)
	jobService := jobapp.NewJobService(
		jobRepository,
		stateGuard,
		coordinator,
		jobapp.NewActionDataResolver(),
		dispatchAdapter,
		appLogger,
	)

	// Inbound side: the API only records receipts and enqueues work; the
	// worker service consumes it.
	receiptRepository := inboundrepo.NewPgReceiptRepository(dbPool, appLogger)
	taskQueue := inboundapp.NewNATSTaskQueue(natsClient, appLogger)
	receiver := inboundapp.NewInboundReceiver(receiptRepository, taskQueue, appLogger)

	jobHandler := httptransport.NewJobHandler(jobService, appLogger, validator.New())
	webhookHandler := httptransport.NewWebhookHandler(receiver, sender, cfg.TwilioAuthToken, cfg.PublicBaseURL, appLogger)
	router := httptransport.NewRouter(jobHandler, webhookHandler, cfg.JWTAccessSecret, appLogger)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIServicePort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIServiceMetricsPort),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down HTTP servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("API server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service shut down gracefully.")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// newProvider selects the real messaging provider when credentials are
// configured, falling back to the in-memory mock for local development.
func newProvider(cfg *config.Config, appLogger *slog.Logger) msgprovider.Provider {
	if cfg.ProviderName == "twilio" && cfg.TwilioAccountSID != "" {
		return msgprovider.NewTwilioProvider(
			appLogger,
			cfg.TwilioAPIURL,
			cfg.TwilioAccountSID,
			cfg.TwilioAuthToken,
			cfg.TwilioFromNumber,
			cfg.PublicBaseURL+"/webhooks/status",
			&http.Client{Timeout: 15 * time.Second},
		)
	}
	appLogger.Warn("Messaging provider credentials not configured; using mock provider")
	return msgprovider.NewMockProvider(appLogger)
}
