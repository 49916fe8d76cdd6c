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
)

const (
	serviceName = "inbound_worker_service"
	queueGroup  = "inbound_worker_group"
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
	appLogger.Info("Starting service...",
		"metrics_port", cfg.InboundWorkerMetricsPort,
		"max_attempts", cfg.InboundMaxAttempts,
		"sweep_interval", cfg.InboundSweepInterval,
	)

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

	// Replies to merchants go out through the same outbound pipeline the API
	// uses, so acks share its idempotency guarantees.
	provider := newProvider(cfg, appLogger)
	outboundRepository := outboundrepo.NewPgOutboundRepository(dbPool, appLogger)
	sender := outboundapp.NewSender(outboundRepository, provider, appLogger)
	replyAdapter := outboundapp.NewReplyAdapter(sender)
	dispatchAdapter := outboundapp.NewJobDispatchAdapter(sender)

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

	receiptRepository := inboundrepo.NewPgReceiptRepository(dbPool, appLogger)
	correlationRepository := inboundrepo.NewPgCorrelationRepository(dbPool, appLogger)
	taskQueue := inboundapp.NewNATSTaskQueue(natsClient, appLogger)

	processor := inboundapp.NewTaskProcessor(
		receiptRepository,
		correlationRepository,
		jobService,
		replyAdapter,
		cfg.InboundMaxAttempts,
		cfg.InboundStaleAfter,
		cfg.MerchantReplyAckOn,
		appLogger,
	)
	consumer := inboundapp.NewTaskConsumer(natsClient, taskQueue, processor, cfg.InboundMaxAttempts, cfg.InboundRetryBase, appLogger)
	sweeper := inboundapp.NewSweeper(receiptRepository, taskQueue, cfg.InboundSweepInterval, cfg.InboundStaleAfter, appLogger)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.InboundWorkerMetricsPort),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		sub, err := consumer.Start(groupCtx, queueGroup)
		if err != nil {
			return fmt.Errorf("start task consumer: %w", err)
		}
		appLogger.Info("Task consumer started", "subject", inboundapp.TaskSubject, "queue_group", queueGroup)
		<-groupCtx.Done()
		if err := sub.Unsubscribe(); err != nil {
			appLogger.Warn("Failed to unsubscribe task consumer", "error", err)
		}
		return groupCtx.Err()
	})
	g.Go(func() error {
		appLogger.Info("Sweeper started", "interval", cfg.InboundSweepInterval)
		return sweeper.Run(groupCtx)
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
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
