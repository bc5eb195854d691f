package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bankcore/internal/api"
	"bankcore/internal/config"
	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/processor"
	"bankcore/internal/repository"
	"bankcore/internal/repository/memory"
	"bankcore/internal/repository/sqlite"
	"bankcore/internal/service"
	"bankcore/pkg/crypto"
	"bankcore/pkg/metrics"
)

const (
	appName = "bankcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("http_addr", cfg.HTTPAddr))

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	bus := events.NewBus(cfg.EventBufferSize, logger)

	collector := metrics.NewCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)

	accounts := processor.NewAccountService(store, bus, logger)
	ledger := processor.NewLedgerStore(logger)
	guard := processor.NewIdempotencyGuard(store, cfg.IdempotencyTTL, logger)
	holds := processor.NewHoldManager(store, bus, logger)
	limits := processor.NewLimitEnforcer(store)
	velocity := processor.NewVelocityChecker(store, cfg.VelocityBlockDuration, logger)
	fraud := processor.NewFraudScorer(store, bus, logger)

	orchestrator := processor.NewTransactionOrchestrator(
		store, bus, accounts, ledger, guard, holds, limits, velocity, fraud,
		processor.Config{
			LockTimeout:                cfg.LockTimeout,
			HoldTTL:                    cfg.HoldTTL,
			AllowProvisionalSettlement: cfg.AllowProvisionalSettlement,
		},
		logger,
	)

	notifications := setupNotificationService(cfg, logger)
	bus.Subscribe("notifications", notifications.EventHandler())
	bus.Subscribe("metrics", metricsHandler(collector))
	if cfg.AuditWebhookURL != "" {
		sink := events.NewWebhookSink(cfg.AuditWebhookURL)
		bus.Subscribe("audit-webhook", events.BreakerHandler("audit-webhook", sink, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go holds.RunSweeper(ctx, cfg.SweepInterval)
	go guard.RunPurger(ctx, cfg.SweepInterval)

	apiHandler := api.NewAPIHandler(orchestrator, accounts, collector, signer, logger)
	metricsServer := collector.StartServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)

	waitForShutdown(cfg, logger, httpServer, metricsServer, bus, notifications)
	logger.Info("Application shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, func() error, error) {
	if cfg.DatabasePath == "" {
		logger.Info("Using in-memory store")
		return memory.NewStore(), func() error { return nil }, nil
	}

	logger.Info("Opening SQLite store", slog.String("path", cfg.DatabasePath))
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func setupNotificationService(cfg *config.Config, logger *slog.Logger) *service.NotificationService {
	emailService := &service.MockEmailService{}
	smsService := &service.MockSMSService{}
	pushService := &service.MockPushService{}
	slackService := &service.MockSlackService{}

	return service.NewNotificationService(
		emailService,
		smsService,
		pushService,
		slackService,
		cfg.NotificationWorkers,
		logger,
	)
}

// metricsHandler folds post-commit events into the Prometheus collector so
// the processing path stays free of metrics plumbing.
func metricsHandler(collector *metrics.Collector) events.Handler {
	return func(ctx context.Context, event domain.Event) error {
		switch payload := event.Payload.(type) {
		case domain.BalanceUpdatedPayload:
			collector.SetAccountBalance(payload.AccountID, payload.Currency, payload.NewBalance)
		case domain.FraudAlertPayload:
			collector.ObserveRiskScore(payload.RiskScore)
		case domain.HoldPayload:
			switch event.Type {
			case domain.EventHoldPlaced:
				collector.HoldPlaced(string(payload.HoldType))
			case domain.EventHoldReleased, domain.EventHoldCaptured, domain.EventHoldExpired:
				collector.HoldSettled(string(payload.HoldType))
			}
		}
		return nil
	}
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	cfg *config.Config,
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	bus *events.Bus,
	notifications *service.NotificationService,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := bus.Shutdown(ctx); err != nil {
		logger.Error("Event bus shutdown failed", slog.String("error", err.Error()))
	}

	if err := notifications.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
}
