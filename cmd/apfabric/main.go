// Command apfabric runs the accounts-payable decision service: the HTTP
// API, the invoice pipeline and the background classifier trainer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	aphttp "github.com/apfabric/apfabric/internal/adapter/http"
	"github.com/apfabric/apfabric/internal/adapter/ledgercache"
	"github.com/apfabric/apfabric/internal/adapter/mistral"
	apnats "github.com/apfabric/apfabric/internal/adapter/nats"
	"github.com/apfabric/apfabric/internal/adapter/otel"
	"github.com/apfabric/apfabric/internal/adapter/postgres"
	"github.com/apfabric/apfabric/internal/adapter/ristretto"
	"github.com/apfabric/apfabric/internal/agent/duplicate"
	"github.com/apfabric/apfabric/internal/agent/glcode"
	"github.com/apfabric/apfabric/internal/agent/intake"
	"github.com/apfabric/apfabric/internal/agent/matching"
	"github.com/apfabric/apfabric/internal/agent/trust"
	"github.com/apfabric/apfabric/internal/agent/variance"
	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/logger"
	"github.com/apfabric/apfabric/internal/memory"
	"github.com/apfabric/apfabric/internal/port/events"
	"github.com/apfabric/apfabric/internal/port/reasoner"
	"github.com/apfabric/apfabric/internal/resilience"
	"github.com/apfabric/apfabric/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)
	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Persistence ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	cache, err := ristretto.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	store := ledgercache.New(postgres.NewStore(pool), cache, cfg.Cache.TTL)

	// --- Event stream (optional) ---
	var publisher events.Publisher
	if cfg.NATS.URL != "" {
		stream, err := apnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = stream.Close() }()
		publisher = stream
	} else {
		log.Info("nats disabled, run events will not be published")
	}

	// --- Reasoning service (optional) ---
	var (
		glReasoner reasoner.Reasoner
		extractor  reasoner.Extractor
	)
	if cfg.Reasoner.APIKey != "" {
		client := mistral.NewClient(cfg.Reasoner)
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		glReasoner = client
		extractor = client
	} else {
		log.Info("reasoner disabled, cascade terminates at the default account")
	}

	// --- Agents and services ---
	mem, err := memory.New()
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}

	classifier := glcode.NewClassifier(cfg.GL)
	intakeAgent := intake.New(cfg.Intake, mem, store)

	orch := service.NewOrchestrator(
		cfg.Pipeline, store, mem,
		intakeAgent,
		matching.New(cfg.Matching, store),
		glcode.New(cfg.GL, mem, classifier, glReasoner, logger.WithAgent(log, "gl_agent")),
		duplicate.New(cfg.Duplicate, store),
		trust.New(cfg.Trust, store),
		variance.New(cfg.Variance, store),
		publisher,
		metrics,
		log,
	)

	trainer := service.NewTrainer(store, classifier, log)
	trainer.TrainAsync(ctx)

	reporting := service.NewReporting(store, trainer, cfg.Pipeline.HistoryLimit)

	// --- HTTP ---
	handlers := aphttp.NewHandlers(orch, intakeAgent, trainer, reporting, store, extractor, log)
	router := aphttp.NewRouter(handlers, cfg.Server, cfg.Logging.Service)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
