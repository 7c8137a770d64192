package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/briefing-platform/cmd/mainconfig"
	"github.com/wolfman30/briefing-platform/internal/analytics"
	"github.com/wolfman30/briefing-platform/internal/api/router"
	"github.com/wolfman30/briefing-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/dispatch"
	"github.com/wolfman30/briefing-platform/internal/http/handlers"
	"github.com/wolfman30/briefing-platform/internal/ledger"
	"github.com/wolfman30/briefing-platform/internal/observability/metrics"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting briefing API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	reportDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open reporting db: %w", err)
	}
	defer func() { _ = reportDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	repo, snapshots := bootstrap.BuildRepository(store.NewPostgres(pool), redisClient, cfg, logger)

	sender, err := bootstrap.BuildWhatsAppClient(cfg, logger)
	if err != nil {
		return err
	}

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &loaded
	}

	metricsHandler, briefingMetrics := setupMetrics()

	recorder := analytics.NewRecorder(pool)
	hooks := bootstrap.BuildCompletionHooks(cfg, bootstrap.CompletionDeps{Analytics: recorder, AWS: awsCfg}, logger)

	proc, err := processor.New(processor.Config{
		Repo:      repo,
		Ledger:    ledger.NewPostgresStore(pool),
		Sender:    sender,
		Hook:      hooks,
		Snapshots: snapshots,
		Metrics:   briefingMetrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	queue, err := bootstrap.BuildQueue(cfg, awsCfg)
	if err != nil {
		return err
	}
	worker, err := setupWorker(ctx, cfg, proc, queue, briefingMetrics, logger)
	if err != nil {
		return err
	}

	deps := map[string]router.Pinger{"postgres": pool}
	if redisClient != nil {
		deps["redis"] = redisPinger{redisClient}
	}
	handler := router.New(&router.Config{
		Logger: logger,
		WhatsApp: handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
			CountryCode: cfg.DefaultCountryCode,
			Publisher:   dispatch.NewPublisher(queue),
			Statuses:    repo,
			Logger:      logger,
		}),
		AdminBriefings: handlers.NewAdminBriefingsHandler(handlers.AdminBriefingsConfig{
			Service:     proc,
			Lookup:      repo,
			Reporter:    store.NewReporter(reportDB),
			Analytics:   recorder,
			CountryCode: cfg.DefaultCountryCode,
			Logger:      logger,
		}),
		AdminJWTSecret: cfg.AdminJWTSecret,
		MetricsHandler: metricsHandler,
		MetricsToken:   cfg.MetricsToken,
		Dependencies:   deps,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	waitForWorker(worker, logger)
	proc.Wait()
	return nil
}

// setupMetrics builds a private registry with process/runtime collectors and
// the briefing pipeline metrics.
func setupMetrics() (http.Handler, *metrics.BriefingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBriefingMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), m
}

// setupWorker starts the inbound consumer. It stops when ctx is cancelled.
func setupWorker(ctx context.Context, cfg *appconfig.Config, handler dispatch.Handler, queue dispatch.Queue, m *metrics.BriefingMetrics, logger *logging.Logger) (*dispatch.Worker, error) {
	worker, err := dispatch.NewWorker(handler, queue, m, logger,
		dispatch.WithWorkerCount(cfg.WorkerCount),
		dispatch.WithMaxAttempts(cfg.DispatchMaxAttempts),
	)
	if err != nil {
		return nil, err
	}
	worker.Start(ctx)
	return worker, nil
}

func waitForWorker(worker *dispatch.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("dispatch worker stopped")
	case <-time.After(10 * time.Second):
		logger.Warn("dispatch worker did not stop in time")
	}
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
