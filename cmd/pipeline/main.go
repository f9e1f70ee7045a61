package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadwire/leadwire/internal/alerts"
	"github.com/leadwire/leadwire/internal/config"
	"github.com/leadwire/leadwire/internal/debounce"
	"github.com/leadwire/leadwire/internal/dispatch"
	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/ingest"
	"github.com/leadwire/leadwire/internal/leads"
	"github.com/leadwire/leadwire/internal/msgstore"
	"github.com/leadwire/leadwire/internal/normalize"
	"github.com/leadwire/leadwire/internal/observability/metrics"
	"github.com/leadwire/leadwire/internal/qualify"
	"github.com/leadwire/leadwire/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	var repo leads.Repository
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = leads.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory lead repository")
		repo = leads.NewInMemoryRepository()
	}

	publisher, deliverer, cleanup, err := buildPublisher(cfg, redisClient, pool, logger)
	if err != nil {
		logger.Error("failed to build publisher", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	if deliverer != nil {
		go deliverer.Start(ctx)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	store := debounce.NewRedisTimerStore(redisClient)
	buffer := msgstore.NewRedisBuffer(redisClient, cfg.MessageTTL)
	scheduler := debounce.NewScheduler(store, buffer, publisher, cfg.DebounceDelayFor, pipelineMetrics, logger)

	qualifier := qualify.NewRetryingQualifier(
		qualify.NewStubQualifier(),
		qualify.RetryPolicy{
			MaxRetries: cfg.QualifyMaxRetries,
			Backoff:    cfg.QualifyBackoff,
			Timeout:    cfg.QualifyTimeout,
		},
		logger,
	)

	router := dispatch.NewRouter(
		store,
		buffer,
		repo,
		qualifier,
		publisher,
		alerts.NewLogAlerter(logger),
		logger,
		dispatch.WithQualifiedThreshold(cfg.QualifiedThreshold),
		dispatch.WithMetrics(pipelineMetrics),
	)

	poller := debounce.NewPoller(store, router, publisher, logger,
		debounce.WithPollInterval(cfg.PollInterval),
		debounce.WithDispatchWorkers(cfg.WorkerCount),
	)
	poller.Start(ctx)

	handler := ingest.NewHandler(normalize.NewNormalizer(logger), scheduler, publisher, logger)
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("pipeline listening", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	logger.Info("shutting down pipeline...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	cancel()
	waitCh := make(chan struct{})
	go func() {
		poller.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("pipeline stopped")
	case <-shutdownCtx.Done():
		logger.Error("poller shutdown timed out", "error", shutdownCtx.Err())
	}
}

// buildPublisher selects the event transport, optionally wrapped in the
// durable outbox when a database is available.
func buildPublisher(cfg *config.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (events.Publisher, *events.Deliverer, func(), error) {
	cleanup := func() {}

	var transport events.Publisher
	var deliverer *events.Deliverer
	switch cfg.EventBus {
	case "amqp":
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPUrl, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = func() { _ = amqpPub.Close() }
		transport = amqpPub
		if cfg.OutboxEnabled && pool != nil {
			store := events.NewOutboxStore(pool)
			deliverer = events.NewDeliverer(store, amqpPub, logger)
			return events.NewOutboxPublisher(store), deliverer, cleanup, nil
		}
	default:
		redisPub := events.NewRedisPublisher(redisClient, logger)
		transport = redisPub
		if cfg.OutboxEnabled && pool != nil {
			store := events.NewOutboxStore(pool)
			deliverer = events.NewDeliverer(store, redisPub, logger)
			return events.NewOutboxPublisher(store), deliverer, cleanup, nil
		}
	}
	return transport, nil, cleanup, nil
}
