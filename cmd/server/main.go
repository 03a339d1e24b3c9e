package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookrelay/engine/internal/api"
	"github.com/hookrelay/engine/internal/config"
	"github.com/hookrelay/engine/internal/dispatch"
	"github.com/hookrelay/engine/internal/live"
	"github.com/hookrelay/engine/internal/resilience"
	"github.com/hookrelay/engine/internal/scheduler"
	"github.com/hookrelay/engine/internal/store"
	"github.com/hookrelay/engine/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	if closer, ok := st.(interface{ Close() }); ok {
		defer closer.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("connected to Redis")
	}

	hub := live.NewHub(logger)
	go hub.Run()

	var w *worker.Worker
	handler := func(ctx context.Context, id string) error { return w.Attempt(ctx, id) }

	var sched scheduler.Scheduler
	if redisClient != nil {
		sched = scheduler.NewRedis(redisClient, cfg.WorkerConcurrency, handler, logger)
	} else {
		sched = scheduler.NewLocal(cfg.WorkerConcurrency, handler, logger)
	}

	workerCfg := worker.Config{
		SignatureHeader:    cfg.SignatureHeader,
		TimestampHeader:    cfg.TimestampHeader,
		DeliveryIDHeader:   cfg.DeliveryIDHeader,
		UserAgent:          cfg.UserAgent,
		Timeout:            cfg.Timeout,
		MaxPayloadSize:     cfg.MaxPayloadSize,
		AllowRedirects:     cfg.AllowRedirects,
		SignatureTolerance: cfg.SignatureTolerance,
		DefaultRetryConfig: cfg.DefaultRetryConfig,
	}
	w = worker.New(st, sched, workerCfg, logger)
	w.SetHub(hub)

	var breaker *resilience.CircuitBreaker
	if cfg.EnableCircuitBreaker && redisClient != nil {
		breaker = resilience.NewCircuitBreaker(redisClient, logger)
		w.SetCircuitBreaker(breaker)
	}
	if cfg.EnableRateLimiter && redisClient != nil {
		limiter := resilience.NewRateLimiter(redisClient, logger)
		w.SetRateLimiter(limiter, cfg.RateLimitPerSecond)
	}

	type starter interface {
		Start(ctx context.Context)
		Stop()
	}
	sched.(starter).Start(ctx)

	dispatcher := dispatch.New(st, sched, logger)
	dispatcher.BackpressureThreshold = cfg.BackpressureThreshold

	var depth depthReporter
	if d, ok := sched.(scheduler.Depther); ok {
		depth = d
	}

	router := api.NewRouter(api.Deps{
		Store:      st,
		Dispatcher: dispatcher,
		Worker:     w,
		Hub:        hub,
		Breaker:    breaker,
		Depth:      depth,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancel()
	sched.(starter).Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// depthReporter matches api.depther's unexported interface shape; declared
// here so main can pass either Scheduler implementation through without
// importing an unexported type.
type depthReporter interface {
	QueueDepth(ctx context.Context) (int64, error)
}

// buildStore picks the in-memory store by default, or the durable Postgres
// store when DATABASE_URL is configured.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL configured, using in-memory store")
		return store.New(), nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.RunMigrations(ctx, "internal/store/migrations"); err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL, migrations applied")
	return pg, nil
}
