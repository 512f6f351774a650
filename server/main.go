package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/icoforge/icoforge/internal/config"
	"github.com/icoforge/icoforge/internal/database"
	"github.com/icoforge/icoforge/internal/http/handlers"
	"github.com/icoforge/icoforge/internal/http/routes"
	"github.com/icoforge/icoforge/internal/services/metrics"
	"github.com/icoforge/icoforge/internal/services/pipeline"
	"github.com/icoforge/icoforge/internal/services/queue"
	"github.com/icoforge/icoforge/internal/services/ratelimit"
	"github.com/icoforge/icoforge/internal/services/sanitizer"
	"github.com/icoforge/icoforge/internal/services/workerpool"
)

func main() {
	// Initialize logger
	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect Postgres. A down database degrades rate limiting to the
	// in-memory store and disables metrics; conversions keep running.
	db, err := database.Connect(cfg.Database.URL, logger)
	if err != nil {
		logger.Warn("Failed to connect database, running degraded", zap.Error(err))
		db = nil
	}

	// Rate limiting
	limiterStore := buildRateLimitStore(cfg, db, logger)
	limiter := ratelimit.New(limiterStore, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests,
		cfg.RateLimit.SweepInterval, logger)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go limiter.StartSweeper(sweepCtx)

	// Metrics
	var metricsStore metrics.Store = metrics.NoopStore{}
	if db != nil {
		metricsStore = metrics.NewPostgresStore(db)
	}
	sink := metrics.NewSink(metricsStore, logger)

	// Conversion pipeline, queue and worker pool
	converter := pipeline.New(logger)
	jobQueue := queue.New(cfg.Queue.MaxPending, cfg.Queue.JobTimeout, logger)
	pool := workerpool.New(jobQueue, converter, cfg.Queue.WorkerCount, logger)
	pool.Start()

	// Handlers
	san := sanitizer.New(logger)
	convertHandler := handlers.NewConvertHandler(san, jobQueue, sink, logger, cfg)
	healthHandler := handlers.NewHealthHandler(db, jobQueue, pool, logger)
	adminHandler := handlers.NewAdminHandler(metricsStore, logger)

	router := routes.NewRouter(convertHandler, healthHandler, adminHandler, limiter, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	// Start server
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.Int("workers", cfg.Queue.WorkerCount))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop accepting requests, then drain the queue and workers.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	jobQueue.Shutdown()
	pool.Shutdown()
	stopSweeper()

	if db != nil {
		db.Close()
	}

	logger.Info("Server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	return cfg.Build()
}

// buildRateLimitStore selects the windowed counter backend. Postgres is the
// default; redis suits multi-instance deployments; memory is for local runs
// and the fallback when the database is unreachable.
func buildRateLimitStore(cfg *config.Config, db *sqlx.DB, logger *zap.Logger) ratelimit.Store {
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedisStore(client)
	case "memory":
		return ratelimit.NewMemoryStore()
	default:
		if db == nil {
			logger.Warn("No database for rate limiting, using in-memory store")
			return ratelimit.NewMemoryStore()
		}
		return ratelimit.NewPostgresStore(db)
	}
}
