package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iago/obra-back/internal/audit"
	"github.com/iago/obra-back/internal/cache"
	"github.com/iago/obra-back/internal/config"
	httpserver "github.com/iago/obra-back/internal/http"
	"github.com/iago/obra-back/internal/http/handlers"
	"github.com/iago/obra-back/internal/queue"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/service"
	"github.com/iago/obra-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[obra-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 100, MaxBackups: 5, MaxAge: 30}
		defer rotating.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, rotating))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeCloser := setupStore(ctx, cfg, logger)
	defer storeCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	auditLog := audit.NewFileLogger(cfg.AuditLogFile)
	defer auditLog.Close()

	clock := service.SystemClock(cfg.Location())
	reports := service.NewReportsService(store, service.ReportsConfig{
		Cache: cache.Config{
			TTL:        cfg.ReportCacheTTL(),
			MaxEntries: cfg.ReportCacheMaxEntries,
		},
		DefaultPageSize: cfg.ReportPageSize,
	}, clock)
	carry := service.NewCarryForwardService(store, cfg.WeekWrapMode, reports, auditLog, clock)

	api := handlers.NewAPI(handlers.Dependencies{
		Sites:        service.NewSitesService(store, reports, auditLog, clock),
		CarryForward: carry,
		Reports:      reports,
		Snapshots:    service.NewSnapshotsService(store, auditLog, clock),
		Rollovers:    service.NewRolloversService(store, producer, clock),
		WrapMode:     cfg.WeekWrapMode,
		Clock:        clock,
	})

	if cfg.AuthJWTSecret == "" {
		logger.Printf("AUTH_JWT_SECRET not configured, every request runs as the dev admin")
	}
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		Context:        ctx,
		API:            api,
		Logger:         logger,
		JWTSecret:      cfg.AuthJWTSecret,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(consumer, store, carry, logger)
		go processor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s wrap_mode=%s timezone=%s", cfg.Port, cfg.WeekWrapMode, cfg.Location())
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// setupStore prefers PostgreSQL, then MongoDB, and falls back to memory
// whenever a configured backend is unreachable.
func setupStore(ctx context.Context, cfg config.Config, logger *log.Logger) (repository.Store, func()) {
	if cfg.DatabaseURL != "" {
		if cfg.DatabaseMigrate {
			if err := repository.Migrate(cfg.DatabaseURL); err != nil {
				logger.Printf("database migration failed: %v", err)
			}
		}
		pgStore, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.Printf("postgres store initialized")
			return pgStore, pgStore.Close
		}
		logger.Printf("failed to initialize postgres store, trying next backend: %v", err)
	}

	if cfg.MongoURI != "" {
		mongoStore, err := repository.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err == nil {
			logger.Printf("mongo store initialized database=%s", cfg.MongoDatabase)
			return mongoStore, mongoStore.Close
		}
		logger.Printf("failed to initialize mongo store, fallback to memory: %v", err)
	}

	logger.Printf("no reachable database configured, using in-memory store")
	return repository.NewMemoryStore(), func() {}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	localConfig := queue.LocalConfig{MaxAttempts: cfg.QueueMaxAttempts}

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(localConfig, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: cfg.QueueMaxAttempts,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(localConfig, logger)
		return local, local, func() {}
	}
	logger.Printf("redis streams queue initialized stream=%s group=%s", cfg.RedisStream, cfg.RedisGroup)
	return streams, streams, func() {
		_ = streams.Close()
	}
}
