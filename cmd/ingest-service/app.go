package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver

	"mailroom/internal/assets"
	"mailroom/internal/config"
	"mailroom/internal/constants"
	"mailroom/internal/ingest"
	"mailroom/internal/logger"
	"mailroom/internal/sanitizer"
	"mailroom/internal/signing"
	"mailroom/pkg/bootstrap"
	"mailroom/pkg/health"
	"mailroom/pkg/metrics"
	"mailroom/pkg/middleware"
	"mailroom/pkg/migrations"
	"mailroom/pkg/ratelimit"
	"mailroom/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	objectStore    *minio.Client
	store          assets.Store
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize asset store: %w", err)
	}

	if err := a.InitBroker("ingest-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "ingest-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestMetrics()
	if a.Config.Broker.Type != "" {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.Ingest.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(a.db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.Info("Database migrations applied")
	}

	if a.Config.Ingest.Dedup.Enabled {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
	}

	return nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.Config.Storage.Driver {
	case constants.StorageDriverS3:
		client, err := a.dbConnector.InitObjectStore(ctx)
		if err != nil {
			return err
		}
		a.objectStore = client
		a.store = assets.NewS3Store(client, a.Config.Storage.S3)
	default:
		a.store = assets.NewDiskStore(a.Config.Storage)
	}
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("ingest-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.Ingest.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.Ingest.RateLimit.RPS,
			Burst:           a.Config.Ingest.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Ingest.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Ingest.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	signer, err := signing.NewSigner(a.Config.Signing.Secret)
	if err != nil {
		return err
	}

	repo := ingest.NewRepository(a.db)

	var dedup ingest.DedupCache
	if a.redis != nil {
		base := ingest.NewRedisDedupCache(a.redis)
		if a.Config.CircuitBreaker.Enabled {
			dedup = ingest.NewCircuitBreakerDedupCache(base, a.Config.CircuitBreaker)
			a.Logger.Infow("Circuit breaker enabled for dedup cache")
		} else {
			dedup = base
		}
	}

	tokenTTL := time.Duration(a.Config.Signing.TokenTTLSeconds) * time.Second
	resolver := ingest.NewResolver(repo, signer, a.Config.Storage.PublicBaseURL, tokenTTL)

	svc := ingest.NewService(
		repo,
		dedup,
		assets.NewService(a.store, a.Logger),
		sanitizer.New(a.Logger),
		resolver,
		a.Producer,
		*a.Config,
		a.Logger,
	)

	handler := ingest.NewHandler(svc, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.objectStore != nil {
		healthRegistry.Register(health.NewObjectStoreChecker(a.objectStore, a.Config.Storage.S3.Bucket))
	} else {
		healthRegistry.Register(health.NewDiskStoreChecker(a.Config.Storage.Disk.Root))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down ingest service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
