package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xceleratortech/communitiesx/pkg/api"
	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/cache"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/config"
	"github.com/xceleratortech/communitiesx/pkg/middleware"
	"github.com/xceleratortech/communitiesx/pkg/notify"
	"github.com/xceleratortech/communitiesx/pkg/observability"
	"github.com/xceleratortech/communitiesx/pkg/storage/postgres"
)

const (
	replicaHealthInterval = 30 * time.Second
	tokenCleanupInterval  = time.Hour
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
		fatal(logger, err, "failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	shutdown := observability.NewShutdownManager(cfg.Server.ShutdownTimeout, logger)

	// Background context for long-running routines. Cancelled last so
	// routines keep running while servers drain.
	appCtx, cancelApp := context.WithCancel(context.Background())
	shutdown.Register("background-routines", func(ctx context.Context) error {
		cancelApp()
		return nil
	})

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(appCtx, observability.OTelConfig{
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			OTLPEndpoint:   cfg.Observability.OTelEndpoint,
			TracingEnabled: true,
			MetricsEnabled: cfg.Observability.MetricsEnabled,
			SampleRate:     cfg.Observability.OTelSampleRate,
		})
		if err != nil {
			fatal(logger, err, "failed to initialize OpenTelemetry")
		}
		shutdown.Register("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers)
		})
	}

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		fatal(logger, err, "failed to connect to database")
	}
	shutdown.Register("database", func(ctx context.Context) error {
		return cm.Close()
	})

	migrateCtx, cancelMigrate := context.WithTimeout(appCtx, 2*time.Minute)
	err = postgres.RunMigrations(migrateCtx, cm.Primary(), logger)
	cancelMigrate()
	if err != nil {
		fatal(logger, err, "failed to run migrations")
	}
	cm.StartHealthCheckRoutine(appCtx, replicaHealthInterval)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		rc, err := postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			fatal(logger, err, "failed to connect to redis")
		}
		redisClient = rc.GetClient()
		shutdown.Register("redis", func(ctx context.Context) error {
			return rc.Close()
		})
	}

	communityStore := communities.NewStore(cm)
	notifyStore := notify.NewPostgresStore(cm)

	tokenManager := auth.NewTokenManager(auth.NewPostgresTokenStore(cm.Primary()), cfg.Auth.TokenTTL)
	go tokenCleanupLoop(appCtx, tokenManager, logger)

	var roleCache *cache.RoleSetCache
	if cfg.Cache.Enabled {
		roleCache, err = cache.NewRoleSetCache(cfg.Cache.L1Entries, redisClient, cfg.Cache.TTL, metrics, logger)
		if err != nil {
			fatal(logger, err, "failed to create role set cache")
		}
	}
	guard := api.NewPermissionGuard(communityStore, roleCache, metrics, logger)

	sender := notify.NewWebPushSender(cfg.Push)
	if !cfg.Push.Enabled() {
		logger.Warn("VAPID keys not configured, web push delivery disabled")
	}
	if cfg.OverlayPath != "" {
		watcher, err := config.NewOverlayWatcher(cfg.OverlayPath, cfg.Push, logger, sender.UpdateCredentials)
		if err != nil {
			logger.WithError(err).Warn("failed to watch config overlay, hot reload disabled")
		} else {
			go watcher.Run(appCtx)
		}
	}

	dispatcher := notify.NewDispatcher(communityStore, notifyStore, sender, notify.Options{
		TitleMaxLen: cfg.Notify.TitleMaxLen,
		Concurrency: cfg.Push.Concurrency,
	}, metrics, logger)

	sweeper := notify.NewSweeper(notifyStore, cfg.Notify.RetentionDays, cfg.Notify.StaleSubscription, logger)
	if err := sweeper.Start(cfg.Notify.SweepSchedule); err != nil {
		fatal(logger, err, "failed to start notification sweeper")
	}
	shutdown.Register("notification-sweeper", sweeper.Stop)

	// Redis-backed rate limiting when available so limits hold across
	// instances, in-memory buckets otherwise.
	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient).Handler
	} else {
		rl := middleware.NewRateLimitMiddleware()
		rl.StartCleanup(appCtx)
		rateLimit = rl.Handler
	}

	server := api.NewServer(api.Deps{
		Communities:    communityStore,
		Notify:         notifyStore,
		Dispatcher:     dispatcher,
		Tokens:         tokenManager,
		Guard:          guard,
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      rateLimit,
	})

	handler := server.Router()
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "communityd.api")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "API server failed")
		}
	}()
	shutdown.Register("api-server", apiServer.Shutdown)

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(cm.Primary(), redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "health server failed")
		}
	}()
	shutdown.Register("health-server", healthServer.Shutdown)

	logger.WithFields(map[string]interface{}{
		"push_enabled":  cfg.Push.Enabled(),
		"redis_enabled": redisClient != nil,
		"cache_enabled": cfg.Cache.Enabled,
	}).Info("communityd started")

	shutdown.WaitForShutdown()
}

// tokenCleanupLoop periodically purges expired API tokens.
func tokenCleanupLoop(ctx context.Context, tm *auth.TokenManager, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "token-cleanup")

	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := tm.CleanupExpiredTokens(cleanupCtx)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("expired token cleanup failed")
			} else if removed > 0 {
				logger.WithField("removed", removed).Info("purged expired API tokens")
			}
		}
	}
}

func fatal(logger *observability.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}
