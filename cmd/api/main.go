// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/admin"
	"github.com/carterperez-dev/templates/access-control/internal/auth"
	"github.com/carterperez-dev/templates/access-control/internal/config"
	"github.com/carterperez-dev/templates/access-control/internal/core"
	"github.com/carterperez-dev/templates/access-control/internal/entitlements"
	"github.com/carterperez-dev/templates/access-control/internal/health"
	"github.com/carterperez-dev/templates/access-control/internal/metrics"
	"github.com/carterperez-dev/templates/access-control/internal/middleware"
	"github.com/carterperez-dev/templates/access-control/internal/server"
	"github.com/carterperez-dev/templates/access-control/internal/subscription"
	"github.com/carterperez-dev/templates/access-control/internal/usage"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log, cfg.IsDevelopment())
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		return err
	}
	if cfg.Otel.Enabled {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"auto_migrate", cfg.Database.AutoMigrate,
	)

	var (
		rdb         *core.Redis
		redisClient *redis.Client
	)
	if cfg.Redis.URL != "" {
		rdb, err = core.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		redisClient = rdb.Client
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	} else if cfg.IsProduction() {
		logger.Warn("redis not configured, rate limits are per instance")
	} else {
		logger.Info("redis not configured, rate limiting runs in process")
	}

	deps := usage.Deps{
		DB:              db.DB,
		JanitorInterval: cfg.Access.PurgeInterval,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}

	store, err := usage.NewStore(cfg.Access.UsageStore, deps)
	if err != nil {
		return err
	}
	logger.Info("usage store ready", "backend", cfg.Access.UsageStore)

	if pg, ok := store.(*usage.PostgresStore); ok {
		go usage.RunPurger(ctx, pg, cfg.Access.PurgeInterval, logger)
	}

	engineOpts := []access.Option{access.WithLogger(logger)}

	var promMetrics *metrics.Metrics
	if cfg.Metrics.Enabled {
		promMetrics = metrics.New()
		engineOpts = append(engineOpts, access.WithObserver(promMetrics))
	}

	engine, err := access.NewEngine(access.DefaultMatrix(), store, engineOpts...)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT verifier initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.KeyID(),
	)

	subRepo := subscription.NewRepository(db.DB)
	subSvc := subscription.NewService(
		subRepo,
		cfg.Access.TierCacheSize,
		cfg.Access.TierCacheTTL,
		logger,
	)
	subHandler := subscription.NewHandler(subSvc)

	guard := middleware.NewGuard(engine, subSvc, logger,
		middleware.WithTracer(telemetry.Tracer),
	)

	entitlementsHandler := entitlements.NewHandler(engine, cfg.Access.UpgradeURL)

	adminCfg := admin.HandlerConfig{
		Engine:  engine,
		Store:   store,
		Tiers:   subSvc,
		DBStats: db.Stats,
		DBPing:  db.Ping,
		Logger:  logger,
	}
	if rdb != nil {
		adminCfg.RedisStats = rdb.PoolStats
		adminCfg.RedisPing = rdb.Ping
	}
	adminHandler := admin.NewHandler(adminCfg)

	healthDeps := []health.Dependency{
		{Name: "database", Pinger: db},
		{Name: "usage_store", Pinger: store},
	}
	if rdb != nil {
		healthDeps = append(healthDeps, health.Dependency{Name: "redis", Pinger: rdb})
	}
	healthHandler := health.NewHandler(healthDeps...)

	srv := server.New(server.Config{
		ServerConfig: cfg.Server,
		Drainer:      healthHandler,
		Logger:       logger,
	})

	rateLimiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
		),
		FailOpen: cfg.RateLimit.FailOpen,
	}, logger)
	defer rateLimiter.Close()

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer(logger))
	router.Use(middleware.Logger(logger))
	if promMetrics != nil {
		router.Use(promMetrics.Middleware)
	}
	router.Use(rateLimiter.Handler)
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if promMetrics != nil {
		router.Handle(cfg.Metrics.Path, promMetrics.Handler())
	}

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(jwtManager)
	adminOnly := middleware.RequireAdmin
	subscribed := guard.Protect(middleware.Rule{})
	tiered := rateLimiter.Tiered(tierRates(cfg.RateLimit.Tiers))

	router.Route("/v1", func(r chi.Router) {
		subHandler.RegisterRoutes(r, authenticator)
		subHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
		entitlementsHandler.RegisterRoutes(r, authenticator, subscribed, tiered)
	})

	healthHandler.SetReady(true)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("usage store close error", "error", err)
		}
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func tierRates(cfg map[string]config.TierRate) map[access.Tier]middleware.TierRate {
	rates := make(map[access.Tier]middleware.TierRate, len(cfg))
	for name, r := range cfg {
		tier, err := access.ParseTier(name)
		if err != nil {
			continue
		}
		rates[tier] = middleware.TierRate{
			RequestsPerMinute: r.RequestsPerMinute,
			Burst:             r.Burst,
		}
	}
	return rates
}

func setupLogger(cfg config.LogConfig, addSource bool) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: addSource}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
