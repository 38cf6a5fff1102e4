// Package main is the entrypoint for the atlasgate API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/cache"
	"github.com/atlasgate/atlasgate/internal/config"
	"github.com/atlasgate/atlasgate/internal/handler"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/repository"
	"github.com/atlasgate/atlasgate/internal/server"
	"github.com/atlasgate/atlasgate/internal/service"
	"github.com/atlasgate/atlasgate/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", config.RedactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	var cacheClient *cache.Cache
	if cfg.RedisEnabled() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL, cache.WithNamespace(cfg.RedisKeyPrefix))
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", config.RedactURL(cfg.RedisURL)),
			)
			repo.Close()
			return err
		}
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set; lookup hot tier and rate limiting disabled")
	}

	deps, err := newApp(cfg, logger, repo, cacheClient)
	if err != nil {
		repo.Close()
		if cacheClient != nil {
			_ = cacheClient.Close()
		}
		return err
	}

	srv := server.New(newRouter(*deps), server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("env", cfg.AppEnv),
		slog.Bool("redis", cfg.RedisEnabled()),
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.Duration("usage_window", cfg.UsageWindow),
	)

	return srv.Run(ctx)
}

// newApp builds services and handlers on top of connected backends.
// cacheClient may be nil.
func newApp(cfg *config.Config, logger *slog.Logger, repo *repository.Repository, cacheClient *cache.Cache) (*routerDeps, error) {
	// Interfaces stay nil when Redis is off so downstream nil checks hold.
	var (
		hotTier     service.CountryCache
		limiter     middleware.Limiter
		redisHealth handler.HealthChecker
	)
	if cacheClient != nil {
		hotTier = cacheClient
		limiter = cacheClient
		redisHealth = cacheClient
	}

	var (
		recorder metrics.Recorder = metrics.NewNoop()
		exporter http.Handler
	)
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		exporter = prom.Handler()
	}

	sessions, err := auth.NewSessionManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	fetcher := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		Timeout: cfg.UpstreamTimeout,
		RPS:     cfg.UpstreamRPS,
		Burst:   cfg.UpstreamBurst,
	})

	keySvc := service.NewAPIKeyService(repo, repo, logger, recorder)
	authSvc := service.NewAuthService(repo, keySvc, sessions, cfg.AdminSecurityCode, logger, recorder)
	usageSvc := service.NewUsageTracker(repo, cfg.UsageWindow, logger, recorder)
	quotaSvc := service.NewQuotaService(repo, usageSvc, logger)
	countrySvc := service.NewCountryService(repo, hotTier, fetcher, cfg.UpstreamTimeout, logger, recorder)
	adminSvc := service.NewAdminService(repo, logger)

	return &routerDeps{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		keys:     keySvc,
		sessions: authSvc,
		quota:    quotaSvc,
		limiter:  limiter,

		health: handler.NewHealthHandler(
			handler.Dependency{Name: "postgres", Checker: repo},
			handler.Dependency{Name: "redis", Checker: redisHealth, Optional: true},
		),
		metrics: handler.NewMetricsHandler(exporter),
		auth:    handler.NewAuthHandler(authSvc, logger, !cfg.IsDevelopment()),
		apiKeys: handler.NewAPIKeyHandler(keySvc, logger),
		usage:   handler.NewUsageHandler(usageSvc, quotaSvc, logger),
		country: handler.NewCountryHandler(countrySvc, usageSvc, quotaSvc, logger),
		admin:   handler.NewAdminHandler(adminSvc, logger),
	}, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// sanitizeError strips connection secrets from driver error messages.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, config.RedactURL(secret))
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
