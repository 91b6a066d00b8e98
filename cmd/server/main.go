// Command kizami-server serves login and time entry endpoints over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/and161185/kizami/internal/config"
	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/logging"
	"github.com/and161185/kizami/internal/metrics"
	"github.com/and161185/kizami/internal/migrate"
	"github.com/and161185/kizami/internal/repository"
	"github.com/and161185/kizami/internal/repository/filestore"
	"github.com/and161185/kizami/internal/repository/postgres"
	httpserver "github.com/and161185/kizami/internal/server/http"
	"github.com/and161185/kizami/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// run wires storage, services and the HTTP server, and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("throttle_backend", cfg.Throttle.Backend),
	)

	var db *postgres.DB
	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		var err error
		db, err = postgres.New(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("pgxpool: %w", err)
		}
		defer db.Close()
	}

	lcfg := cfg.Limiter()
	var store repository.ThrottleStore
	switch cfg.Throttle.Backend {
	case config.BackendPostgres:
		store = postgres.NewThrottleRepo(db, lcfg.MaxAge())
	default:
		store = filestore.New(cfg.Throttle.Path, lcfg.MaxAge())
		logger.Info("throttle state file", zap.String("path", cfg.Throttle.Path))
	}

	m := metrics.New()
	th := limiter.New(store, lcfg, limiter.WithLockoutHook(func(key string, until time.Time) {
		m.Lockout(key, until)
		logger.Warn("login lockout", zap.String("key", key), zap.Time("until", until))
	}))

	authSvc := service.NewAuthService(service.Admin{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: cfg.Auth.AdminPasswordHash,
	}, []byte(cfg.Auth.JWTKey), cfg.Auth.AccessTTL, th)
	if cfg.Auth.AdminUsername == "" || cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("admin account not configured; every login will fail")
	}

	var opts []httpserver.Option
	var entryRepo repository.EntryRepository
	if db != nil {
		entryRepo = postgres.NewEntryRepo(db)
		opts = append(opts,
			httpserver.WithEntryWrites(),
			httpserver.WithReadiness(db.Ping),
			httpserver.WithReports(
				service.NewReportService(postgres.NewReportRepo(db)),
				service.NewAPIKeyService(postgres.NewAPIKeyRepo(db)),
			),
		)
	}
	if cfg.Metrics {
		opts = append(opts, httpserver.WithMetricsEndpoint())
	}

	srv := httpserver.New(authSvc, service.NewEntryService(entryRepo), m, logger, opts...)
	return srv.ListenAndServe(ctx, cfg.Addr, 5*time.Second)
}
