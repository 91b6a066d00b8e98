package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/kizami/internal/config"
	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/repository"
	"github.com/and161185/kizami/internal/repository/filestore"
	"github.com/and161185/kizami/internal/repository/postgres"
)

// newRootCmd builds a fresh command tree; tests build their own.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KIZAMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "kizami",
		Short:         "Admin and client tool for the kizami time tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "PostgreSQL DSN for the postgres throttle backend and api-key")
	_ = v.BindPFlag("dsn", root.PersistentFlags().Lookup("dsn"))

	root.AddCommand(
		newVersionCmd(),
		newHashPasswordCmd(),
		newGenKeyCmd(),
		newHoursCmd(),
		newThrottleCmd(v),
		newAPIKeyCmd(v),
		newLoginCmd(v),
		newEntryCmd(v),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kizami %s (%s)\n", version, buildDate)
		},
	}
}

// throttleFlags are shared by the throttle subcommands and bound to KIZAMI_THROTTLE_*.
func throttleFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("backend", config.BackendFile, "throttle backend: file or postgres")
	f.String("path", "var/login_rate_limiter.json", "login throttle state file")
	f.Int("max-attempts", 5, "failures before a lockout")
	f.Duration("window", 5*time.Minute, "failure counting window")
	f.Duration("lock", 15*time.Minute, "lockout duration")
	_ = v.BindPFlag("throttle.backend", f.Lookup("backend"))
	_ = v.BindPFlag("throttle.path", f.Lookup("path"))
	_ = v.BindPFlag("throttle.max_attempts", f.Lookup("max-attempts"))
	_ = v.BindPFlag("throttle.window", f.Lookup("window"))
	_ = v.BindPFlag("throttle.lock", f.Lookup("lock"))
}

var errNoDSN = errors.New("dsn is required (--dsn or KIZAMI_DSN)")

// openThrottle builds the throttle over the configured backend. The returned
// close func must be called when done.
func openThrottle(ctx context.Context, v *viper.Viper) (*limiter.Throttle, repository.ThrottleStore, func(), error) {
	cfg := limiter.Config{
		MaxAttempts: v.GetInt("throttle.max_attempts"),
		Window:      v.GetDuration("throttle.window"),
		Lock:        v.GetDuration("throttle.lock"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	var (
		store repository.ThrottleStore
		done  = func() {}
	)
	switch backend := v.GetString("throttle.backend"); backend {
	case config.BackendFile, "":
		store = filestore.New(v.GetString("throttle.path"), cfg.MaxAge())
	case config.BackendPostgres:
		db, err := openDB(ctx, v)
		if err != nil {
			return nil, nil, nil, err
		}
		store, done = postgres.NewThrottleRepo(db, cfg.MaxAge()), db.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown throttle backend %q", backend)
	}
	return limiter.New(store, cfg), store, done, nil
}

func openDB(ctx context.Context, v *viper.Viper) (*postgres.DB, error) {
	dsn := v.GetString("dsn")
	if dsn == "" {
		return nil, errNoDSN
	}
	return postgres.New(ctx, dsn)
}
