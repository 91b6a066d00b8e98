// Package config loads server settings from defaults, an optional file,
// KIZAMI_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/logging"
)

// Throttle backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the resolved server configuration.
type Config struct {
	Addr    string `mapstructure:"addr"`
	DSN     string `mapstructure:"dsn"`
	Metrics bool   `mapstructure:"metrics"`

	Throttle Throttle `mapstructure:"throttle"`
	Auth     Auth     `mapstructure:"auth"`
	Log      Log      `mapstructure:"log"`
}

type Throttle struct {
	Backend     string        `mapstructure:"backend"`
	Path        string        `mapstructure:"path"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	Lock        time.Duration `mapstructure:"lock"`
}

type Auth struct {
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	JWTKey            string        `mapstructure:"jwt_key"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Limiter returns the throttle policy.
func (c *Config) Limiter() limiter.Config {
	return limiter.Config{MaxAttempts: c.Throttle.MaxAttempts, Window: c.Throttle.Window, Lock: c.Throttle.Lock}
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, File: c.Log.File}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var problems []error
	if err := c.Limiter().Validate(); err != nil {
		problems = append(problems, err)
	}
	switch c.Throttle.Backend {
	case BackendFile:
		if c.Throttle.Path == "" {
			problems = append(problems, errors.New("throttle.path is required for the file backend"))
		}
	case BackendPostgres:
		if c.DSN == "" {
			problems = append(problems, errors.New("dsn is required for the postgres backend"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown throttle.backend %q", c.Throttle.Backend))
	}
	if c.Auth.JWTKey == "" {
		problems = append(problems, errors.New("auth.jwt_key is required"))
	}
	if c.Auth.AccessTTL <= 0 {
		problems = append(problems, errors.New("auth.access_ttl must be positive"))
	}
	return errors.Join(problems...)
}

func defaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("dsn", "")
	v.SetDefault("metrics", true)
	v.SetDefault("throttle.backend", BackendFile)
	v.SetDefault("throttle.path", "var/login_rate_limiter.json")
	v.SetDefault("throttle.max_attempts", 5)
	v.SetDefault("throttle.window", 5*time.Minute)
	v.SetDefault("throttle.lock", 15*time.Minute)
	v.SetDefault("auth.admin_username", "")
	v.SetDefault("auth.admin_password_hash", "")
	v.SetDefault("auth.jwt_key", "")
	v.SetDefault("auth.access_ttl", 12*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Flags declares the command-line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, json, toml)")
	fs.String("addr", ":8080", "listen address")
	fs.String("dsn", "", "PostgreSQL DSN; enables migrations and the entries API")
	fs.Bool("metrics", true, "serve /metrics")
	fs.String("throttle.backend", BackendFile, "login throttle backend: file or postgres")
	fs.String("throttle.path", "var/login_rate_limiter.json", "login throttle state file")
	fs.Int("throttle.max-attempts", 5, "failures before a lockout")
	fs.Duration("throttle.window", 5*time.Minute, "failure counting window")
	fs.Duration("throttle.lock", 15*time.Minute, "lockout duration")
	fs.Duration("auth.access-ttl", 12*time.Hour, "access token TTL")
	fs.String("log.level", "info", "log level")
	fs.String("log.file", "", "rotating log file (optional)")
	return fs
}

// Load parses args and merges every configuration source.
// Secrets (jwt key, admin hash) are accepted only from the file or environment.
func Load(args []string) (*Config, error) {
	fs := Flags("kizami-server")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("KIZAMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
