// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

// Package config loads the service configuration.
//
// Values are layered, later sources winning: built-in defaults, an optional
// YAML file, environment variables, then command-line flags. Environment
// variables use the upper-case option name (JWT_SECRET), the YAML file the
// lower-case one (jwt_secret) and flags the dashed one (--jwt-secret).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// MinJWTSecretLength is the shortest accepted signing secret, in bytes.
const MinJWTSecretLength = 32

// Email delivery modes.
const (
	DeliveryLog   = "log"
	DeliverySMTP  = "smtp"
	DeliveryQueue = "queue"
)

// Account store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Default values.
const (
	defaultAccessTokenExpireMinutes   = 15
	defaultRefreshTokenExpireDays     = 14
	defaultPasswordResetExpireMinutes = 30
	defaultFrontendOrigin             = "http://localhost:3000"
	defaultHTTPAddr                   = ":8000"
	defaultMetricsAddr                = "127.0.0.1:9100"
	defaultLogFormat                  = "json"
	defaultLogLevel                   = "info"
	defaultSMTPPort                   = 587
	defaultQueueMaxRetry              = 3
	defaultQueueConcurrency           = 4
)

// Config is the service configuration. Build it with Load; treat it as
// read-only afterwards.
type Config struct {
	JWTSecret                  string `koanf:"jwt_secret" yaml:"jwt_secret"`
	AccessTokenExpireMinutes   int    `koanf:"access_token_expire_minutes" yaml:"access_token_expire_minutes"`
	RefreshTokenExpireDays     int    `koanf:"refresh_token_expire_days" yaml:"refresh_token_expire_days"`
	PasswordResetExpireMinutes int    `koanf:"password_reset_expire_minutes" yaml:"password_reset_expire_minutes"`
	CookieSecure               bool   `koanf:"cookie_secure" yaml:"cookie_secure"`
	ResetTokenPepper           string `koanf:"reset_token_pepper" yaml:"reset_token_pepper"`

	// AdminEmails holds exact addresses or glob patterns.
	AdminEmails []string `koanf:"admin_emails" yaml:"admin_emails"`

	Store          string `koanf:"store" yaml:"store"`
	DatabaseURL    string `koanf:"database_url" yaml:"database_url"`
	FrontendOrigin string `koanf:"frontend_origin" yaml:"frontend_origin"`
	HTTPAddr       string `koanf:"http_addr" yaml:"http_addr"`
	MetricsAddr    string `koanf:"metrics_addr" yaml:"metrics_addr"`
	LogFormat      string `koanf:"log_format" yaml:"log_format"`
	LogLevel       string `koanf:"log_level" yaml:"log_level"`

	EmailDelivery string `koanf:"email_delivery" yaml:"email_delivery"`
	SMTPHost      string `koanf:"smtp_host" yaml:"smtp_host"`
	SMTPPort      int    `koanf:"smtp_port" yaml:"smtp_port"`
	SMTPUser      string `koanf:"smtp_user" yaml:"smtp_user"`
	SMTPPassword  string `koanf:"smtp_password" yaml:"smtp_password"`
	FromEmail     string `koanf:"from_email" yaml:"from_email"`
	SMTPTLS       bool   `koanf:"smtp_tls" yaml:"smtp_tls"`

	RedisAddr        string `koanf:"redis_addr" yaml:"redis_addr"`
	QueueMaxRetry    int    `koanf:"queue_max_retry" yaml:"queue_max_retry"`
	QueueConcurrency int    `koanf:"queue_concurrency" yaml:"queue_concurrency"`

	// Zero keeps the hasher's built-in cost.
	Argon2Time      uint32 `koanf:"argon2_time" yaml:"argon2_time"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib" yaml:"argon2_memory_kib"`
	Argon2Threads   uint8  `koanf:"argon2_threads" yaml:"argon2_threads"`
}

// RegisterFlags defines a flag for every option on fs. Flag defaults are the
// built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("jwt-secret", "", "HMAC secret for signing tokens (at least 32 bytes)")
	fs.Int("access-token-expire-minutes", defaultAccessTokenExpireMinutes, "access token lifetime in minutes")
	fs.Int("refresh-token-expire-days", defaultRefreshTokenExpireDays, "refresh token lifetime in days")
	fs.Int("password-reset-expire-minutes", defaultPasswordResetExpireMinutes, "password reset token lifetime in minutes")
	fs.Bool("cookie-secure", false, "mark the refresh cookie Secure")
	fs.String("reset-token-pepper", "", "pepper for reset token hashes (default: jwt-secret)")
	fs.String("admin-emails", "", "comma-separated admin emails or glob patterns")

	fs.String("store", StorePostgres, "account store (postgres or memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("frontend-origin", defaultFrontendOrigin, "origin of the web frontend (CORS and email links)")
	fs.String("http-addr", defaultHTTPAddr, "API listen address")
	fs.String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", defaultLogFormat, "log format (json or text)")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	fs.String("email-delivery", DeliveryLog, "email delivery (log, smtp or queue)")
	fs.String("smtp-host", "", "SMTP server host")
	fs.Int("smtp-port", defaultSMTPPort, "SMTP server port")
	fs.String("smtp-user", "", "SMTP username")
	fs.String("smtp-password", "", "SMTP password")
	fs.String("from-email", "", "sender address of account emails")
	fs.Bool("smtp-tls", true, "require STARTTLS")

	fs.String("redis-addr", "", "Redis address for the email queue")
	fs.Int("queue-max-retry", defaultQueueMaxRetry, "delivery attempts after the first for queued emails")
	fs.Int("queue-concurrency", defaultQueueConcurrency, "emails a worker sends concurrently")

	fs.Uint32("argon2-time", 0, "argon2id iterations (0 = built-in)")
	fs.Uint32("argon2-memory-kib", 0, "argon2id memory in KiB (0 = built-in)")
	fs.Uint8("argon2-threads", 0, "argon2id parallelism (0 = built-in)")
}

// Options controls where Load reads from.
type Options struct {
	// File is an optional YAML file. A missing file is an error.
	File string
	// Flags must have been populated by RegisterFlags. When nil, Load uses a
	// fresh flag set, which contributes only the defaults.
	Flags *pflag.FlagSet
	// Partial skips validation, for commands that need only a few options.
	Partial bool
}

// Load builds and validates a Config.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("file", opts.File).Wrap(err)
		}
	}

	known := knownKeys()
	envProvider := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		key := strings.ToLower(name)
		if !known[key] {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	fs := opts.Flags
	if fs == nil {
		fs = pflag.NewFlagSet("config", pflag.ContinueOnError)
		RegisterFlags(fs)
	}
	flagProvider := posflag.ProviderWithValue(fs, ".", k, func(name, value string) (string, any) {
		key := strings.ReplaceAll(name, "-", "_")
		if !known[key] {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(flagProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	cfg.AdminEmails = splitList(k.Get("admin_emails"))
	if cfg.ResetTokenPepper == "" {
		cfg.ResetTokenPepper = cfg.JWTSecret
	}

	if opts.Partial {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// knownKeys returns the koanf key of every flag RegisterFlags defines.
func knownKeys() map[string]bool {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	RegisterFlags(fs)
	keys := make(map[string]bool)
	fs.VisitAll(func(f *pflag.Flag) {
		keys[strings.ReplaceAll(f.Name, "-", "_")] = true
	})
	return keys
}

// splitList accepts a YAML list or a comma-separated string.
func splitList(v any) []string {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = strings.Split(val, ",")
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("jwt_secret must be at least %d bytes", MinJWTSecretLength))
	}
	if c.AccessTokenExpireMinutes <= 0 {
		errs = append(errs, fmt.Errorf("access_token_expire_minutes must be positive, got %d", c.AccessTokenExpireMinutes))
	}
	if c.RefreshTokenExpireDays <= 0 {
		errs = append(errs, fmt.Errorf("refresh_token_expire_days must be positive, got %d", c.RefreshTokenExpireDays))
	}
	if c.PasswordResetExpireMinutes <= 0 {
		errs = append(errs, fmt.Errorf("password_reset_expire_minutes must be positive, got %d", c.PasswordResetExpireMinutes))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if u, err := url.Parse(c.FrontendOrigin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("frontend_origin must be an absolute URL, got %q", c.FrontendOrigin))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required when store is postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store must be postgres or memory, got %q", c.Store))
	}

	switch c.EmailDelivery {
	case DeliveryLog:
	case DeliverySMTP:
		if c.SMTPHost == "" || c.FromEmail == "" {
			errs = append(errs, errors.New("smtp_host and from_email are required when email_delivery is smtp"))
		}
	case DeliveryQueue:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required when email_delivery is queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("email_delivery must be log, smtp or queue, got %q", c.EmailDelivery))
	}
	if c.QueueMaxRetry < 0 {
		errs = append(errs, fmt.Errorf("queue_max_retry must not be negative, got %d", c.QueueMaxRetry))
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}

// AccessTTL is the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL is the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// ResetTTL is the password reset token lifetime.
func (c *Config) ResetTTL() time.Duration {
	return time.Duration(c.PasswordResetExpireMinutes) * time.Minute
}

// ResetURL is the frontend page that receives reset tokens.
func (c *Config) ResetURL() string {
	return strings.TrimRight(c.FrontendOrigin, "/") + "/reset-password"
}

const redacted = "[redacted]"

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() Config {
	out := *c
	out.AdminEmails = slices.Clone(c.AdminEmails)
	for _, s := range []*string{&out.JWTSecret, &out.ResetTokenPepper, &out.SMTPPassword} {
		if *s != "" {
			*s = redacted
		}
	}
	if u, err := url.Parse(out.DatabaseURL); err == nil && u.User != nil {
		out.DatabaseURL = u.Redacted()
	}
	return out
}
