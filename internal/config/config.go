// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health listener (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// SessionTTLValue is the server-side session lifetime (e.g. "720h").
	SessionTTLValue string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SuperAdminEmails is a comma-separated allow-list of platform super-admins.
	// Loaded once at start and injected into the authorization gate.
	SuperAdminEmails string `mapstructure:"SUPER_ADMIN_EMAILS"`

	// SendGridAPIKey enables outbound notification mail. Empty disables delivery (notifications are logged only).
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	// MailFromAddress is the sender address for notifications.
	MailFromAddress string `mapstructure:"MAIL_FROM_ADDRESS"`
	// MailFromName is the sender display name for notifications.
	MailFromName string `mapstructure:"MAIL_FROM_NAME"`
	// AppBaseURL is used to build links in notification mail (e.g. invitation accept URL).
	AppBaseURL string `mapstructure:"APP_BASE_URL"`
	// InvitationTTLValue is how long an invitation stays redeemable (e.g. "168h").
	InvitationTTLValue string `mapstructure:"INVITATION_TTL"`

	// RecalcConcurrency bounds concurrent per-organization recalculations during batch coupon expiry.
	RecalcConcurrency int `mapstructure:"RECALC_CONCURRENCY"`

	// LogLevel is the zerolog level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json", "console", or "auto".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Worker-only: cron spec (seconds first) for the invitation and session sweeps.
	WorkerSweepSchedule string `mapstructure:"WORKER_SWEEP_SCHEDULE"`
	// Worker-only: how long ended sessions are kept before the sweep deletes them (e.g. "168h").
	SessionRetentionValue string `mapstructure:"SESSION_RETENTION"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "saas-auth")
	v.SetDefault("JWT_AUDIENCE", "saas-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SUPER_ADMIN_EMAILS", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("MAIL_FROM_NAME", "SaaS Control Plane")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("INVITATION_TTL", "168h")
	v.SetDefault("RECALC_CONCURRENCY", 4)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "auto")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("WORKER_SWEEP_SCHEDULE", "0 */15 * * * *")
	v.SetDefault("SESSION_RETENTION", "168h")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RecalcConcurrency <= 0 {
		cfg.RecalcConcurrency = 1
	}

	if cfg.Env == "production" && len(cfg.SuperAdminList()) == 0 {
		return nil, errors.New("config: SUPER_ADMIN_EMAILS must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDurationOr(c.JWTAccessTTL, time.Hour)
}

// SessionTTL parses SessionTTLValue. Returns 720h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDurationOr(c.SessionTTLValue, 720*time.Hour)
}

// InvitationTTL parses InvitationTTLValue. Returns 168h if unset or invalid.
func (c *Config) InvitationTTL() time.Duration {
	return parseDurationOr(c.InvitationTTLValue, 168*time.Hour)
}

// SessionRetention parses SessionRetentionValue. Returns 168h if unset or invalid.
func (c *Config) SessionRetention() time.Duration {
	return parseDurationOr(c.SessionRetentionValue, 168*time.Hour)
}

// SuperAdminList returns the lower-cased super-admin emails from the comma-separated config.
func (c *Config) SuperAdminList() []string {
	return splitList(c.SuperAdminEmails, strings.ToLower)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string, normalize func(string) string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, normalize(v))
		}
	}
	return out
}
