package config

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultPort            = "8080"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultCodeTTL         = 10 * time.Minute
)

// Config holds the application configuration. It is constructed once at
// startup and passed explicitly; it is never mutated afterwards.
type Config struct {
	DatabaseURL     string
	Port            string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CodeTTL         time.Duration

	SMTPAddr     string // host:port
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailDevMode  bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            defaultPort,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		CodeTTL:         defaultCodeTTL,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	var err error
	if cfg.AccessTokenTTL, err = durationFromEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = durationFromEnv("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}
	if cfg.CodeTTL, err = durationFromEnv("CODE_TTL", cfg.CodeTTL); err != nil {
		return nil, err
	}

	cfg.MailDevMode = os.Getenv("MAIL_DEV_MODE") == "true"
	cfg.SMTPAddr = os.Getenv("SMTP_ADDR")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = os.Getenv("MAIL_FROM")

	if !cfg.MailDevMode {
		if cfg.SMTPAddr == "" {
			return nil, fmt.Errorf("SMTP_ADDR environment variable is required (or set MAIL_DEV_MODE=true)")
		}
		if cfg.MailFrom == "" {
			return nil, fmt.Errorf("MAIL_FROM environment variable is required (or set MAIL_DEV_MODE=true)")
		}
	}

	return cfg, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
