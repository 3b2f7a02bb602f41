package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const sillAPIURLVar = "SILL_API_URL"

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	PublicURL          string `env:"PUBLIC_URL"`
	SessionSecret      string `env:"SESSION_SECRET"`
	RedisURL           string `env:"REDIS_URL"`
	OIDCClientSecret   string `env:"OIDC_CLIENT_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"30m"`
	ReferenceCacheTTL  time.Duration `env:"REFERENCE_CACHE_TTL" default:"10m"`

	// SillAPIURL is resolved from SILL_API_URL: unset means PUBLIC_URL/api,
	// empty means mock mode (in-memory backend and identity).
	SillAPIURL string
	MockMode   bool
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PublicOrigin is the scheme and host of PublicURL, without any path.
func (c *Config) PublicOrigin() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return c.PublicURL
	}
	return u.Scheme + "://" + u.Host
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	resolveSillAPIURL(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolveSillAPIURL(cfg *Config) {
	value, ok := os.LookupEnv(sillAPIURLVar)
	switch {
	case !ok:
		cfg.SillAPIURL = cfg.PublicURL + "/api"
	case value == "":
		cfg.MockMode = true
	default:
		cfg.SillAPIURL = strings.TrimSuffix(value, "/")
	}
}

func validate(cfg *Config) error {
	required := map[string]string{
		"PUBLIC_URL":     cfg.PublicURL,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	if !cfg.MockMode {
		required["REDIS_URL"] = cfg.RedisURL
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	publicURL, err := url.Parse(cfg.PublicURL)
	if err != nil || publicURL.Host == "" {
		return fmt.Errorf("PUBLIC_URL must be an absolute URL, got %q", cfg.PublicURL)
	}
	if cfg.IsProduction() && publicURL.Scheme != "https" {
		return errors.New("PUBLIC_URL must use https in production")
	}
	if cfg.IsProduction() && cfg.MockMode {
		return errors.New("mock mode (empty SILL_API_URL) is not allowed in production")
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.SessionIdleTimeout <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT must be positive")
	}

	return nil
}
