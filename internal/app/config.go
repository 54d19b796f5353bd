package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8090"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	AuditEndpoint     string        `envconfig:"AUDIT_ENDPOINT" default:"http://localhost:8080/api/audit"`
	AuditFetchTimeout time.Duration `envconfig:"AUDIT_FETCH_TIMEOUT" default:"10s"`
	AuditCacheTTL     time.Duration `envconfig:"AUDIT_CACHE_TTL" default:"15s"`

	AuditViewIdleTTL     time.Duration `envconfig:"AUDIT_VIEW_IDLE_TTL" default:"30m"`
	AuditViewMaxSessions int           `envconfig:"AUDIT_VIEW_MAX_SESSIONS" default:"10000"`

	APIProxyTarget string `envconfig:"API_PROXY_TARGET" default:"http://localhost:8080"`
	APIProxyPrefix string `envconfig:"API_PROXY_PREFIX" default:"/api"`
	APIProxyStrip  bool   `envconfig:"API_PROXY_STRIP" default:"true"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	RateLimitPerMin int `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if err := absoluteURL("AUDIT_ENDPOINT", c.AuditEndpoint); err != nil {
		return err
	}
	if c.APIProxyTarget != "" {
		if err := absoluteURL("API_PROXY_TARGET", c.APIProxyTarget); err != nil {
			return err
		}
	}
	if c.AuditFetchTimeout <= 0 {
		return errors.New("AUDIT_FETCH_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.AuditViewIdleTTL <= 0 {
		return errors.New("AUDIT_VIEW_IDLE_TTL must be positive")
	}
	if c.AuditViewMaxSessions < 0 {
		return errors.New("AUDIT_VIEW_MAX_SESSIONS must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func absoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	return nil
}
