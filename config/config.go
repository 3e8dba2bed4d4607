package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/layer-3/assetgate/adapters/tokenizer"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel int      `env:"LOG_LEVEL" envDefault:"0"`
	HTTP     HTTP     `envPrefix:"HTTP_"`
	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	JWT      JWT      `envPrefix:"JWT_"`
	KDF      KDF      `envPrefix:"KDF_"`
	Mail     Mail     `envPrefix:"MAIL_"`
	KYC      KYC      `envPrefix:"KYC_"`
}

// HTTP contains HTTP server parameters.
type HTTP struct {
	Addr string `env:"ADDR" envDefault:":9000"`
	// RateLimit is the sustained number of /auth requests per second per client IP.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`
}

// Database contains database connection parameters. An empty DSN selects the
// in-memory store.
type Database struct {
	DSN string `env:"DSN"`
}

// Redis backs the identity cache and the event stream. An empty URL disables
// the cache and keeps events in process.
type Redis struct {
	URL      string        `env:"URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// JWT contains token parameters. Lifetimes use the s/m/h/d duration syntax.
type JWT struct {
	Secret     string `env:"SECRET"`
	AccessTTL  string `env:"ACCESS_TTL" envDefault:"24h"`
	RefreshTTL string `env:"REFRESH_TTL" envDefault:"7d"`

	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// KDF contains argon2id parameters for password hashing.
type KDF struct {
	Time   uint32 `env:"TIME" envDefault:"3"`
	MemKiB uint32 `env:"MEM" envDefault:"65536"`
	Par    uint8  `env:"PAR" envDefault:"4"`
}

// Mail contains outbound mail parameters.
type Mail struct {
	From       string `env:"FROM" envDefault:"noreply@assetgate.local"`
	Topic      string `env:"TOPIC" envDefault:"assetgate.mail.outbound"`
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
}

// KYC contains vendor parameters.
type KYC struct {
	PersonaWebhookSecret  string        `env:"PERSONA_WEBHOOK_SECRET"`
	DiditWebhookSecret    string        `env:"DIDIT_WEBHOOK_SECRET"`
	DiditAPIURL           string        `env:"DIDIT_API_URL" envDefault:"https://verification.didit.me"`
	DiditAPIKey           string        `env:"DIDIT_API_KEY"`
	DiditTimeout          time.Duration `env:"DIDIT_TIMEOUT" envDefault:"10s"`
	AllowUnsignedWebhooks bool          `env:"ALLOW_UNSIGNED_WEBHOOKS" envDefault:"false"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}

	var err error
	if c.JWT.AccessLifetime, err = tokenizer.ParseDuration(c.JWT.AccessTTL); err != nil {
		return fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	if c.JWT.RefreshLifetime, err = tokenizer.ParseDuration(c.JWT.RefreshTTL); err != nil {
		return fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	if c.KDF.Time == 0 || c.KDF.MemKiB == 0 || c.KDF.Par == 0 {
		return errors.New("KDF parameters must be positive")
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst <= 0 {
		return errors.New("HTTP rate limit must be positive")
	}
	if c.Redis.CacheTTL < time.Millisecond {
		return errors.New("REDIS_CACHE_TTL must be at least 1ms")
	}
	if c.KYC.DiditTimeout <= 0 {
		return errors.New("KYC_DIDIT_TIMEOUT must be positive")
	}

	return nil
}
