package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment
// (optionally seeded from a .env file).
type Config struct {
	Port           string `env:"PORT" env-default:"8080"`
	BodyLimitBytes int    `env:"BODY_LIMIT_BYTES" env-default:"0"`
	BodyLimitMB    int    `env:"BODY_LIMIT_MB" env-default:"4"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" env-default:"*"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`
	Development    bool   `env:"DEVELOPMENT" env-default:"false"`

	RateLimit RateLimit
	Database  Database
	Auth      Auth
	Suggest   Suggest
	Mail      Mail
}

// RateLimit configures the global request limiter in front of every route.
type RateLimit struct {
	Max           int `env:"RATE_LIMIT_MAX" env-default:"60"`
	WindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" env-default:"60"`
}

type Database struct {
	Driver   string `env:"DB_DRIVER" env-default:"postgres"`
	Host     string `env:"DB_HOST" env-default:"db"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" env-default:"shadowtips"`
	TimeZone string `env:"DB_TIMEZONE" env-default:"UTC"`
	// DSN overrides the host/user/... fields when set. For sqlite it is the file path.
	DSN string `env:"DB_DSN"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `env:"JWT_TTL" env-default:"24h"`
}

// Suggest configures the message-suggestion endpoint and its per-client quota.
type Suggest struct {
	APIKey          string        `env:"GEMINI_API_KEY"`
	Model           string        `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash-lite"`
	Limit           int           `env:"SUGGEST_LIMIT" env-default:"10"`
	Window          time.Duration `env:"SUGGEST_WINDOW" env-default:"1h"`
	ProviderTimeout time.Duration `env:"SUGGEST_PROVIDER_TIMEOUT" env-default:"15s"`
	ProviderRetries int           `env:"SUGGEST_PROVIDER_RETRIES" env-default:"1"`
	QuotaBackend    string        `env:"SUGGEST_QUOTA_BACKEND" env-default:"memory"`
	StaleWindows    int           `env:"SUGGEST_QUOTA_STALE_WINDOWS" env-default:"2"`
	MaxKeys         int           `env:"SUGGEST_QUOTA_MAX_KEYS" env-default:"100000"`
	RedisAddr       string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" env-default:"0"`
}

type Mail struct {
	Driver       string `env:"MAIL_DRIVER" env-default:"log"`
	From         string `env:"MAIL_FROM" env-default:"ShadowTips <onboarding@resend.dev>"`
	SMTPHost     string `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"465"`
	SMTPUser     string `env:"SMTP_EMAIL"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
}

// Load reads envFile (if it exists) into the process environment and then
// decodes the environment into a Config. A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	if c.Suggest.Limit <= 0 {
		return fmt.Errorf("SUGGEST_LIMIT must be positive, got %d", c.Suggest.Limit)
	}
	if c.Suggest.Window <= 0 {
		return fmt.Errorf("SUGGEST_WINDOW must be positive, got %s", c.Suggest.Window)
	}
	if c.Suggest.ProviderRetries < 0 {
		c.Suggest.ProviderRetries = 0
	}
	return nil
}

// BodyLimit resolves the request body limit in bytes. BODY_LIMIT_BYTES wins
// over BODY_LIMIT_MB.
func (c *Config) BodyLimit() int {
	if c.BodyLimitBytes > 0 {
		return c.BodyLimitBytes
	}
	return c.BodyLimitMB * 1024 * 1024
}

func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}
