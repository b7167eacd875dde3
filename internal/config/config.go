// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env classifies the runtime environment. It is read once at startup and
// never changes for the life of the process.
type Env string

const (
	EnvProduction  Env = "production"
	EnvStaging     Env = "staging"
	EnvTesting     Env = "testing"
	EnvDevelopment Env = "development"
)

// ParseEnv maps APP_ENV values onto an Env. Missing and unknown values are an
// error so a forgotten or mistyped variable can't enable development-only code
// paths.
func ParseEnv(raw string) (Env, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", errors.New("APP_ENV is required")
	case "production", "prod":
		return EnvProduction, nil
	case "staging":
		return EnvStaging, nil
	case "testing", "test":
		return EnvTesting, nil
	case "development", "dev":
		return EnvDevelopment, nil
	default:
		return "", fmt.Errorf("unknown APP_ENV %q", raw)
	}
}

func (e Env) IsProduction() bool  { return e == EnvProduction }
func (e Env) IsDevelopment() bool { return e == EnvDevelopment }

type Config struct {
	Env      Env
	HTTPAddr string
	LogLevel string

	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnLifetime  time.Duration
	MigrationsPath  string
	SeedsPath       string
	SessionSecret   string
	SessionCookie   string
	SecureCookies   bool
	ClaimsMaxAge    time.Duration
	OwnerUserID     int64
	RedisURL        string
	OverrideTTL     time.Duration
	RateLimitBurst  int
	RateLimitPerSec int
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	env, err := ParseEnv(os.Getenv("APP_ENV"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:             env,
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxOpenConns:  getenvInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:  getenvInt("DB_MAX_IDLE_CONNS", 10),
		DBConnLifetime:  getenvDuration("DB_CONN_LIFETIME", 30*time.Minute),
		MigrationsPath:  getenv("MIGRATIONS_PATH", "ops/migrations/sql"),
		SeedsPath:       getenv("SEEDS_PATH", "ops/migrations/seeds"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		SessionCookie:   getenv("SESSION_COOKIE", "session"),
		SecureCookies:   env == EnvProduction || env == EnvStaging,
		ClaimsMaxAge:    getenvDuration("CLAIMS_MAX_AGE", 24*time.Hour),
		RedisURL:        os.Getenv("REDIS_URL"),
		OverrideTTL:     getenvDuration("OVERRIDE_TTL", 24*time.Hour),
		RateLimitBurst:  getenvInt("RATE_LIMIT_BURST", 60),
		RateLimitPerSec: getenvInt("RATE_LIMIT_PER_SEC", 20),
	}
	if raw := os.Getenv("OWNER_USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OWNER_USER_ID: %w", err)
		}
		cfg.OwnerUserID = id
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings every binary needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.Env.IsProduction() && len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters in production")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
