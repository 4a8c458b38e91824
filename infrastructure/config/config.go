// Package config provides environment-driven configuration loading for the
// orchestration core, in the spirit of the platform's original loader.go:
// simple env-var helpers with sane defaults, now backed by
// github.com/joeshaw/envdecode for struct-tag decoding and
// github.com/joho/godotenv for local ".env" development loading.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Environment is the logical deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment parses a raw string (case-insensitive) into a known
// Environment, defaulting to Development for unrecognized input.
func ParseEnvironment(raw string) (env Environment, ok bool) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case Development, Testing, Production:
		return Environment(strings.ToLower(strings.TrimSpace(raw))), true
	default:
		return Development, false
	}
}

// Config is the orchestrator process's top-level configuration, decoded from
// environment variables via envdecode struct tags.
type Config struct {
	Environment string `env:"APP_ENV,default=development"`

	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DatabaseMaxOpen   int           `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	DatabaseMaxIdle   int           `env:"DATABASE_MAX_IDLE_CONNS,default=10"`
	DatabaseConnLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	MigrationsPath    string        `env:"DATABASE_MIGRATIONS_PATH,default=storage/postgres/migrations"`
	RedisAddr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB           int           `env:"REDIS_DB,default=0"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	LogFormat         string        `env:"LOG_FORMAT,default=json"`
	MetricsListenAddr string        `env:"METRICS_LISTEN_ADDR,default=:9090"`

	SagaDeadline          time.Duration `env:"SAGA_DEADLINE,default=15m"`
	SagaLeaseTTL          time.Duration `env:"SAGA_LEASE_TTL,default=30s"`
	SagaMaxStepRetries    int           `env:"SAGA_MAX_STEP_RETRIES,default=5"`
	ReservationTTL        time.Duration `env:"RESERVATION_TTL,default=30m"`
	LimitSweepInterval    time.Duration `env:"LIMIT_SWEEP_INTERVAL,default=1m"`
	OutboxPublishInterval time.Duration `env:"OUTBOX_PUBLISH_INTERVAL,default=2s"`
	QueueSweepInterval    time.Duration `env:"QUEUE_SWEEP_INTERVAL,default=5s"`

	CircuitBreakerMaxFailures int           `env:"CB_MAX_FAILURES,default=5"`
	CircuitBreakerTimeout     time.Duration `env:"CB_TIMEOUT,default=30s"`
	CircuitBreakerHalfOpenMax int           `env:"CB_HALF_OPEN_MAX,default=3"`
}

// Load reads a ".env" file if present (ignored if missing — production
// deployments set real environment variables) and decodes Config from the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetEnv retrieves an environment variable with a default fallback. Kept as
// a lightweight escape hatch for call sites that need a single value without
// decoding the whole Config struct.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool parses a boolean environment variable. Accepts "true", "1",
// "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultValue
	}
	switch v {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return defaultValue
	}
}

// GetEnvDuration parses a duration environment variable.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvInt parses an integer environment variable.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
