package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Token    TokenConfig
	Events   EventsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TimeoutMS int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// AuthConfig defines credential parameters.
type AuthConfig struct {
	BcryptCost             int
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// TokenConfig holds signing keys and token lifetimes. A verifier-only
// deployment may leave PrivateKeyPEM empty.
type TokenConfig struct {
	PrivateKeyPEM string        `env:"AUTH_TOKEN_PRIVATE_KEY"`
	PublicKeyPEM  string        `env:"AUTH_TOKEN_PUBLIC_KEY"`
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"720h"`
}

// tokenKeyFiles lets key material come from mounted files instead.
type tokenKeyFiles struct {
	PrivateKey string `env:"AUTH_TOKEN_PRIVATE_KEY_FILE,file"`
	PublicKey  string `env:"AUTH_TOKEN_PUBLIC_KEY_FILE,file"`
}

// EventsConfig sizes the revocation event queue.
type EventsConfig struct {
	QueueSize       int
	RetryIntervalMS int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	token, err := loadTokenConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "token-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			TimeoutMS: getEnvAsInt("REDIS_TIMEOUT_MS", 250),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminUsername: os.Getenv("AUTH_BOOTSTRAP_ADMIN_USERNAME"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Token: token,
		Events: EventsConfig{
			QueueSize:       getEnvAsInt("EVENTS_QUEUE_SIZE", 256),
			RetryIntervalMS: getEnvAsInt("EVENTS_RETRY_INTERVAL_MS", 200),
		},
	}

	return cfg, nil
}

func loadTokenConfig() (TokenConfig, error) {
	var token TokenConfig
	if err := env.Parse(&token); err != nil {
		return TokenConfig{}, fmt.Errorf("parse token env: %w", err)
	}
	var files tokenKeyFiles
	if err := env.Parse(&files); err != nil {
		return TokenConfig{}, fmt.Errorf("parse token key files: %w", err)
	}
	if strings.TrimSpace(token.PrivateKeyPEM) == "" {
		token.PrivateKeyPEM = files.PrivateKey
	}
	if strings.TrimSpace(token.PublicKeyPEM) == "" {
		token.PublicKeyPEM = files.PublicKey
	}
	if strings.TrimSpace(token.PublicKeyPEM) == "" {
		return TokenConfig{}, fmt.Errorf("AUTH_TOKEN_PUBLIC_KEY or AUTH_TOKEN_PUBLIC_KEY_FILE is required")
	}
	if token.AccessTTL <= 0 || token.RefreshTTL <= 0 {
		return TokenConfig{}, fmt.Errorf("token durations must be positive")
	}
	return token, nil
}

// CanSign reports whether a signing key was configured.
func (t TokenConfig) CanSign() bool {
	return strings.TrimSpace(t.PrivateKeyPEM) != ""
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds each Redis round trip.
func (r RedisConfig) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// RetryInterval returns the initial redelivery delay for failed handlers.
func (e EventsConfig) RetryInterval() time.Duration {
	if e.RetryIntervalMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(e.RetryIntervalMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
