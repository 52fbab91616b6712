package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Versioning VersioningConfig
	Execution  ExecutionConfig
	Metrics    MetricsConfig
	Webhook    WebhookConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type VersioningConfig struct {
	// MaxRetries bounds how many times a version number allocation is retried after losing
	// a race before ErrConcurrencyConflict surfaces.
	MaxRetries int
}

type ExecutionConfig struct {
	Timeout time.Duration
}

type MetricsConfig struct {
	// ZeroAsAbsent keeps the legacy dashboard behavior: a metric reported as 0 is left out
	// of its average exactly like a missing one.
	ZeroAsAbsent bool
	TimeZone     string
	CacheTTL     time.Duration
	LRUSize      int
}

type WebhookConfig struct {
	Timeout time.Duration
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "100"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	versionRetries, err := getEnvInt("VERSION_MAX_RETRIES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid VERSION_MAX_RETRIES: %w", err)
	}

	execTimeout, err := getEnvDuration("EXECUTION_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXECUTION_TIMEOUT: %w", err)
	}

	zeroAsAbsent, err := getEnvBool("METRICS_ZERO_AS_ABSENT", true)
	if err != nil {
		return nil, fmt.Errorf("invalid METRICS_ZERO_AS_ABSENT: %w", err)
	}

	cacheTTL, err := getEnvDuration("METRICS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid METRICS_CACHE_TTL: %w", err)
	}

	lruSize, err := getEnvInt("METRICS_LRU_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("invalid METRICS_LRU_SIZE: %w", err)
	}

	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Versioning: VersioningConfig{
			MaxRetries: versionRetries,
		},
		Execution: ExecutionConfig{
			Timeout: execTimeout,
		},
		Metrics: MetricsConfig{
			ZeroAsAbsent: zeroAsAbsent,
			TimeZone:     getEnv("METRICS_TIMEZONE", "UTC"),
			CacheTTL:     cacheTTL,
			LRUSize:      lruSize,
		},
		Webhook: WebhookConfig{
			Timeout: webhookTimeout,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location resolves Metrics.TimeZone, the zone bucket keys are computed in.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Metrics.TimeZone)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Versioning.MaxRetries < 1 {
		return fmt.Errorf("VERSION_MAX_RETRIES must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid METRICS_TIMEZONE: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
