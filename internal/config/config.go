package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Debounce pipeline
	DebounceDelay         time.Duration
	DebounceOverridesJSON string
	PollInterval          time.Duration
	WorkerCount           int

	// Qualification capability
	QualifyMaxRetries  int
	QualifyBackoff     time.Duration
	QualifyTimeout     time.Duration
	QualifiedThreshold float64

	// Stores and transports
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string
	AMQPUrl       string
	AMQPExchange  string
	EventBus      string
	MessageTTL    time.Duration
	OutboxEnabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DebounceDelay:         getEnvAsDuration("DEBOUNCE_DELAY", 5*time.Second),
		DebounceOverridesJSON: getEnv("DEBOUNCE_DELAY_OVERRIDES_JSON", ""),
		PollInterval:          getEnvAsDuration("POLL_INTERVAL", 500*time.Millisecond),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 2),

		QualifyMaxRetries:  getEnvAsInt("QUALIFY_MAX_RETRIES", 3),
		QualifyBackoff:     getEnvAsDuration("QUALIFY_BACKOFF", 2*time.Second),
		QualifyTimeout:     getEnvAsDuration("QUALIFY_TIMEOUT", 30*time.Second),
		QualifiedThreshold: getEnvAsFloat("QUALIFIED_THRESHOLD", 0.7),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		AMQPUrl:       getEnv("AMQP_URL", ""),
		AMQPExchange:  getEnv("AMQP_EXCHANGE", "leadwire.events"),
		EventBus:      getEnv("EVENT_BUS", "redis"),
		MessageTTL:    getEnvAsDuration("MESSAGE_TTL", 24*time.Hour),
		OutboxEnabled: getEnvAsBool("OUTBOX_ENABLED", false),
	}
}

// DebounceDelayFor returns the coalescing delay for a company, honoring
// per-tenant overrides from DEBOUNCE_DELAY_OVERRIDES_JSON
// (e.g. {"<company_id>":"10s"}).
func (c *Config) DebounceDelayFor(companyID string) time.Duration {
	if c.DebounceOverridesJSON == "" {
		return c.DebounceDelay
	}
	overrides := map[string]string{}
	if err := json.Unmarshal([]byte(c.DebounceOverridesJSON), &overrides); err != nil {
		return c.DebounceDelay
	}
	raw, ok := overrides[companyID]
	if !ok {
		return c.DebounceDelay
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return c.DebounceDelay
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
