package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Logging     LoggingConfig
	Server      ServerConfig
	Redis       RedisConfig
	Clickhouse  ClickhouseConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
}

type LoggingConfig struct {
	Level string
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	URL       string
	DB        int
	PoolSize  int
	OpTimeout time.Duration
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	ViolationTopic string
}

type RateLimitConfig struct {
	// FailMode decides behavior when bucket storage is unreachable:
	// "open" admits, "closed" denies. Default open.
	FailMode     string
	SaveAttempts int
	// StateTTL expires idle bucket keys in Redis. Must be at least the
	// longest full-refill time so an expired bucket is equivalent to a
	// fully refilled one.
	StateTTL     time.Duration
	EventBuckets int
}

// LoadConfig reads configuration from the environment, loading a local .env
// file first if one exists.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379"),
			DB:        getEnvInt("REDIS_DB", 0),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 50),
			OpTimeout: getEnvDuration("REDIS_OP_TIMEOUT", 3*time.Second),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "social_echelon"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnvBool("KAFKA_ENABLED", false),
			Brokers:        getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			ViolationTopic: getEnv("KAFKA_VIOLATION_TOPIC", "ratelimit.violations"),
		},
		RateLimit: RateLimitConfig{
			FailMode:     getEnv("RATELIMIT_FAIL_MODE", "open"),
			SaveAttempts: getEnvInt("RATELIMIT_SAVE_ATTEMPTS", 4),
			StateTTL:     getEnvDuration("RATELIMIT_STATE_TTL", 24*time.Hour),
			EventBuckets: getEnvInt("RATELIMIT_EVENT_BUCKETS", 16),
		},
	}
}

// Validate catches configuration errors at startup, before any traffic.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if mode := c.RateLimit.FailMode; mode != "open" && mode != "closed" {
		return fmt.Errorf("invalid RATELIMIT_FAIL_MODE %q: must be \"open\" or \"closed\"", mode)
	}
	if c.RateLimit.SaveAttempts <= 0 {
		return fmt.Errorf("RATELIMIT_SAVE_ATTEMPTS must be positive, got %d", c.RateLimit.SaveAttempts)
	}
	// The audit table stores the bucket as UInt8.
	if c.RateLimit.EventBuckets <= 0 || c.RateLimit.EventBuckets > 256 {
		return fmt.Errorf("RATELIMIT_EVENT_BUCKETS must be in 1..256, got %d", c.RateLimit.EventBuckets)
	}
	if c.RateLimit.StateTTL < time.Minute {
		return fmt.Errorf("RATELIMIT_STATE_TTL %s is too short to outlive a full refill", c.RateLimit.StateTTL)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
