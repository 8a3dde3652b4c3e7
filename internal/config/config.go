package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	// Relay configuration
	SendQueueSize int
	IdleTimeout   time.Duration

	// Live content mirror and snapshot writer pool
	SaveInterval      time.Duration
	SnapshotWorkers   int
	SnapshotQueueSize int

	// Cross-instance fan-out (disabled when RedisAddr is empty)
	RedisAddr    string
	RedisChannel string

	// Observability
	JaegerEndpoint   string
	TraceSampleRatio float64
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "codecollab"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort: getEnv("SERVER_PORT", "8888"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		SendQueueSize: getEnvInt("SEND_QUEUE_SIZE", 256),
		IdleTimeout:   getEnvDuration("IDLE_TIMEOUT", 5*time.Minute),

		SaveInterval:      getEnvDuration("SAVE_INTERVAL", 2*time.Second),
		SnapshotWorkers:   getEnvInt("SNAPSHOT_WORKERS", 4),
		SnapshotQueueSize: getEnvInt("SNAPSHOT_QUEUE_SIZE", 128),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "codecollab:deltas"),

		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", c.SendQueueSize)
	}
	if c.SnapshotWorkers <= 0 {
		return fmt.Errorf("SNAPSHOT_WORKERS must be positive, got %d", c.SnapshotWorkers)
	}
	if c.SnapshotQueueSize <= 0 {
		return fmt.Errorf("SNAPSHOT_QUEUE_SIZE must be positive, got %d", c.SnapshotQueueSize)
	}
	if c.SaveInterval < 0 {
		return fmt.Errorf("SAVE_INTERVAL must not be negative, got %s", c.SaveInterval)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1, got %g", c.TraceSampleRatio)
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("2s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
