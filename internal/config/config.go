/**
 * Configuration for the StreamABLE frame worker
 *
 * Loads configuration from environment variables matching .env.streamable
 */

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/regions"
)

// EnvFile is the optional dotenv file read before the environment
const EnvFile = ".env.streamable"

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string
	QueueName    string
	QueueBackend string // "redis" (list protocol) or "asynq"

	// Result storage
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	MaxFrameSize      int64

	// OCR configuration
	TesseractLanguage string
	TessdataPrefix    string
	VisionOCRURL      string // optional remote OCR service, replaces Tesseract when set

	// Region catalog used for every frame
	Catalog string

	LogLevel string
}

// LoadEnvFile loads path into the environment if it exists.
// Variables already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "streamable:frames"),
		QueueBackend:      getEnvOrDefault("QUEUE_BACKEND", "redis"),
		DatabaseDriver:    getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 30000), // 30 seconds
		MaxFrameSize:      getEnvAsInt64OrDefault("MAX_FRAME_SIZE", 16<<20),  // 16MB
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		TessdataPrefix:    os.Getenv("TESSDATA_PREFIX"),
		VisionOCRURL:      os.Getenv("VISION_OCR_URL"),
		Catalog:           getEnvOrDefault("CATALOG", regions.LoLTournament.Name()),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.MaxFrameSize < 1024 || c.MaxFrameSize > 256<<20 { // 1KB to 256MB
		return fmt.Errorf("MAX_FRAME_SIZE must be between 1KB and 256MB, got %d", c.MaxFrameSize)
	}

	if _, err := regions.Lookup(c.Catalog); err != nil {
		return fmt.Errorf("CATALOG is invalid: %w", err)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
