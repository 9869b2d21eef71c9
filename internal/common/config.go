package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	GenAI    GenAIConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// GenAIConfig holds configuration for the content-transformation API.
type GenAIConfig struct {
	APIKey  string
	BaseURL string
	// Models is the ordered fallback chain; the first entry is preferred.
	Models  []string
	Timeout time.Duration
	// FilePollDelay is the fixed wait between file-state polls.
	FilePollDelay time.Duration
	// FilePollMax bounds how many times an uploaded file is polled.
	FilePollMax int
}

// PipelineConfig holds batching, retry and cooldown knobs for a run.
type PipelineConfig struct {
	// WindowSize is how many logical items one extraction call requests.
	WindowSize int
	// UploadBatchSize bounds one store write.
	UploadBatchSize int
	// DeleteChunkSize bounds one store delete.
	DeleteChunkSize int
	MaxAttempts     int
	// RetryBaseDelay seeds the exponential backoff after a rate-limit.
	RetryBaseDelay time.Duration
	// TransientDelay is the fixed wait after a non-rate-limit failure.
	TransientDelay time.Duration
	// WindowCooldown is the fixed sleep after every extraction call.
	WindowCooldown time.Duration
	// JobCooldown is the fixed sleep between jobs.
	JobCooldown time.Duration
	// PDFTextWindow is the character window size for text-mode PDF jobs.
	PDFTextWindow int
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honored if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		GenAI: GenAIConfig{
			APIKey:        getEnv("GEMINI_API_KEY", ""),
			BaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Models:        getEnvAsList("GEMINI_MODELS", []string{"gemini-flash-latest", "gemini-1.5-flash-latest", "gemini-1.5-flash", "gemini-2.0-flash-exp"}),
			Timeout:       getEnvAsDuration("GEMINI_TIMEOUT", 90*time.Second),
			FilePollDelay: getEnvAsDuration("GEMINI_FILE_POLL_DELAY", 2*time.Second),
			FilePollMax:   getEnvAsInt("GEMINI_FILE_POLL_MAX", 60),
		},
		Pipeline: PipelineConfig{
			WindowSize:      getEnvAsInt("ETL_WINDOW_SIZE", 10),
			UploadBatchSize: getEnvAsInt("ETL_UPLOAD_BATCH_SIZE", 100),
			DeleteChunkSize: getEnvAsInt("ETL_DELETE_CHUNK_SIZE", 100),
			MaxAttempts:     getEnvAsInt("ETL_MAX_ATTEMPTS", 5),
			RetryBaseDelay:  getEnvAsDuration("ETL_RETRY_BASE_DELAY", 2*time.Second),
			TransientDelay:  getEnvAsDuration("ETL_TRANSIENT_DELAY", 5*time.Second),
			WindowCooldown:  getEnvAsDuration("ETL_WINDOW_COOLDOWN", 10*time.Second),
			JobCooldown:     getEnvAsDuration("ETL_JOB_COOLDOWN", 60*time.Second),
			PDFTextWindow:   getEnvAsInt("ETL_PDF_TEXT_WINDOW", 12000),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. Missing credentials are a
// fatal startup error, not a per-job one.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.GenAI.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if len(c.GenAI.Models) == 0 {
		return NewAppError("CONFIG_ERROR", "GEMINI_MODELS must list at least one model", ErrInvalidInput)
	}
	return nil
}
