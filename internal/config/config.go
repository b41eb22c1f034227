// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	Pretty   bool
	DevMode  bool

	// Job orchestration
	Workers          int           // Worker pool size for background jobs
	JobTimeout       time.Duration // Per-job deadline, 0 means none
	JobRetentionDays int           // Terminal jobs older than this are purged

	// Engine defaults
	FetchTimeout time.Duration // Per-call deadline for market data fetches
	RiskFreeRate float64       // Annualized fallback risk-free rate
	MaxFanout    int           // Per-job indicator fan-out cap
	CacheTTL     time.Duration // Indicator cache entry lifetime

	// Maintenance schedules (cron expressions, robfig/cron with seconds)
	RetentionSchedule  string
	CheckpointSchedule string
	CacheSweepSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists
	// before any database is opened under it.
	dataDir := getEnv("QUANTD_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("QUANTD_PORT", 8090),
		LogLevel: getEnv("QUANTD_LOG_LEVEL", "info"),
		Pretty:   getEnvAsBool("QUANTD_LOG_PRETTY", false),
		DevMode:  getEnvAsBool("QUANTD_DEV_MODE", false),

		Workers:          getEnvAsInt("QUANTD_WORKERS", 4),
		JobTimeout:       time.Duration(getEnvAsInt("QUANTD_JOB_TIMEOUT_SECONDS", 0)) * time.Second,
		JobRetentionDays: getEnvAsInt("QUANTD_JOB_RETENTION_DAYS", 30),

		FetchTimeout: time.Duration(getEnvAsInt("QUANTD_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		RiskFreeRate: getEnvAsFloat("QUANTD_RISK_FREE_RATE", 0.02),
		MaxFanout:    getEnvAsInt("QUANTD_MAX_FANOUT", 4),
		CacheTTL:     time.Duration(getEnvAsInt("QUANTD_CACHE_TTL_HOURS", 24)) * time.Hour,

		RetentionSchedule:  getEnv("QUANTD_RETENTION_SCHEDULE", "0 0 3 * * *"),
		CheckpointSchedule: getEnv("QUANTD_CHECKPOINT_SCHEDULE", "0 0 * * * *"),
		CacheSweepSchedule: getEnv("QUANTD_CACHE_SWEEP_SCHEDULE", "0 30 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in [1, 65535]", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid worker count %d: must be >= 1", c.Workers)
	}
	if c.JobRetentionDays < 1 {
		return fmt.Errorf("invalid job retention %d days: must be >= 1", c.JobRetentionDays)
	}
	if c.RiskFreeRate < -0.05 || c.RiskFreeRate > 0.5 {
		return fmt.Errorf("implausible risk-free rate %.4f: must be in [-0.05, 0.5]", c.RiskFreeRate)
	}
	if c.MaxFanout < 1 {
		return fmt.Errorf("invalid fan-out cap %d: must be >= 1", c.MaxFanout)
	}
	return nil
}

// DatabasePath returns the path of a named database under the data directory.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
