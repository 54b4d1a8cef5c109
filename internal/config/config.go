// Package config loads service configuration from environment variables,
// with optional .env bootstrap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/estatehub/reportsweep/internal/logger"
)

// Config holds all configuration for the report sweeper
type Config struct {
	// RedisURL is the connection URL for the Redis store
	RedisURL string
	// TenantIDs are the tenants this instance sweeps
	TenantIDs []string
	// SweepCron is the 5-field cron expression triggering sweeps
	SweepCron string
	// SweepConcurrency bounds the worker pool within one sweep
	SweepConcurrency int
	// SweepLockTTL bounds the per-tenant sweep lock
	SweepLockTTL time.Duration
	// RuleLockTTL bounds the per-rule processing marker
	RuleLockTTL time.Duration
	// SynthesisBaseURL is the narrative-synthesis service endpoint
	SynthesisBaseURL string
	// SynthesisTimeout bounds each synthesis call
	SynthesisTimeout time.Duration
	// Logging configuration
	Logging *logger.Config
}

// cronParser validates sweep trigger expressions (standard 5-field cron)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LoadConfig loads configuration from the environment with sensible
// defaults. A .env file in the working directory is applied first when
// present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		TenantIDs:        getEnvAsStringSlice("TENANT_IDS", nil),
		SweepCron:        getEnv("SWEEP_CRON", "*/5 * * * *"),
		SweepConcurrency: getEnvAsInt("SWEEP_CONCURRENCY", 4),
		SweepLockTTL:     getEnvAsDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		RuleLockTTL:      getEnvAsDuration("RULE_LOCK_TTL", 2*time.Minute),
		SynthesisBaseURL: getEnv("SYNTHESIS_BASE_URL", ""),
		SynthesisTimeout: getEnvAsDuration("SYNTHESIS_TIMEOUT", 60*time.Second),
		Logging:          loadLoggingConfig(),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if len(cfg.TenantIDs) == 0 {
		return nil, fmt.Errorf("TENANT_IDS must contain at least one tenant")
	}
	if cfg.SynthesisBaseURL == "" {
		return nil, fmt.Errorf("SYNTHESIS_BASE_URL cannot be empty")
	}
	if cfg.SweepConcurrency < 1 {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY must be at least 1")
	}
	if _, err := cronParser.Parse(cfg.SweepCron); err != nil {
		return nil, fmt.Errorf("invalid SWEEP_CRON %q: %w", cfg.SweepCron, err)
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)

	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", cfg.File.Path)
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", cfg.File.MaxSizeMB)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", cfg.File.MaxBackups)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", cfg.File.MaxAgeDays)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", cfg.File.Compress)

	return cfg
}
