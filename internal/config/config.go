// Package config loads LeekSaver's configuration from the environment:
// .env if present, then typed env lookups with defaults, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the core consumes.
type Config struct {
	// Ambient
	DatabasePath string
	LogLevel     string
	LogPretty    bool

	// Job Runtime
	JobRuntimeWorkers  int
	JobDefaultDeadline time.Duration

	// Rate Gate
	UpstreamRateQPS   float64
	UpstreamRateBurst int
	UpstreamBaseURL   string

	// Schedule Generator policy knobs
	L1DailyTime         string // HH:MM
	L2IntervalSeconds   int
	L2TaskOffsetSeconds int
	RealtimeCacheTTL    time.Duration

	SyncFinancialDayOfWeek int
	SyncFinancialHour      int
	SyncFinancialMinute    int

	CleanupNewsDayOfWeek int
	CleanupNewsHour      int
	CleanupNewsMinute    int

	// Syncer behavior
	SyncBatchSize               int
	NewsRetentionDays           int
	NewsCleanupProtectWatchlist bool

	// Embeddings
	EmbeddingsBaseURL   string
	EmbeddingsBatchSize int

	// Open-question policy flags
	SymbolIndustrySecondaryWins   bool
	TechIndicatorsRecomputeHistory bool

	// Data Doctor
	DoctorCoverageLookbackDays int
	DoctorCoverageTarget       float64
	DoctorShardSize            int

	SyncErrorQuarantineRetries int
}

// Load reads .env if present, then the environment, applying defaults for
// every recognized variable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: getEnv("LEEKSAVER_DB_PATH", "./data/leeksaver.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),

		JobRuntimeWorkers:  getEnvAsInt("JOB_RUNTIME_WORKERS", 4),
		JobDefaultDeadline: time.Duration(getEnvAsInt("JOB_DEFAULT_DEADLINE_SECONDS", 120)) * time.Second,

		UpstreamRateQPS:   getEnvAsFloat("UPSTREAM_RATE_QPS", 5),
		UpstreamRateBurst: getEnvAsInt("UPSTREAM_RATE_BURST", 5),
		UpstreamBaseURL:   getEnv("UPSTREAM_BASE_URL", "https://example-ashare-feed.invalid"),

		L1DailyTime:         getEnv("SYNC_L1_DAILY_TIME", "17:30"),
		L2IntervalSeconds:   getEnvAsInt("SYNC_L2_INTERVAL_SECONDS", 300),
		L2TaskOffsetSeconds: getEnvAsInt("SYNC_L2_TASK_OFFSET_SECONDS", 120),
		RealtimeCacheTTL:    time.Duration(getEnvAsInt("REALTIME_CACHE_TTL", 10)) * time.Second,

		SyncFinancialDayOfWeek: getEnvAsInt("SYNC_FINANCIAL_DAY_OF_WEEK", 6), // Saturday
		SyncFinancialHour:      getEnvAsInt("SYNC_FINANCIAL_HOUR", 20),
		SyncFinancialMinute:    getEnvAsInt("SYNC_FINANCIAL_MINUTE", 0),

		CleanupNewsDayOfWeek: getEnvAsInt("CLEANUP_NEWS_DAY_OF_WEEK", 1), // Monday
		CleanupNewsHour:      getEnvAsInt("CLEANUP_NEWS_HOUR", 2),
		CleanupNewsMinute:    getEnvAsInt("CLEANUP_NEWS_MINUTE", 0),

		SyncBatchSize:               getEnvAsInt("SYNC_BATCH_SIZE", 50),
		NewsRetentionDays:           getEnvAsInt("NEWS_RETENTION_DAYS", 90),
		NewsCleanupProtectWatchlist: getEnvAsBool("NEWS_CLEANUP_PROTECT_WATCHLIST", true),

		EmbeddingsBaseURL:   getEnv("EMBEDDINGS_BASE_URL", ""),
		EmbeddingsBatchSize: getEnvAsInt("EMBEDDINGS_BATCH_SIZE", 64),

		SymbolIndustrySecondaryWins:    getEnvAsBool("SYMBOL_INDUSTRY_SECONDARY_WINS", false),
		TechIndicatorsRecomputeHistory: getEnvAsBool("TECH_INDICATORS_RECOMPUTE_HISTORY", false),

		DoctorCoverageLookbackDays: getEnvAsInt("DOCTOR_COVERAGE_LOOKBACK_DAYS", 5),
		DoctorCoverageTarget:       getEnvAsFloat("DOCTOR_COVERAGE_TARGET", 0.95),
		DoctorShardSize:            getEnvAsInt("DOCTOR_SHARD_SIZE", 100),

		SyncErrorQuarantineRetries: getEnvAsInt("SYNC_ERROR_QUARANTINE_RETRIES", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("LEEKSAVER_DB_PATH is required")
	}
	if c.JobRuntimeWorkers <= 0 {
		return fmt.Errorf("JOB_RUNTIME_WORKERS must be positive")
	}
	if c.UpstreamRateQPS <= 0 {
		return fmt.Errorf("UPSTREAM_RATE_QPS must be positive")
	}
	if _, _, err := ParseHHMM(c.L1DailyTime); err != nil {
		return fmt.Errorf("SYNC_L1_DAILY_TIME invalid: %w", err)
	}
	return nil
}

// ParseHHMM parses "HH:MM" into hour, minute. Validate uses it to check
// L1DailyTime; the Schedule Generator parses the knob with its own helper.
func ParseHHMM(s string) (int, int, error) {
	var h, m int
	_, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("out of range HH:MM %q", s)
	}
	return h, m, nil
}

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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
