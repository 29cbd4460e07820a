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
	DataDir  string // Base directory for the relational databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Document store (DynamoDB) settings
	AWSRegion      string
	DynamoEndpoint string // Optional endpoint override (local development)
	ContractsTable string
	CommentsTable  string

	Feed FeedConfig
	Jobs JobsConfig
}

// FeedConfig holds the feed timeline tuning knobs.
// These are tuning parameters rather than structural invariants, so they are
// all overridable through the environment.
type FeedConfig struct {
	PageSize              int           // General events per backfill page
	HighSignalCap         int           // Priority events fetched ahead of the general page
	UnseenHorizon         time.Duration // How far back unseen backfill content is eligible
	CommentSeenWindow     time.Duration // Window for "viewed comment thread" suppression
	BootstrapAttempts     int           // Max older-fetches on first load
	BootstrapMinimum      int           // Items per fetch below which bootstrap keeps trying
	MinCommentLikes       int           // Minimum likes for a comment to be surfaced
	SignificanceThreshold float64       // Absolute probability delta that counts as a move
	LivePushInterval      time.Duration // Poll interval for the websocket live feed
}

// JobsConfig holds background job scheduling configuration
type JobsConfig struct {
	Enabled          bool
	TrendingSchedule string        // Cron spec for the trending scan job
	CleanupSchedule  string        // Cron spec for the feed cleanup job
	SeenRetention    time.Duration // Seen feed rows older than this are purged
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TIDEMARK_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		DynamoEndpoint: getEnv("DYNAMO_ENDPOINT", ""),
		ContractsTable: getEnv("CONTRACTS_TABLE", "contracts"),
		CommentsTable:  getEnv("COMMENTS_TABLE", "comments"),
		Feed:           loadFeedConfig(),
		Jobs:           loadJobsConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFeedConfig loads the feed tuning knobs with their production defaults
func loadFeedConfig() FeedConfig {
	return FeedConfig{
		PageSize:              getEnvAsInt("FEED_PAGE_SIZE", 25),
		HighSignalCap:         getEnvAsInt("FEED_HIGH_SIGNAL_CAP", 15),
		UnseenHorizon:         getEnvAsDuration("FEED_UNSEEN_HORIZON", 5*24*time.Hour),
		CommentSeenWindow:     getEnvAsDuration("FEED_COMMENT_SEEN_WINDOW", 5*24*time.Hour),
		BootstrapAttempts:     getEnvAsInt("FEED_BOOTSTRAP_ATTEMPTS", 5),
		BootstrapMinimum:      getEnvAsInt("FEED_BOOTSTRAP_MINIMUM", 10),
		MinCommentLikes:       getEnvAsInt("FEED_MIN_COMMENT_LIKES", 1),
		SignificanceThreshold: getEnvAsFloat("FEED_SIGNIFICANCE_THRESHOLD", 0.055),
		LivePushInterval:      getEnvAsDuration("FEED_LIVE_PUSH_INTERVAL", 30*time.Second),
	}
}

// loadJobsConfig loads background job scheduling configuration
func loadJobsConfig() JobsConfig {
	return JobsConfig{
		Enabled:          getEnvAsBool("JOBS_ENABLED", true),
		TrendingSchedule: getEnv("TRENDING_SCAN_SCHEDULE", "@every 15m"),
		CleanupSchedule:  getEnv("FEED_CLEANUP_SCHEDULE", "@daily"),
		SeenRetention:    getEnvAsDuration("FEED_SEEN_RETENTION", 14*24*time.Hour),
	}
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("FEED_PAGE_SIZE must be positive, got %d", c.Feed.PageSize)
	}
	if c.Feed.BootstrapAttempts <= 0 {
		return fmt.Errorf("FEED_BOOTSTRAP_ATTEMPTS must be positive, got %d", c.Feed.BootstrapAttempts)
	}
	if c.Feed.SignificanceThreshold < 0 || c.Feed.SignificanceThreshold >= 1 {
		return fmt.Errorf("FEED_SIGNIFICANCE_THRESHOLD must be in [0, 1), got %f", c.Feed.SignificanceThreshold)
	}
	return nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
