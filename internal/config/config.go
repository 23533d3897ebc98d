package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/windows"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// GitHub configuration
	GitHubAPIURL     string
	GitHubGraphQLURL string
	GitHubToken      string // default credential, overridden per request
	UserAgent        string
	HTTPTimeout      time.Duration
	SearchRateLimit  float64 // requests per second, 0 disables pacing
	SearchBurst      int

	// Trend configuration
	GraphQLBatchSize int
	CountCacheSize   int
	CountCacheTTL    time.Duration
	MetricsNamespace string

	// Digest configuration
	DigestEnabled      bool
	DigestSchedule     string // cron expression with seconds
	WatchTerms         []string
	DigestCreatedAfter time.Time
	TrendGranularity   models.Granularity
	TrendStartYear     int
	TrendMetric        models.Metric

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		GitHubAPIURL:     getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubGraphQLURL: getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		GitHubToken:      getEnv("GITHUB_TOKEN", ""),
		UserAgent:        getEnv("USER_AGENT", "github-trend-analyzer/1.0"),
		HTTPTimeout:      getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		SearchRateLimit:  getFloatEnv("SEARCH_RATE_LIMIT", 0.5),
		SearchBurst:      getIntEnv("SEARCH_BURST", 3),

		GraphQLBatchSize: getIntEnv("GRAPHQL_BATCH_SIZE", 24),
		CountCacheSize:   getIntEnv("COUNT_CACHE_SIZE", 1024),
		CountCacheTTL:    getDurationEnv("COUNT_CACHE_TTL", 24*time.Hour),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "trend_analyzer"),

		DigestEnabled:  getBoolEnv("DIGEST_ENABLED", false),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 0 9 * * MON"),
		WatchTerms:     getSliceEnv("WATCH_TERMS", nil),
		TrendStartYear: getIntEnv("TREND_START_YEAR", 2020),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	var err error
	if cfg.TrendGranularity, err = windows.ParseGranularity(getEnv("TREND_GRANULARITY", "quarter")); err != nil {
		return nil, fmt.Errorf("configuration validation failed: TREND_GRANULARITY: %w", err)
	}
	if cfg.TrendMetric, err = models.ParseMetric(getEnv("TREND_METRIC", "repositories")); err != nil {
		return nil, fmt.Errorf("configuration validation failed: TREND_METRIC: %w", err)
	}
	if value := getEnv("DIGEST_CREATED_AFTER", ""); value != "" {
		if cfg.DigestCreatedAfter, err = time.Parse(models.DateLayout, value); err != nil {
			return nil, fmt.Errorf("configuration validation failed: DIGEST_CREATED_AFTER must be YYYY-MM-DD: %w", err)
		}
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.GraphQLBatchSize < 1 || c.GraphQLBatchSize > 100 {
		return fmt.Errorf("GRAPHQL_BATCH_SIZE must be between 1 and 100")
	}

	if c.SearchRateLimit < 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT must not be negative")
	}

	if c.SearchBurst < 1 {
		return fmt.Errorf("SEARCH_BURST must be at least 1")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if !c.DigestEnabled {
		return nil
	}

	if len(c.WatchTerms) == 0 {
		return fmt.Errorf("WATCH_TERMS is required when DIGEST_ENABLED is set")
	}

	if c.TeamsWebhookURL == "" && c.NotificationEmail == "" {
		return fmt.Errorf("at least one notification method must be configured (TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL)")
	}

	if _, err := scheduleParser.Parse(c.DigestSchedule); err != nil {
		return fmt.Errorf("DIGEST_SCHEDULE is not a valid cron expression: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
