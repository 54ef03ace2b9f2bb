package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	// Listing URLs to crawl on every scheduled run
	ListingURLs []string

	// Scheduling
	CrawlCron     string
	CrawlInterval time.Duration
	RunTimeout    time.Duration

	// Crawler configuration
	MaxPages          int
	MaxBlindPages     int
	DetailConcurrency int
	PageDelay         time.Duration
	PageTimeout       time.Duration
	FetchMode         string
	SitesFile         string

	// Storage configuration
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Observability
	MetricsAddr  string
	ErrorLogFile string

	// Environment
	Environment string
}

const (
	FetchModeHTTP   = "http"
	FetchModeChrome = "chrome"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LoadConfig loads the configuration from environment variables with defaults.
// CRAWL_MAX_PAGES has no default: the page cap must be chosen per deployment.
func LoadConfig() *Config {
	return &Config{
		ListingURLs:          splitList(getEnv("LISTING_URLS", "")),
		CrawlCron:            getEnv("CRAWL_CRON", ""),
		CrawlInterval:        time.Duration(getEnvInt("CRAWL_INTERVAL_SECONDS", 60)) * time.Second,
		RunTimeout:           time.Duration(getEnvInt("RUN_TIMEOUT_SECONDS", 300)) * time.Second,
		MaxPages:             getEnvInt("CRAWL_MAX_PAGES", 0),
		MaxBlindPages:        getEnvInt("CRAWL_MAX_BLIND_PAGES", 1),
		DetailConcurrency:    getEnvInt("DETAIL_CONCURRENCY", 4),
		PageDelay:            time.Duration(getEnvInt("PAGE_DELAY_MS", 1000)) * time.Millisecond,
		PageTimeout:          time.Duration(getEnvInt("PAGE_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchMode:            getEnv("FETCH_MODE", FetchModeHTTP),
		SitesFile:            getEnv("SITES_FILE", ""),
		DBDriver:             getEnv("DB_DRIVER", DriverSQLite),
		DBPath:               getEnv("DB_PATH", "data/ads.db"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "ads"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		RateLimitBlock:       time.Duration(getEnvInt("RATE_LIMIT_BLOCK_SECONDS", 300)) * time.Second,
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
		ErrorLogFile:         getEnv("ERROR_LOG_FILE", "data/errors.log"),
		Environment:          getEnv("ADWATCHER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the crawler cannot run with
func (c *Config) Validate() error {
	if len(c.ListingURLs) == 0 {
		return fmt.Errorf("LISTING_URLS must contain at least one url")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("CRAWL_MAX_PAGES must be set to a value >= 1")
	}
	if c.MaxBlindPages < 0 {
		return fmt.Errorf("CRAWL_MAX_BLIND_PAGES must not be negative")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("PAGE_TIMEOUT_SECONDS must be positive")
	}
	if c.DetailConcurrency < 1 {
		return fmt.Errorf("DETAIL_CONCURRENCY must be >= 1")
	}
	switch c.FetchMode {
	case FetchModeHTTP, FetchModeChrome:
	default:
		return fmt.Errorf("unknown FETCH_MODE %q", c.FetchMode)
	}
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.CrawlCron != "" {
		if _, err := cron.ParseStandard(c.CrawlCron); err != nil {
			return fmt.Errorf("invalid CRAWL_CRON: %w", err)
		}
	} else if c.CrawlInterval <= 0 {
		return fmt.Errorf("CRAWL_INTERVAL_SECONDS must be positive when CRAWL_CRON is empty")
	}
	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
