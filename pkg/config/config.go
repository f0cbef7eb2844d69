package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrDatabaseURLMissing is returned by RequireDatabase when DATABASE_URL is empty
var ErrDatabaseURLMissing = errors.New("DATABASE_URL is required")

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
	Universe  UniverseConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ProvidersConfig holds upstream market data provider settings
type ProvidersConfig struct {
	YahooBaseURL   string
	PolygonBaseURL string
	PolygonAPIKey  string // empty = secondary provider disabled

	Timeout time.Duration // per upstream call
	RPS     int           // local requests/sec per provider
}

// PolygonEnabled reports whether the paid secondary source is configured
func (p ProvidersConfig) PolygonEnabled() bool {
	return p.PolygonAPIKey != ""
}

// PipelineConfig holds end-of-day run tuning
type PipelineConfig struct {
	QuoteBatchSize    int
	ChainWorkers      int
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MinValidContracts int
	PriceTolerance    float64
}

// UniverseConfig holds universe builder inputs
type UniverseConfig struct {
	SourceURL    string
	SeedSymbols  []string
	MinMarketCap float64
	MinAvgVolume int64
}

// SchedulerConfig holds the EOD trigger schedule
type SchedulerConfig struct {
	Cron     string // with seconds
	Timezone string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Providers: ProvidersConfig{
			YahooBaseURL:   getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			PolygonBaseURL: getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
			PolygonAPIKey:  getEnv("POLYGON_API_KEY", ""),
			Timeout:        getEnvAsDuration("PROVIDER_TIMEOUT", "10s"),
			RPS:            getEnvAsInt("PROVIDER_RPS", 5),
		},

		Pipeline: PipelineConfig{
			QuoteBatchSize:    getEnvAsInt("QUOTE_BATCH_SIZE", 50),
			ChainWorkers:      getEnvAsInt("CHAIN_WORKERS", 4),
			RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
			RetryBaseDelay:    getEnvAsDuration("RETRY_BASE_DELAY", "1s"),
			RetryMaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", "30s"),
			MinValidContracts: getEnvAsInt("MIN_VALID_CONTRACTS", 10),
			PriceTolerance:    getEnvAsFloat("PRICE_TOLERANCE", 0.01),
		},

		Universe: UniverseConfig{
			SourceURL:    getEnv("UNIVERSE_SOURCE_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
			SeedSymbols:  getEnvAsList("UNIVERSE_SEED_SYMBOLS", nil),
			MinMarketCap: getEnvAsFloat("UNIVERSE_MIN_MARKET_CAP", 2_000_000_000),
			MinAvgVolume: int64(getEnvAsInt("UNIVERSE_MIN_AVG_VOLUME", 500_000)),
		},

		Scheduler: SchedulerConfig{
			Cron:     getEnv("SCHEDULE_CRON", "0 30 16 * * MON-FRI"), // 장 마감 30분 후
			Timezone: getEnv("SCHEDULE_TZ", "America/New_York"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// RequireDatabase fails when no database is configured.
// Commands that only run against the in-memory store skip this check.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrDatabaseURLMissing
	}
	return nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	p := c.Pipeline
	if p.QuoteBatchSize <= 0 {
		return fmt.Errorf("QUOTE_BATCH_SIZE must be positive, got %d", p.QuoteBatchSize)
	}
	if p.ChainWorkers <= 0 {
		return fmt.Errorf("CHAIN_WORKERS must be positive, got %d", p.ChainWorkers)
	}
	if p.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", p.RetryMaxAttempts)
	}
	if p.MinValidContracts < 0 {
		return fmt.Errorf("MIN_VALID_CONTRACTS must not be negative, got %d", p.MinValidContracts)
	}
	if c.Providers.RPS <= 0 {
		return fmt.Errorf("PROVIDER_RPS must be positive, got %d", c.Providers.RPS)
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, trimming blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
