package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket API
	PolymarketRTDSURL    string
	PolymarketGammaURL   string
	PolymarketDataURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string

	// Whale set
	WhaleReportPath string
	WhaleTopN       int

	// Simulation
	SimStake decimal.Decimal

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMinStableDuration     time.Duration

	// Ingestion
	IngestQueueSize      int
	IngestWorkers        int
	MarketStatusCacheTTL time.Duration

	// Resolution oracle
	OracleBatchSize  int
	OracleBatchDelay time.Duration
	OracleTimeout    time.Duration

	// Settlement
	ReconcileInterval time.Duration

	// Backfill
	BackfillWhaleDelay time.Duration

	// Storage
	StorageMode  string // "sqlite", "postgres" or "memory"
	DatabasePath string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket API defaults
		PolymarketRTDSURL:    getEnvOrDefault("POLYMARKET_RTDS_URL", "wss://ws-live-data.polymarket.com"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketDataURL:    getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),

		// Whale set defaults
		WhaleReportPath: getEnvOrDefault("WHALE_REPORT_PATH", "whales.csv"),
		WhaleTopN:       getIntOrDefault("WHALE_TOP_N", 400),

		// Simulation defaults
		SimStake: getDecimalOrDefault("SIM_STAKE", decimal.NewFromInt(1)),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 2*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 60*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMinStableDuration:     getDurationOrDefault("WS_MIN_STABLE_DURATION", 30*time.Second),

		// Ingestion defaults
		IngestQueueSize:      getIntOrDefault("INGEST_QUEUE_SIZE", 1000),
		IngestWorkers:        getIntOrDefault("INGEST_WORKERS", 4),
		MarketStatusCacheTTL: getDurationOrDefault("MARKET_STATUS_CACHE_TTL", 5*time.Minute),

		// Oracle defaults
		OracleBatchSize:  getIntOrDefault("ORACLE_BATCH_SIZE", 50),
		OracleBatchDelay: getDurationOrDefault("ORACLE_BATCH_DELAY", 200*time.Millisecond),
		OracleTimeout:    getDurationOrDefault("ORACLE_TIMEOUT", 5*time.Second),

		// Settlement defaults
		ReconcileInterval: getDurationOrDefault("RECONCILE_INTERVAL", time.Hour),

		// Backfill defaults
		BackfillWhaleDelay: getDurationOrDefault("BACKFILL_WHALE_DELAY", time.Second),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "sqlite"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "whalesim.db"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "whalesim"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "whalesim"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "whalesim"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid. Feed credentials are checked separately
// by ValidateFeedCredentials because only ingestion needs them.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketRTDSURL == "" {
		return fmt.Errorf("POLYMARKET_RTDS_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.WhaleTopN <= 0 {
		return fmt.Errorf("WHALE_TOP_N must be positive, got %d", c.WhaleTopN)
	}

	if !c.SimStake.IsPositive() {
		return fmt.Errorf("SIM_STAKE must be positive, got %s", c.SimStake)
	}

	if c.WSReconnectInitialDelay <= 0 || c.WSReconnectMaxDelay < c.WSReconnectInitialDelay {
		return fmt.Errorf("WS_RECONNECT_MAX_DELAY (%s) must be >= WS_RECONNECT_INITIAL_DELAY (%s) > 0",
			c.WSReconnectMaxDelay, c.WSReconnectInitialDelay)
	}

	if c.WSReconnectBackoffMult < 1 {
		return fmt.Errorf("WS_RECONNECT_BACKOFF_MULTIPLIER must be >= 1, got %f", c.WSReconnectBackoffMult)
	}

	if c.IngestQueueSize <= 0 || c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE and INGEST_WORKERS must be positive, got %d and %d",
			c.IngestQueueSize, c.IngestWorkers)
	}

	if c.OracleBatchSize <= 0 || c.OracleBatchSize > 50 {
		return fmt.Errorf("ORACLE_BATCH_SIZE must be between 1 and 50, got %d", c.OracleBatchSize)
	}

	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive, got %s", c.OracleTimeout)
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}

	switch c.StorageMode {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_MODE must be 'sqlite', 'postgres' or 'memory', got %q", c.StorageMode)
	}

	if c.StorageMode == "sqlite" && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty in sqlite mode")
	}

	return nil
}

// ValidateFeedCredentials checks the credentials sent with the feed subscription.
func (c *Config) ValidateFeedCredentials() error {
	var missing []string
	if c.PolymarketAPIKey == "" {
		missing = append(missing, "POLYMARKET_API_KEY")
	}
	if c.PolymarketSecret == "" {
		missing = append(missing, "POLYMARKET_SECRET")
	}
	if c.PolymarketPassphrase == "" {
		missing = append(missing, "POLYMARKET_PASSPHRASE")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required environment variables: %v", types.ErrMissingCredentials, missing)
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDecimalOrDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return defaultValue
	}

	return dec
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
