// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// MarketDataDSN is the ClickHouse connection string for market data and bars.
	MarketDataDSN string

	// OrdersDSN is the Postgres connection string for the orders store.
	OrdersDSN string

	// KafkaMarketData contains Kafka settings for the collector -> aggregator feed.
	KafkaMarketData KafkaConfig

	// KafkaTicks contains Kafka settings for the streamer -> aggregator feed.
	KafkaTicks KafkaConfig

	// Orchestrator contains settings for the channel orchestrator.
	Orchestrator OrchestratorConfig

	// Aggregator contains settings for the bar aggregation service.
	Aggregator AggregatorConfig

	// Bars contains default bar builder parameters.
	Bars BarConfig

	// Brokers contains per-venue broker settings.
	Brokers map[string]BrokerConfig
}

// KafkaConfig holds Kafka connection settings for one topic.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string

	// Topic is the Kafka topic name.
	Topic string

	// GroupID is the consumer group ID for readers of the topic.
	GroupID string
}

// OrchestratorConfig holds settings for the periodic fan-out fetch cycle.
type OrchestratorConfig struct {
	// FetchInterval is the period between collection cycles.
	FetchInterval time.Duration

	// StartleDelay is the delay before the first cycle, giving
	// collaborators time to initialize after process start.
	StartleDelay time.Duration

	// Interval is the candle interval requested from each channel ("1m", "5m", ...).
	Interval string

	// Limit is the number of candles requested per symbol per cycle.
	Limit int
}

// AggregatorConfig holds settings for the bar aggregation consumer.
type AggregatorConfig struct {
	// Workers is the number of symbol-sharded workers. All events for one
	// symbol always land on the same worker.
	Workers int

	// BatchSize is the maximum number of bars to accumulate before flushing.
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing.
	BatchTimeout time.Duration
}

// BarConfig holds default bar builder parameters. Builders fail fast on
// zero or negative values at construction.
type BarConfig struct {
	// TickSize is the number of ticks per tick bar.
	TickSize int

	// RangeThreshold is the high-low span that closes a range bar.
	RangeThreshold float64

	// RenkoBrickSize is the fixed renko brick size.
	RenkoBrickSize float64

	// RenkoSizing selects the brick sizing method: "fixed", "atr", "percent".
	RenkoSizing string

	// RenkoATRPeriod is the trailing period for ATR-derived sizing.
	RenkoATRPeriod int

	// RenkoPercent is the percent-of-price for percent sizing.
	RenkoPercent float64
}

// BrokerConfig holds per-venue gateway settings. API credentials come from
// the environment and are never logged.
type BrokerConfig struct {
	// APIKey is the venue API key.
	APIKey string

	// APISecret is the venue API secret.
	APISecret string

	// MinInterval is the minimum time between dispatched requests.
	MinInterval time.Duration

	// MaxConcurrency is the maximum number of in-flight requests.
	MaxConcurrency int

	// Testnet routes requests to the venue's testnet when true.
	Testnet bool
}

// getMarketDataDSN constructs the ClickHouse DSN from environment variables.
func getMarketDataDSN() string {
	dbUser := getEnv("CLICKHOUSE_USER", "user")
	dbPassword := getEnv("CLICKHOUSE_PASSWORD", "password")
	dbHost := getEnv("CLICKHOUSE_HOST", "localhost")
	dbPort := getEnv("CLICKHOUSE_TCP_PORT", "9000")
	dbName := getEnv("CLICKHOUSE_DB", "tradegate")

	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		dbUser, dbPassword, dbHost, dbPort, dbName,
	)
}

// getOrdersDSN constructs the Postgres DSN from environment variables.
func getOrdersDSN() string {
	dbUser := getEnv("POSTGRES_USER", "tradegate")
	dbPassword := getEnv("POSTGRES_PASSWORD", "tradegate")
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbName := getEnv("POSTGRES_DB", "tradegate")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslMode,
	)
}

// getBrokerConfigs loads per-venue broker settings from environment.
// Rate-limit parameters default to conservative values under the venue's
// published limits.
func getBrokerConfigs() map[string]BrokerConfig {
	return map[string]BrokerConfig{
		"binance": {
			APIKey:         getEnv("BINANCE_API_KEY", ""),
			APISecret:      getEnv("BINANCE_API_SECRET", ""),
			MinInterval:    time.Duration(getEnvInt("BINANCE_MIN_INTERVAL_MS", 50)) * time.Millisecond,
			MaxConcurrency: getEnvInt("BINANCE_MAX_CONCURRENCY", 20),
			Testnet:        getEnvBool("BINANCE_TESTNET", true),
		},
		"bybit": {
			APIKey:         getEnv("BYBIT_API_KEY", ""),
			APISecret:      getEnv("BYBIT_API_SECRET", ""),
			MinInterval:    time.Duration(getEnvInt("BYBIT_MIN_INTERVAL_MS", 100)) * time.Millisecond,
			MaxConcurrency: getEnvInt("BYBIT_MAX_CONCURRENCY", 10),
			Testnet:        getEnvBool("BYBIT_TESTNET", true),
		},
	}
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		MarketDataDSN: getMarketDataDSN(),
		OrdersDSN:     getOrdersDSN(),
		KafkaMarketData: KafkaConfig{
			Broker:  getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:   getEnv("KAFKA_MARKET_DATA_TOPIC", "tradegate_market_data"),
			GroupID: getEnv("KAFKA_MARKET_DATA_GROUP_ID", "tradegate-bar-aggregator"),
		},
		KafkaTicks: KafkaConfig{
			Broker:  getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:   getEnv("KAFKA_TICK_TOPIC", "tradegate_ticks"),
			GroupID: getEnv("KAFKA_TICK_GROUP_ID", "tradegate-tick-aggregator"),
		},
		Orchestrator: OrchestratorConfig{
			FetchInterval: time.Duration(getEnvInt("FETCH_INTERVAL_SECONDS", 60)) * time.Second,
			StartleDelay:  time.Duration(getEnvInt("STARTLE_DELAY_SECONDS", 10)) * time.Second,
			Interval:      getEnv("FETCH_CANDLE_INTERVAL", "1m"),
			Limit:         getEnvInt("FETCH_CANDLE_LIMIT", 100),
		},
		Aggregator: AggregatorConfig{
			Workers:      getEnvInt("AGGREGATOR_WORKERS", 4),
			BatchSize:    getEnvInt("BATCH_SIZE", 200),
			BatchTimeout: time.Duration(getEnvInt("BATCH_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Bars: BarConfig{
			TickSize:       getEnvInt("BAR_TICK_SIZE", 100),
			RangeThreshold: getEnvFloat("BAR_RANGE_THRESHOLD", 10.0),
			RenkoBrickSize: getEnvFloat("BAR_RENKO_BRICK_SIZE", 50.0),
			RenkoSizing:    getEnv("BAR_RENKO_SIZING", "fixed"),
			RenkoATRPeriod: getEnvInt("BAR_RENKO_ATR_PERIOD", 14),
			RenkoPercent:   getEnvFloat("BAR_RENKO_PERCENT", 0.5),
		},
		Brokers: getBrokerConfigs(),
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
