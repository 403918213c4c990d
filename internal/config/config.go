package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/BackOfficeGo/pkg/config"
)

// Config holds all configuration for the promotion service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort              int      `env:"PROMOTION_HTTP_PORT" envDefault:"8010"`
	RequestTimeoutSeconds int      `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ActiveMaxAgeSeconds   int      `env:"ACTIVE_PROMOTIONS_MAX_AGE_SECONDS" envDefault:"30"`
	PprofAllowedCIDRs     []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"backoffice"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"backoffice_secret"`
	PostgresDB   string `env:"PROMOTION_DB_NAME" envDefault:"promotion_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis catalog cache and consumer idempotency. Disabled means every
	// evaluation reads PostgreSQL and processed events are kept in memory.
	RedisEnabled           bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost              string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort              int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword          string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB                int    `env:"REDIS_DB" envDefault:"0"`
	CatalogCacheTTLSeconds int    `env:"CATALOG_CACHE_TTL_SECONDS" envDefault:"60"`

	// Kafka
	KafkaBrokers          []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	OrderCompletedTopic   string   `env:"ORDER_COMPLETED_TOPIC" envDefault:"pos.order.completed"`
	OrderCompletedGroupID string   `env:"ORDER_COMPLETED_GROUP_ID" envDefault:"promotion-service-order-completed"`
	IdempotencyTTLHours   int      `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Usage recorder
	UsageQueueSize          int     `env:"USAGE_QUEUE_SIZE" envDefault:"1024"`
	UsageWorkers            int     `env:"USAGE_WORKERS" envDefault:"4"`
	UsageStoreTimeoutMs     int     `env:"USAGE_STORE_TIMEOUT_MS" envDefault:"5000"`
	UsageBreakerFailureRate float64 `env:"USAGE_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	UsageBreakerMinRequests uint32  `env:"USAGE_BREAKER_MIN_REQUESTS" envDefault:"5"`
	UsageBreakerTimeoutSecs int     `env:"USAGE_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	UsageDrainSeconds       int     `env:"USAGE_DRAIN_SECONDS" envDefault:"10"`

	// StoreTimeZone is the IANA zone promotion windows are written in.
	StoreTimeZone string `env:"STORE_TIMEZONE" envDefault:"UTC"`
	location      *time.Location

	// Redeem throttling per terminal; a rate of 0 disables it
	RedeemRatePerSecond float64 `env:"REDEEM_RATE_PER_SECOND" envDefault:"20"`
	RedeemBurst         int     `env:"REDEEM_BURST" envDefault:"40"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load promotion config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OrderCompletedTopic == "" {
		return fmt.Errorf("ORDER_COMPLETED_TOPIC is required")
	}
	if c.RedisEnabled && (c.RedisPort < 1 || c.RedisPort > 65535) {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}
	if c.CatalogCacheTTLSeconds <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL_SECONDS must be > 0, got %d", c.CatalogCacheTTLSeconds)
	}
	if c.UsageQueueSize <= 0 {
		return fmt.Errorf("USAGE_QUEUE_SIZE must be > 0, got %d", c.UsageQueueSize)
	}
	if c.UsageWorkers <= 0 {
		return fmt.Errorf("USAGE_WORKERS must be > 0, got %d", c.UsageWorkers)
	}
	if c.UsageBreakerFailureRate <= 0 || c.UsageBreakerFailureRate > 1.0 {
		return fmt.Errorf("USAGE_BREAKER_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.UsageBreakerFailureRate)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.RedeemRatePerSecond < 0 {
		return fmt.Errorf("REDEEM_RATE_PER_SECOND must be >= 0, got %f", c.RedeemRatePerSecond)
	}
	if c.RedeemRatePerSecond > 0 && c.RedeemBurst < 1 {
		return fmt.Errorf("REDEEM_BURST must be >= 1, got %d", c.RedeemBurst)
	}
	loc, err := time.LoadLocation(c.StoreTimeZone)
	if err != nil {
		return fmt.Errorf("STORE_TIMEZONE %q: %w", c.StoreTimeZone, err)
	}
	c.location = loc
	return nil
}

// Location is the store time zone. Promotion dates, hours and weekdays are
// evaluated in it.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// CatalogCacheTTL returns the Redis catalog cache lifetime.
func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

// IdempotencyTTL returns how long processed event ids are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}
