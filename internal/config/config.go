package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Behyna/dcb-renewal-service/pkg/carrier"
	"github.com/Behyna/dcb-renewal-service/pkg/mq"
	"github.com/Behyna/dcb-renewal-service/pkg/postgres"
	"github.com/Behyna/dcb-renewal-service/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env         string
	Port        int
	ServiceName string
	LogLevel    string

	Database postgres.Config
	Redis    redis.Config
	RabbitMQ mq.Config
	GP       carrier.GPConfig
	Robi     carrier.RobiConfig
	Pipeline Pipeline
}

// Pipeline holds the scheduling and concurrency knobs of the renewal core.
type Pipeline struct {
	GPConcurrency   int
	RobiConcurrency int
	DispatchCron    string
	DispatchTZ      string
	DrainInterval   time.Duration
	RetryInterval   time.Duration
	CacheTTL        time.Duration
}

var validEnvs = map[string]struct{}{
	"dev": {}, "prod": {}, "test": {}, "staging": {},
}

// Load reads .env (best effort) and the process environment, applies
// defaults, and validates. An invalid value aborts startup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:         v.GetString("APP_ENV"),
		Port:        v.GetInt("PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		Database: postgres.Config{
			URL:             v.GetString("DATABASE_URL"),
			ConnectionLimit: v.GetInt("DB_CONNECTION_LIMIT"),
			PoolTimeout:     time.Duration(v.GetInt("DB_POOL_TIMEOUT")) * time.Second,
			ConnectTimeout:  time.Duration(v.GetInt("DB_CONNECT_TIMEOUT")) * time.Second,
		},

		Redis: redis.Config{
			Host:      v.GetString("REDIS_HOST"),
			Port:      v.GetString("REDIS_PORT"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},

		RabbitMQ: mq.Config{
			Host:           v.GetString("RMQ_HOST"),
			Port:           v.GetString("RMQ_PORT"),
			User:           v.GetString("RMQ_USER"),
			Pass:           v.GetString("RMQ_PASS"),
			Exchange:       v.GetString("RMQ_EXCHANGE"),
			Queue:          v.GetString("RMQ_QUEUE"),
			RoutingKey:     v.GetString("RMQ_ROUTING_KEY"),
			DLQExchange:    v.GetString("RMQ_DLQ_EXCHANGE"),
			DLQKey:         v.GetString("RMQ_DLQ_KEY"),
			DLQQueue:       v.GetString("RMQ_DLQ_QUEUE"),
			ReconnectDelay: v.GetDuration("RMQ_RECONNECT_DELAY"),
			MaxReconnects:  v.GetInt("RMQ_MAX_RECONNECTS"),
			RetryAttempts:  v.GetInt("RMQ_RETRY_ATTEMPTS"),
			RetryDelay:     v.GetDuration("RMQ_RETRY_DELAY"),
		},

		GP: carrier.GPConfig{
			BaseURL:  v.GetString("GP_BASE_URL"),
			AuthUser: v.GetString("GP_BASIC_AUTH_USER"),
			AuthPass: v.GetString("GP_BASIC_AUTH_PASS"),
			Timeout:  time.Duration(v.GetInt("GP_TIMEOUT")) * time.Millisecond,
		},

		Robi: carrier.RobiConfig{
			BaseURL: v.GetString("ROBI_BASE_URL"),
			Timeout: time.Duration(v.GetInt("ROBI_TIMEOUT")) * time.Millisecond,
		},

		Pipeline: Pipeline{
			GPConcurrency:   v.GetInt("GP_CONCURRENCY"),
			RobiConcurrency: v.GetInt("ROBI_CONCURRENCY"),
			DispatchCron:    v.GetString("DISPATCH_CRON"),
			DispatchTZ:      v.GetString("DISPATCH_TZ"),
			DrainInterval:   v.GetDuration("DRAIN_INTERVAL"),
			RetryInterval:   v.GetDuration("RETRY_INTERVAL"),
			CacheTTL:        time.Duration(v.GetInt("CACHE_TTL_MS")) * time.Millisecond,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("PORT", 3000)
	v.SetDefault("SERVICE_NAME", "dcb-renewal-service")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_CONNECTION_LIMIT", 10)
	v.SetDefault("DB_POOL_TIMEOUT", 10)
	v.SetDefault("DB_CONNECT_TIMEOUT", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL_MS", 86_400_000)

	v.SetDefault("RMQ_HOST", "localhost")
	v.SetDefault("RMQ_PORT", "5672")
	v.SetDefault("RMQ_USER", "guest")
	v.SetDefault("RMQ_PASS", "guest")
	v.SetDefault("RMQ_EXCHANGE", "notifications")
	v.SetDefault("RMQ_QUEUE", "notification_events")
	v.SetDefault("RMQ_ROUTING_KEY", "renewal.notification")
	v.SetDefault("RMQ_DLQ_EXCHANGE", "dlq_exchange")
	v.SetDefault("RMQ_DLQ_KEY", "dlq_key")
	v.SetDefault("RMQ_DLQ_QUEUE", "notification_events_dlq")
	v.SetDefault("RMQ_RECONNECT_DELAY", "5s")
	v.SetDefault("RMQ_MAX_RECONNECTS", 10)
	v.SetDefault("RMQ_RETRY_ATTEMPTS", 3)
	v.SetDefault("RMQ_RETRY_DELAY", "5s")

	v.SetDefault("GP_TIMEOUT", 5000)
	v.SetDefault("ROBI_TIMEOUT", 5000)

	v.SetDefault("GP_CONCURRENCY", 18)
	v.SetDefault("ROBI_CONCURRENCY", 10)
	v.SetDefault("DISPATCH_CRON", "0 1 * * *")
	v.SetDefault("DISPATCH_TZ", "Asia/Dhaka")
	v.SetDefault("DRAIN_INTERVAL", "10s")
	v.SetDefault("RETRY_INTERVAL", "5m")
}

func (c *Config) validate() error {
	if _, ok := validEnvs[c.Env]; !ok {
		return fmt.Errorf("APP_ENV must be one of dev|prod|test|staging, got %q", c.Env)
	}

	if c.Port <= 0 {
		return fmt.Errorf("PORT must be positive, got %d", c.Port)
	}

	if !strings.HasPrefix(c.Database.URL, "postgres://") {
		return fmt.Errorf("DATABASE_URL must start with postgres://")
	}

	if c.Database.ConnectionLimit <= 0 {
		return fmt.Errorf("DB_CONNECTION_LIMIT must be positive")
	}

	if c.Database.PoolTimeout <= 0 || c.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("DB_POOL_TIMEOUT and DB_CONNECT_TIMEOUT must be positive")
	}

	if c.GP.BaseURL == "" || c.GP.AuthUser == "" || c.GP.AuthPass == "" {
		return fmt.Errorf("GP_BASE_URL, GP_BASIC_AUTH_USER and GP_BASIC_AUTH_PASS are required")
	}

	if c.Robi.BaseURL == "" {
		return fmt.Errorf("ROBI_BASE_URL is required")
	}

	if c.GP.Timeout <= 0 || c.Robi.Timeout <= 0 {
		return fmt.Errorf("gateway timeouts must be positive")
	}

	if c.Pipeline.GPConcurrency <= 0 || c.Pipeline.RobiConcurrency <= 0 {
		return fmt.Errorf("operator concurrency must be positive")
	}

	if c.Pipeline.DrainInterval <= 0 || c.Pipeline.RetryInterval <= 0 {
		return fmt.Errorf("DRAIN_INTERVAL and RETRY_INTERVAL must be positive")
	}

	if _, err := time.LoadLocation(c.Pipeline.DispatchTZ); err != nil {
		return fmt.Errorf("DISPATCH_TZ is not a valid IANA zone: %w", err)
	}

	return nil
}

// Location resolves the dispatch time zone. Validation guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.DispatchTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
