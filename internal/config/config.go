package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingest service
type Config struct {
	// Real-time feeds
	TripUpdatesURL      string `yaml:"trip_updates_url" validate:"required,url"`
	VehiclePositionsURL string `yaml:"vehicle_positions_url" validate:"required,url"`

	// Polling
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" validate:"gt=0"`

	// Static reference data
	StaticURLs            []string      `yaml:"static_urls" validate:"omitempty,dive,required"`
	StaticRefreshInterval time.Duration `yaml:"static_refresh_interval" validate:"gte=0"`
	StaticMaxAge          time.Duration `yaml:"static_max_age" validate:"gte=0"`
	CacheDir              string        `yaml:"cache_dir" validate:"required"`

	// Snapshot fan-out
	SubscriberBuffer int `yaml:"subscriber_buffer" validate:"gte=1"`

	Store StoreConfig `yaml:"store"`
	Kafka KafkaConfig `yaml:"kafka"`

	// Ops HTTP
	HTTPAddr    string   `yaml:"http_addr"`
	CORSOrigins []string `yaml:"cors_origins"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// StoreConfig selects where parsed reference entities are persisted
type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory sqlite postgres redis"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Driver postgres"`
	RedisAddr   string `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// KafkaConfig configures the optional trip-update relay
type KafkaConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BootstrapServers string `yaml:"bootstrap_servers" validate:"required_if=Enabled true"`
	TripUpdatesTopic string `yaml:"trip_updates_topic" validate:"required_if=Enabled true"`
	GroupID          string `yaml:"group_id" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration. The feed URLs have no default.
func Default() *Config {
	return &Config{
		PollInterval:          30 * time.Second,
		InitialDelay:          5 * time.Second,
		FetchTimeout:          10 * time.Second,
		StaticRefreshInterval: 24 * time.Hour,
		StaticMaxAge:          24 * time.Hour,
		CacheDir:              "/data/cache",
		SubscriberBuffer:      16,
		Store: StoreConfig{
			Driver:      "sqlite",
			SQLitePath:  "/data/transit.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "gtfs",
		},
		Kafka: KafkaConfig{
			BootstrapServers: "localhost:29092",
			TripUpdatesTopic: "trip-updates",
			GroupID:          "transit-tracker-group",
		},
		HTTPAddr:    ":8081",
		CORSOrigins: []string{"http://localhost:5173"},
		LogLevel:    "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and environment variables, in increasing precedence. .env and
// .env.local are loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg and its nested sections
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.TripUpdatesURL = getEnv("GTFS_TRIP_UPDATES_URL", c.TripUpdatesURL)
	c.VehiclePositionsURL = getEnv("GTFS_VEHICLE_POSITIONS_URL", c.VehiclePositionsURL)

	c.PollInterval = getEnvSeconds("POLL_INTERVAL", c.PollInterval)
	c.InitialDelay = getEnvSeconds("POLL_INITIAL_DELAY", c.InitialDelay)
	c.FetchTimeout = getEnvSeconds("FETCH_TIMEOUT", c.FetchTimeout)

	c.StaticURLs = getEnvList("GTFS_STATIC_URLS", c.StaticURLs)
	c.StaticRefreshInterval = getEnvHours("STATIC_REFRESH_HOURS", c.StaticRefreshInterval)
	c.StaticMaxAge = getEnvHours("STATIC_MAX_AGE_HOURS", c.StaticMaxAge)
	c.CacheDir = getEnv("CACHE_DIR", c.CacheDir)

	c.SubscriberBuffer = getEnvInt("SUBSCRIBER_BUFFER", c.SubscriberBuffer)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = getEnv("SQLITE_DATABASE", c.Store.SQLitePath)
	c.Store.PostgresURL = getEnv("DATABASE_URL", c.Store.PostgresURL)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPrefix = getEnv("REDIS_KEY_PREFIX", c.Store.RedisPrefix)

	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.BootstrapServers = getEnv("KAFKA_BOOTSTRAP_SERVERS", c.Kafka.BootstrapServers)
	c.Kafka.TripUpdatesTopic = getEnv("KAFKA_TRIP_UPDATES_TOPIC", c.Kafka.TripUpdatesTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)

	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getEnvHours(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
