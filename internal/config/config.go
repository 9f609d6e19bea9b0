package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Seckill  SeckillConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"flashdeal-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds relational store settings (promotions and orders).
type DatabaseConfig struct {
	Type string `envconfig:"DB_TYPE" default:"sqlite"` // sqlite or mysql

	// SQLite settings
	Path string `envconfig:"DB_PATH" default:"./data/flashdeal.db"`

	// MySQL settings
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"flashdeal"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// CacheConfig holds cache-aside engine settings.
type CacheConfig struct {
	// Policy selects the read consistency strategy for promotion reads:
	// passthrough, mutex, or logical.
	Policy string `envconfig:"CACHE_POLICY" default:"mutex"`

	TTL            time.Duration `envconfig:"CACHE_TTL" default:"30m"`
	NullTTL        time.Duration `envconfig:"CACHE_NULL_TTL" default:"2m"`
	LogicalTTL     time.Duration `envconfig:"CACHE_LOGICAL_TTL" default:"20s"`
	LockTTL        time.Duration `envconfig:"CACHE_LOCK_TTL" default:"10s"`
	RebuildWorkers int           `envconfig:"CACHE_REBUILD_WORKERS" default:"10"`
}

// SeckillConfig holds flash-sale pipeline settings.
type SeckillConfig struct {
	StreamKey     string        `envconfig:"SECKILL_STREAM_KEY" default:"flashdeal:stream:orders"`
	Group         string        `envconfig:"SECKILL_GROUP" default:"order-group"`
	Consumer      string        `envconfig:"SECKILL_CONSUMER" default:"consumer-1"`
	BlockTimeout  time.Duration `envconfig:"SECKILL_BLOCK_TIMEOUT" default:"2s"`
	OrderLockTTL  time.Duration `envconfig:"SECKILL_ORDER_LOCK_TTL" default:"10s"`
	MaxDeliveries int64         `envconfig:"SECKILL_MAX_DELIVERIES" default:"5"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MySQLDSN returns the MySQL data source name.
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
