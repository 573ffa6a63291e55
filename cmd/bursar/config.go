package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/bursar/cache/rediscache"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/gateway/stripe"
)

// Store drivers accepted by store.driver.
const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverMongo    = "mongo"
)

// Config holds all configuration for the bursar server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Stripe  stripe.Config `mapstructure:"stripe"`
	Log     LogConfig     `mapstructure:"log"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Billing BillingConfig `mapstructure:"billing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig selects and configures the persistence backend.
// DSN is a Postgres connection string, a SQLite file path or a MongoDB URI.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
}

// RedisConfig enables the shared entitlement cache.
type RedisConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Prefix            string `mapstructure:"prefix"`
	rediscache.Config `mapstructure:",squash"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// CatalogConfig overrides the built-in edition catalog. An empty edition
// list keeps the default catalog.
type CatalogConfig struct {
	Version  int               `mapstructure:"version"`
	Keys     catalog.Keys      `mapstructure:"keys"`
	Editions []catalog.Edition `mapstructure:"editions"`
}

// BillingConfig holds engine tuning.
type BillingConfig struct {
	EntitlementCacheTTL time.Duration `mapstructure:"entitlement_cache_ttl"`
	OverdueSweep        time.Duration `mapstructure:"overdue_sweep"`
}

// LoadConfig reads configuration from an optional config file and
// BURSAR_* environment variables. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bursar")
	}

	v.SetEnvPrefix("BURSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Secrets usually arrive through the environment only.
	_ = v.BindEnv("stripe.secret_key", "BURSAR_STRIPE_SECRET_KEY")
	_ = v.BindEnv("stripe.webhook_secret", "BURSAR_STRIPE_WEBHOOK_SECRET")
	_ = v.BindEnv("redis.password", "BURSAR_REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("store.driver", driverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "bursar")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", rediscache.DefaultPrefix)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("catalog.version", 1)

	v.SetDefault("billing.entitlement_cache_ttl", "30s")
	v.SetDefault("billing.overdue_sweep", "1h")
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case driverMemory:
	case driverPostgres, driverSQLite, driverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// BuildCatalog returns the configured catalog, or the built-in one when no
// editions are configured. Missing keys fall back to the built-in
// enumeration.
func (c CatalogConfig) BuildCatalog() (*catalog.Catalog, error) {
	if len(c.Editions) == 0 {
		return catalog.Default(), nil
	}
	keys := c.Keys
	if len(keys.Modules) == 0 && len(keys.Features) == 0 {
		keys = catalog.DefaultKeys()
	}
	return catalog.New(c.Version, keys, c.Editions...)
}
