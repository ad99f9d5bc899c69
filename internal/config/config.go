package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Digest   DigestConfig   `mapstructure:"digest"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// CatalogConfig describes the product catalog the deals are pulled from
type CatalogConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	Format               string   `mapstructure:"format"` // json or html
	SearchPath           string   `mapstructure:"search_path"`
	PopularPath          string   `mapstructure:"popular_path"`
	PageSize             int      `mapstructure:"page_size"`
	Timeout              int      `mapstructure:"timeout"`
	MaxRetries           int      `mapstructure:"max_retries"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second"`
	CircuitBreakerMins   int      `mapstructure:"circuit_breaker_minutes"`
	Proxies              []string `mapstructure:"proxies"`
}

type TaxonomyConfig struct {
	Path           string `mapstructure:"path"`
	TypeField      string `mapstructure:"type_field"`
	TagField       string `mapstructure:"tag_field"`
	SelectionLevel int    `mapstructure:"selection_level"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DigestConfig controls the background deal digest workers
type DigestConfig struct {
	MaxWorkers    int    `mapstructure:"max_workers"`
	Pages         int    `mapstructure:"pages"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
}

// Load reads configuration from the YAML file at path (or ./config.yaml when
// path is empty) with environment variable overrides. A missing default file
// is fine; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("dealfeed")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Format {
	case "json", "html":
	default:
		return fmt.Errorf("unsupported catalog format %q (want json or html)", c.Catalog.Format)
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog.page_size must be positive, got %d", c.Catalog.PageSize)
	}
	if c.Digest.MaxWorkers <= 0 {
		return fmt.Errorf("digest.max_workers must be positive, got %d", c.Digest.MaxWorkers)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("catalog.base_url", "http://localhost:9000")
	v.SetDefault("catalog.format", "json")
	v.SetDefault("catalog.search_path", "/products/search")
	v.SetDefault("catalog.popular_path", "/products/popular")
	v.SetDefault("catalog.page_size", 50)
	v.SetDefault("catalog.timeout", 30)
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.max_requests_per_second", 5)
	v.SetDefault("catalog.circuit_breaker_minutes", 30)
	v.SetDefault("catalog.proxies", []string{})

	v.SetDefault("taxonomy.path", "./data/categories.json")
	v.SetDefault("taxonomy.type_field", "product_type")
	v.SetDefault("taxonomy.tag_field", "tag")
	v.SetDefault("taxonomy.selection_level", 1)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "dealfeed")
	v.SetDefault("database.user", "dealfeed_user")
	v.SetDefault("database.password", "dealfeed_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("digest.max_workers", 4)
	v.SetDefault("digest.pages", 3)
	v.SetDefault("digest.consumer_group", "dealfeed_digest")
	v.SetDefault("digest.min_idle_time", 120)
}
