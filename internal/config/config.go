// Package config loads the leadgraph configuration from leadgraph.yml
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the leadgraph configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig represents the optional Redis cache backend. An empty
// Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EngineConfig bounds relation traversal.
type EngineConfig struct {
	MaxDepth    int `mapstructure:"max_depth"`
	MaxFrontier int `mapstructure:"max_frontier"`
}

// CacheConfig controls schema metadata caching.
type CacheConfig struct {
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// TTL returns the schema cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load loads the configuration from leadgraph.yml or leadgraph.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("engine.max_depth", 3)
	v.SetDefault("engine.max_frontier", 100000)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.prefix", "leadgraph:")
	v.SetDefault("redis.db", 0)
	v.SetDefault("logging.level", "info")

	// Set config name and paths
	v.SetConfigName("leadgraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Engine.MaxDepth < 1 {
		return fmt.Errorf("engine.max_depth must be at least 1, got %d", config.Engine.MaxDepth)
	}
	if config.Engine.MaxFrontier < 1 {
		return fmt.Errorf("engine.max_frontier must be at least 1, got %d", config.Engine.MaxFrontier)
	}
	if config.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache.ttl_seconds must be at least 1, got %d", config.Cache.TTLSeconds)
	}
	return nil
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	// First check environment variable
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}

	return cfg.Database.URL
}
