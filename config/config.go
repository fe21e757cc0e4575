package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable Load consults.
const EnvPrefix = "CATALOG"

// Config holds catalog service configuration.
type Config struct {
	DataFile           string        `mapstructure:"data_file"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	ValidateOnRefresh  bool          `mapstructure:"validate_on_refresh"`
	QueryCacheSize     int           `mapstructure:"query_cache_size"`
	DefaultPageLimit   int           `mapstructure:"default_page_limit"`
	MaxPageLimit       int           `mapstructure:"max_page_limit"`
	LargeFileThreshold int64         `mapstructure:"large_file_threshold"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"` // auto, text, or json
}

// DefaultConfig returns defaults suitable for a local data file.
func DefaultConfig() *Config {
	return &Config{
		DataFile:           "data/books.csv",
		RefreshInterval:    5 * time.Minute,
		ValidateOnRefresh:  true,
		QueryCacheSize:     256,
		DefaultPageLimit:   20,
		MaxPageLimit:       100,
		LargeFileThreshold: 100 * 1024 * 1024,
		MetricsAddr:        "",
		LogLevel:           "info",
		LogFormat:          "auto",
	}
}

// Load reads configuration from an optional file at path and from CATALOG_*
// environment variables, on top of DefaultConfig. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_file", cfg.DataFile)
	v.SetDefault("refresh_interval", cfg.RefreshInterval)
	v.SetDefault("validate_on_refresh", cfg.ValidateOnRefresh)
	v.SetDefault("query_cache_size", cfg.QueryCacheSize)
	v.SetDefault("default_page_limit", cfg.DefaultPageLimit)
	v.SetDefault("max_page_limit", cfg.MaxPageLimit)
	v.SetDefault("large_file_threshold", cfg.LargeFileThreshold)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data file cannot be empty")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval cannot be negative")
	}
	if c.QueryCacheSize < 0 {
		return fmt.Errorf("query cache size cannot be negative")
	}
	if c.DefaultPageLimit <= 0 {
		return fmt.Errorf("default page limit must be positive")
	}
	if c.MaxPageLimit <= 0 {
		return fmt.Errorf("max page limit must be positive")
	}
	if c.DefaultPageLimit > c.MaxPageLimit {
		return fmt.Errorf("default page limit (%d) cannot exceed max page limit (%d)", c.DefaultPageLimit, c.MaxPageLimit)
	}
	if c.LargeFileThreshold <= 0 {
		return fmt.Errorf("large file threshold must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}
	switch strings.ToLower(c.LogFormat) {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log format must be auto, text, or json")
	}
	return nil
}
