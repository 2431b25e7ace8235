// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads groundgame settings from an optional YAML file,
// GROUNDGAME_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix for environment overrides, e.g. GROUNDGAME_API_TOKEN.
const EnvPrefix = "GROUNDGAME"

// Config holds the full application configuration.
type Config struct {
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	API      APIConfig      `mapstructure:"api"`
	DB       DBConfig       `mapstructure:"db"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// GeocoderConfig configures the Google Maps geocoder.
type GeocoderConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	APIKeyDisplayName  string        `mapstructure:"api_key_display_name"`
	ProjectID          string        `mapstructure:"project_id"`
	Region             string        `mapstructure:"region"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RatePerSecond      float64       `mapstructure:"rate_per_second"`
	FilterRadiusMeters float64       `mapstructure:"filter_radius_meters"`
}

// APIConfig configures the remote address service.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Trace         bool          `mapstructure:"trace"`
}

// DBConfig configures the local duckdb address store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// New returns a viper instance with groundgame defaults and environment
// binding applied. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("groundgame")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("geocoder.api_key", "")
	v.SetDefault("geocoder.api_key_display_name", "GroundGame Geocoding Key")
	v.SetDefault("geocoder.project_id", "")
	v.SetDefault("geocoder.region", "us")
	v.SetDefault("geocoder.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocoder.timeout", 10*time.Second)
	v.SetDefault("geocoder.rate_per_second", 10.0)
	v.SetDefault("geocoder.filter_radius_meters", 200.0)
	v.SetDefault("api.base_url", "https://groundgameapp.com/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_per_second", 5.0)
	v.SetDefault("api.trace", false)
	v.SetDefault("db.path", ".")
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return v
}

// Load reads the optional config file and decodes the merged settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Geocoder.FilterRadiusMeters <= 0 {
		return fmt.Errorf("config: geocoder.filter_radius_meters must be positive (got %v)", c.Geocoder.FilterRadiusMeters)
	}

	if c.Geocoder.RatePerSecond < 0 || c.API.RatePerSecond < 0 {
		return errors.New("config: rate_per_second must not be negative")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console (got %q)", c.Log.Format)
	}

	return nil
}

// NewLogger builds a zap logger for the given settings.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("config: parse log level: %w", err)
	}

	zapCfg.Level.SetLevel(level)
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}

	return logger, nil
}

// InitLogger builds a logger and installs it as the zap global.
func InitLogger(cfg LogConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)

	return nil
}
