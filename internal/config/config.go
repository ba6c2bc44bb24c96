// Package config handles configuration loading for the cellan server.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// ModeMaintain switches every page and API route to the maintenance page.
const ModeMaintain = "maintain"

// Config represents the server configuration.
// Values come from a YAML file; CELLAN_* environment variables override them.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                int      `yaml:"port" env:"CELLAN_PORT"`
	Interface           string   `yaml:"interface" env:"CELLAN_INTERFACE"`
	PathPrefix          string   `yaml:"path_prefix" env:"CELLAN_PATH_PREFIX"`
	Mode                string   `yaml:"mode" env:"CELLAN_MODE"`
	Title               string   `yaml:"title" env:"CELLAN_TITLE"`
	CORSOrigins         []string `yaml:"cors_origins" env:"CELLAN_CORS_ORIGINS"`
	StaticMaxAgeSeconds int      `yaml:"static_max_age_seconds" env:"CELLAN_STATIC_MAX_AGE"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Interface, s.Port)
}

// StaticMaxAge returns the Cache-Control max-age of static assets.
func (s ServerConfig) StaticMaxAge() time.Duration {
	return time.Duration(s.StaticMaxAgeSeconds) * time.Second
}

// StoreConfig contains document store settings.
type StoreConfig struct {
	URL        string `yaml:"url" env:"CELLAN_STORE_URL"`
	Encodings  string `yaml:"encodings" env:"CELLAN_STORE_ENCODINGS"`
	Iterations string `yaml:"iterations" env:"CELLAN_STORE_ITERATIONS"`
	Cells      string `yaml:"cells" env:"CELLAN_STORE_CELLS"`
	Genes      string `yaml:"genes" env:"CELLAN_STORE_GENES"`
}

// DataConfig contains dataset settings.
type DataConfig struct {
	DefaultEncoding string `yaml:"default_encoding" env:"CELLAN_DEFAULT_ENCODING"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	PreviewSizeMB      int `yaml:"preview_size_mb" env:"CELLAN_PREVIEW_CACHE_MB"`
	PreviewTTLMinutes  int `yaml:"preview_ttl_minutes" env:"CELLAN_PREVIEW_CACHE_TTL"`
	EncodingCacheSize  int `yaml:"encoding_cache_size" env:"CELLAN_ENCODING_CACHE_SIZE"`
	EncodingTTLMinutes int `yaml:"encoding_ttl_minutes" env:"CELLAN_ENCODING_CACHE_TTL"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	PreviewSize int     `yaml:"preview_size" env:"CELLAN_PREVIEW_SIZE"`
	Colorscale  string  `yaml:"colorscale" env:"CELLAN_COLORSCALE"`
	MarkerSize  float64 `yaml:"marker_size" env:"CELLAN_MARKER_SIZE"`
	Threshold   int     `yaml:"threshold" env:"CELLAN_THRESHOLD"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"CELLAN_LOG_LEVEL"`
	Format string `yaml:"format" env:"CELLAN_LOG_FORMAT"`
}

// IsMaintenance reports whether the server runs in maintenance mode.
func (c *Config) IsMaintenance() bool {
	return c.Server.Mode == ModeMaintain
}

// Load reads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Apply defaults for missing values
	applyDefaults(cfg)

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                13013,
			Interface:           "0.0.0.0",
			PathPrefix:          "/cellan",
			Title:               "cellan",
			StaticMaxAgeSeconds: 86400,
		},
		Store: StoreConfig{
			URL:        "sqlite://data/cellcomm.db",
			Encodings:  "encs",
			Iterations: "encits",
			Cells:      "cells",
			Genes:      "genes",
		},
		Data: DataConfig{
			DefaultEncoding: "LR9990",
		},
		Cache: CacheConfig{
			PreviewSizeMB:      64,
			PreviewTTLMinutes:  30,
			EncodingCacheSize:  128,
			EncodingTTLMinutes: 10,
		},
		Render: RenderConfig{
			PreviewSize: 512,
			Colorscale:  "jet",
			MarkerSize:  4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Interface == "" {
		cfg.Server.Interface = defaults.Server.Interface
	}
	if cfg.Server.PathPrefix == "" {
		cfg.Server.PathPrefix = defaults.Server.PathPrefix
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Server.StaticMaxAgeSeconds == 0 {
		cfg.Server.StaticMaxAgeSeconds = defaults.Server.StaticMaxAgeSeconds
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = defaults.Store.URL
	}
	if cfg.Store.Encodings == "" {
		cfg.Store.Encodings = defaults.Store.Encodings
	}
	if cfg.Store.Iterations == "" {
		cfg.Store.Iterations = defaults.Store.Iterations
	}
	if cfg.Store.Cells == "" {
		cfg.Store.Cells = defaults.Store.Cells
	}
	if cfg.Store.Genes == "" {
		cfg.Store.Genes = defaults.Store.Genes
	}
	if cfg.Data.DefaultEncoding == "" {
		cfg.Data.DefaultEncoding = defaults.Data.DefaultEncoding
	}
	if cfg.Cache.PreviewSizeMB == 0 {
		cfg.Cache.PreviewSizeMB = defaults.Cache.PreviewSizeMB
	}
	if cfg.Cache.PreviewTTLMinutes == 0 {
		cfg.Cache.PreviewTTLMinutes = defaults.Cache.PreviewTTLMinutes
	}
	if cfg.Cache.EncodingCacheSize == 0 {
		cfg.Cache.EncodingCacheSize = defaults.Cache.EncodingCacheSize
	}
	if cfg.Cache.EncodingTTLMinutes == 0 {
		cfg.Cache.EncodingTTLMinutes = defaults.Cache.EncodingTTLMinutes
	}
	if cfg.Render.PreviewSize == 0 {
		cfg.Render.PreviewSize = defaults.Render.PreviewSize
	}
	if cfg.Render.Colorscale == "" {
		cfg.Render.Colorscale = defaults.Render.Colorscale
	}
	if cfg.Render.MarkerSize == 0 {
		cfg.Render.MarkerSize = defaults.Render.MarkerSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
}
