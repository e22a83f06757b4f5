// Package config handles configuration loading for the CellScope server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Debug  bool         `yaml:"debug"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	MetadataFile string `yaml:"metadata_file"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	FigureSizeMB     int `yaml:"figure_size_mb"`
	FigureTTLMinutes int `yaml:"figure_ttl_minutes"`
	QueryCacheSize   int `yaml:"query_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	DefaultColormap string  `yaml:"default_colormap"`
	PointSize       float64 `yaml:"point_size"`
}

// Load reads configuration from a YAML file. Environment variables override
// file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		cfg := DefaultConfig()
		applyEnv(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "CellScope",
		},
		Data: DataConfig{
			Dir:          "./data",
			MetadataFile: "./data/metadata.yaml",
		},
		Cache: CacheConfig{
			FigureSizeMB:     256,
			FigureTTLMinutes: 10,
			QueryCacheSize:   1024,
		},
		Render: RenderConfig{
			Width:           640,
			Height:          480,
			DefaultColormap: "viridis",
			PointSize:       3,
		},
	}
}

// DisplayTitle returns the browser title, marking debug deployments.
func (c *Config) DisplayTitle() string {
	if c.Debug {
		return c.Server.Title + " (debug)"
	}
	return c.Server.Title
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaults.Data.Dir
	}
	if cfg.Data.MetadataFile == "" {
		cfg.Data.MetadataFile = defaults.Data.MetadataFile
	}
	if cfg.Cache.FigureSizeMB == 0 {
		cfg.Cache.FigureSizeMB = defaults.Cache.FigureSizeMB
	}
	if cfg.Cache.FigureTTLMinutes == 0 {
		cfg.Cache.FigureTTLMinutes = defaults.Cache.FigureTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.PointSize == 0 {
		cfg.Render.PointSize = defaults.Render.PointSize
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CELLSCOPE_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("CELLSCOPE_TITLE"); v != "" {
		cfg.Server.Title = v
	}
	if v := os.Getenv("CELLSCOPE_DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}
}
