package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FullFile(t *testing.T) {
	content := `
server:
  port: 9000
  title: "Atlas Browser"
data:
  dir: "/data/stores"
  metadata_file: "/data/stores/metadata.yaml"
cache:
  figure_size_mb: 64
render:
  width: 800
  height: 600
debug: true
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Title != "Atlas Browser" {
		t.Errorf("unexpected title: %q", cfg.Server.Title)
	}
	if cfg.Data.Dir != "/data/stores" {
		t.Errorf("unexpected data dir: %s", cfg.Data.Dir)
	}
	if cfg.Cache.FigureSizeMB != 64 {
		t.Errorf("unexpected figure cache size: %d", cfg.Cache.FigureSizeMB)
	}
	if cfg.Render.Width != 800 || cfg.Render.Height != 600 {
		t.Errorf("unexpected render size: %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if !cfg.Debug {
		t.Error("expected debug to be set")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
data:
  dir: "/data/stores"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.FigureSizeMB != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Cache.FigureSizeMB)
	}
	if cfg.Render.Width != 640 || cfg.Render.Height != 480 {
		t.Errorf("expected default render size, got %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Render.DefaultColormap != "viridis" {
		t.Errorf("expected default colormap, got %q", cfg.Render.DefaultColormap)
	}
	if cfg.Debug {
		t.Error("expected debug off by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CELLSCOPE_DATA_DIR", "/env/stores")
	t.Setenv("CELLSCOPE_TITLE", "Env Atlas")
	t.Setenv("CELLSCOPE_DEBUG", "1")

	content := `
server:
  title: "File Atlas"
data:
  dir: "/file/stores"
`
	cfg := loadFromString(t, content)

	if cfg.Data.Dir != "/env/stores" {
		t.Errorf("expected env data dir, got %s", cfg.Data.Dir)
	}
	if cfg.Server.Title != "Env Atlas" {
		t.Errorf("expected env title, got %q", cfg.Server.Title)
	}
	if !cfg.Debug {
		t.Error("expected env debug override")
	}
}

func TestDisplayTitle(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.DisplayTitle(); got != "CellScope" {
		t.Errorf("unexpected title: %q", got)
	}
	cfg.Debug = true
	if got := cfg.DisplayTitle(); got != "CellScope (debug)" {
		t.Errorf("unexpected debug title: %q", got)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
