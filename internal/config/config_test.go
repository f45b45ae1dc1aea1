package config

import (
	"os"
	"path/filepath"
	"testing"

	"callmap/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Builder.RelationCap != 8000 {
		t.Errorf("RelationCap = %d, want 8000", cfg.Builder.RelationCap)
	}
	if cfg.Builder.PrepRetries != 5 || cfg.Builder.CallRetries != 3 {
		t.Errorf("retry budgets = %d/%d, want 5/3", cfg.Builder.PrepRetries, cfg.Builder.CallRetries)
	}
	if !cfg.Builder.Implementations {
		t.Error("implementation edges should be enabled by default")
	}
	if !cfg.Fallback.Enabled {
		t.Error("static fallback should be enabled by default")
	}
	if cfg.Logging.Format != "human" || cfg.Logging.Level != "info" {
		t.Errorf("logging defaults = %s/%s", cfg.Logging.Format, cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Builder.RelationCap != 8000 {
		t.Errorf("RelationCap = %d, want default", cfg.Builder.RelationCap)
	}
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".callmap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	body := `{
		"builder": {"relationCap": 500, "maxDepth": 3},
		"fallback": {"externalModules": ["vendor"]},
		"logging": {"level": "debug"}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Builder.RelationCap != 500 {
		t.Errorf("RelationCap = %d, want 500", cfg.Builder.RelationCap)
	}
	if cfg.Builder.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.Builder.MaxDepth)
	}
	// Untouched sections keep their defaults.
	if cfg.Builder.Workers != 4 {
		t.Errorf("Workers = %d, want default 4", cfg.Builder.Workers)
	}
	if len(cfg.Fallback.ExternalModules) != 1 || cfg.Fallback.ExternalModules[0] != "vendor" {
		t.Errorf("ExternalModules = %v", cfg.Fallback.ExternalModules)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CALLMAP_LOGGING_LEVEL", "error")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Level = %q, want env override", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsMalformedJSON(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".callmap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(root); err == nil {
		t.Fatal("malformed config loaded without error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad version", func(c *Config) { c.Version = 2 }},
		{"zero cap", func(c *Config) { c.Builder.RelationCap = 0 }},
		{"zero workers", func(c *Config) { c.Builder.Workers = 0 }},
		{"negative depth", func(c *Config) { c.Builder.MaxDepth = -1 }},
		{"negative rate", func(c *Config) { c.Gateway.RateLimit = -1 }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config passed validation")
			}
			if !errors.HasCode(err, errors.ConfigInvalid) {
				t.Errorf("error code = %v, want CONFIG_INVALID", errors.CodeOf(err))
			}
		})
	}
}

func TestSaveRoundTrips(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Builder.RelationCap = 1234

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Builder.RelationCap != 1234 {
		t.Errorf("RelationCap = %d, want 1234", loaded.Builder.RelationCap)
	}
}
