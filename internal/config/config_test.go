package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := Default()

	profile := &Config{
		Source: SourceConfig{
			Backend:        "replay",
			ReplayFile:     "/data/run.h5",
			TimeoutRetries: 5,
		},
		Output: OutputConfig{
			Path: "/data/out.h5",
		},
	}

	result := mergeConfigs(base, profile)

	if result.Source.Backend != "replay" {
		t.Errorf("Expected backend 'replay', got %s", result.Source.Backend)
	}
	if result.Source.TimeoutRetries != 5 {
		t.Errorf("Expected timeout_retries 5, got %d", result.Source.TimeoutRetries)
	}
	// Inherited from base
	if result.Source.ChunkTimeout != 2200*time.Millisecond {
		t.Errorf("Expected inherited chunk_timeout 2.2s, got %s", result.Source.ChunkTimeout)
	}
	if result.Service.URL != base.Service.URL {
		t.Errorf("Expected inherited service url, got %s", result.Service.URL)
	}
	if !result.Catalog.IsEnabled() {
		t.Errorf("Expected catalog to stay enabled")
	}

	if result.Inheritance["source.backend"] != "profile-specific" {
		t.Errorf("Expected source.backend to be profile-specific, got %s", result.Inheritance["source.backend"])
	}
	if result.Inheritance["source.queue_size"] != "inherited" {
		t.Errorf("Expected source.queue_size to be inherited, got %s", result.Inheritance["source.queue_size"])
	}
}

func TestMergeConfigs_CatalogDisable(t *testing.T) {
	disabled := false
	result := mergeConfigs(Default(), &Config{Catalog: CatalogConfig{Enabled: &disabled}})
	if result.Catalog.IsEnabled() {
		t.Errorf("Expected catalog to be disabled by profile")
	}

	// The profile's flag must not alias the merged result
	disabled = true
	if result.Catalog.IsEnabled() {
		t.Errorf("Merged config must copy the enabled flag")
	}
}

func TestMergeConfigs_EmptyProfile(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil)
	if result.Source != base.Source || result.Output != base.Output {
		t.Errorf("Expected base values with nil profile, got %+v", result)
	}
	for _, key := range SettingKeys() {
		if result.Inheritance[key] != "inherited" {
			t.Errorf("Expected %s inherited, got %q", key, result.Inheritance[key])
		}
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/MEA/runs", filepath.Join(homeDir, "MEA", "runs")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestLoadWithProfile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithProfile(filepath.Join(t.TempDir(), "absent.yaml"), "")
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error: %v", err)
	}
	if cfg.Source.Backend != "synthetic" || cfg.Output.Path != "live_data.h5" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestLoadWithProfile_ProfileInheritsFromDefault(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: bench
configs:
  default:
    source:
      chunk_timeout: 3s
    service:
      url: http://localhost:8080
  bench:
    source:
      backend: replay
      replay_file: ~/runs/ref.h5
    catalog:
      enabled: false
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Source.Backend != "replay" {
		t.Errorf("Expected backend 'replay', got %s", cfg.Source.Backend)
	}
	if cfg.Source.ChunkTimeout != 3*time.Second {
		t.Errorf("Expected chunk_timeout 3s from default profile, got %s", cfg.Source.ChunkTimeout)
	}
	if cfg.Service.URL != "http://localhost:8080" {
		t.Errorf("Expected url from default profile, got %s", cfg.Service.URL)
	}
	if strings.HasPrefix(cfg.Source.ReplayFile, "~") {
		t.Errorf("Expected replay_file to be expanded, got %s", cfg.Source.ReplayFile)
	}
	if cfg.Catalog.IsEnabled() {
		t.Errorf("Expected catalog disabled by profile")
	}
	if cfg.Source.QueueSize != 100 {
		t.Errorf("Expected built-in queue_size 100, got %d", cfg.Source.QueueSize)
	}
}

func TestLoadWithProfile_ExplicitProfileWins(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: default
configs:
  default:
    output:
      path: default.h5
  lab:
    output:
      path: lab.h5
`)

	cfg, err := LoadWithProfile(configFile, "lab")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Output.Path != "lab.h5" {
		t.Errorf("Expected output path 'lab.h5', got %s", cfg.Output.Path)
	}

	_, err = LoadWithProfile(configFile, "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error for unknown profile, got %v", err)
	}
}

func TestLoadWithProfile_RejectsShortTimeout(t *testing.T) {
	configFile := createTempConfig(t, `
configs:
  default:
    source:
      chunk_timeout: 1s
`)

	_, err := LoadWithProfile(configFile, "")
	if err == nil || !strings.Contains(err.Error(), "chunk_timeout") {
		t.Errorf("Expected chunk_timeout validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Source.Backend = "socket" }, "unknown backend"},
		{"replay without file", func(c *Config) { c.Source.Backend = "replay" }, "replay_file"},
		{"zero retries", func(c *Config) { c.Source.TimeoutRetries = 0 }, "timeout_retries"},
		{"zero queue", func(c *Config) { c.Source.QueueSize = 0 }, "queue_size"},
		{"relative url", func(c *Config) { c.Service.URL = "livemea" }, "service.url"},
		{"catalog without path", func(c *Config) { c.Catalog.Path = "" }, "catalog.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: default
configs:
  default:
    output:
      path: a.h5
  lab:
    output:
      path: b.h5
`)

	if err := UpdateActiveConfig(configFile, "lab"); err != nil {
		t.Fatalf("Failed to update active config: %v", err)
	}
	root, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Failed to re-read config: %v", err)
	}
	if root.ActiveConfig != "lab" {
		t.Errorf("Expected active_config 'lab', got %s", root.ActiveConfig)
	}

	if err := UpdateActiveConfig(configFile, "nope"); err == nil {
		t.Errorf("Expected error for unknown profile")
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mearec-test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
