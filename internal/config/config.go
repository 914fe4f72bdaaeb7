package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/livemea/mearec/internal/mea"
)

// MinChunkTimeout is the smallest per-chunk wait accepted from a config file:
// twice the nominal chunk interval.
const MinChunkTimeout = 2 * mea.ChunkInterval

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Internal field to track inheritance information for config show
	Inheritance map[string]string `mapstructure:"-" yaml:"-"`
}

type SourceConfig struct {
	Backend        string        `mapstructure:"backend" yaml:"backend"` // "synthetic", "replay"
	ChunkTimeout   time.Duration `mapstructure:"chunk_timeout" yaml:"chunk_timeout"`
	TimeoutRetries int           `mapstructure:"timeout_retries" yaml:"timeout_retries"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	ReplayFile     string        `mapstructure:"replay_file" yaml:"replay_file"`
}

type ServiceConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

type OutputConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type CatalogConfig struct {
	Enabled *bool  `mapstructure:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// IsEnabled reports whether sessions are written to the catalog.
func (c CatalogConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	enabled := true
	return &Config{
		Source: SourceConfig{
			Backend:        "synthetic",
			ChunkTimeout:   2200 * time.Millisecond,
			TimeoutRetries: 3,
			QueueSize:      100,
			Interval:       mea.ChunkInterval,
		},
		Service: ServiceConfig{
			URL:            "https://livemeaservice2.alpvision.com",
			RequestTimeout: 5 * time.Second,
		},
		Output: OutputConfig{
			Path: "live_data.h5",
		},
		Catalog: CatalogConfig{
			Enabled: &enabled,
			Path:    filepath.Join(os.Getenv("HOME"), ".local", "share", "mearec", "sessions.db"),
		},
		Inheritance: map[string]string{},
	}
}

// LoadWithProfile resolves the named profile (or active_config, or
// "default") from configFile on top of the built-in defaults. A missing
// file yields the defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.Catalog.Path = expandPath(cfg.Catalog.Path)
		return cfg, nil
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in defaults, then the file's default profile, then the selected one
	resolved := Default()
	if configName != "default" {
		if defaultProfile, ok := rootConfig.Configs["default"]; ok {
			resolved = mergeConfigs(resolved, defaultProfile)
		}
	}
	resolved = mergeConfigs(resolved, selected)

	resolved.Source.ReplayFile = expandPath(resolved.Source.ReplayFile)
	resolved.Output.Path = expandPath(resolved.Output.Path)
	resolved.Catalog.Path = expandPath(resolved.Catalog.Path)

	if err := Validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return resolved, nil
}

// ValidateConfigurationFormat reads configFile and checks its structure
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("MEAREC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section cannot be empty")
	}
	for name, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("config '%s' is empty", name)
		}
	}

	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if _, ok := v.GetStringMap("configs")[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs lays profile over base: every non-zero profile field wins,
// everything else is inherited. Inheritance records which one applied.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: map[string]string{}}
	if base != nil {
		result.Source = base.Source
		result.Service = base.Service
		result.Output = base.Output
		result.Catalog = base.Catalog
		for k, v := range base.Inheritance {
			result.Inheritance[k] = v
		}
	}
	for _, key := range settingKeys {
		if _, ok := result.Inheritance[key]; !ok {
			result.Inheritance[key] = "inherited"
		}
	}

	if profile == nil {
		return result
	}

	set := func(key string, apply bool, fn func()) {
		if apply {
			fn()
			result.Inheritance[key] = "profile-specific"
		}
	}

	p := profile.Source
	set("source.backend", p.Backend != "", func() { result.Source.Backend = p.Backend })
	set("source.chunk_timeout", p.ChunkTimeout != 0, func() { result.Source.ChunkTimeout = p.ChunkTimeout })
	set("source.timeout_retries", p.TimeoutRetries != 0, func() { result.Source.TimeoutRetries = p.TimeoutRetries })
	set("source.queue_size", p.QueueSize != 0, func() { result.Source.QueueSize = p.QueueSize })
	set("source.interval", p.Interval != 0, func() { result.Source.Interval = p.Interval })
	set("source.replay_file", p.ReplayFile != "", func() { result.Source.ReplayFile = p.ReplayFile })

	s := profile.Service
	set("service.url", s.URL != "", func() { result.Service.URL = s.URL })
	set("service.request_timeout", s.RequestTimeout != 0, func() { result.Service.RequestTimeout = s.RequestTimeout })

	set("output.path", profile.Output.Path != "", func() { result.Output.Path = profile.Output.Path })

	c := profile.Catalog
	set("catalog.enabled", c.Enabled != nil, func() {
		enabled := *c.Enabled
		result.Catalog.Enabled = &enabled
	})
	set("catalog.path", c.Path != "", func() { result.Catalog.Path = c.Path })

	return result
}

// settingKeys lists every tracked setting in display order.
var settingKeys = []string{
	"source.backend",
	"source.chunk_timeout",
	"source.timeout_retries",
	"source.queue_size",
	"source.interval",
	"source.replay_file",
	"service.url",
	"service.request_timeout",
	"output.path",
	"catalog.enabled",
	"catalog.path",
}

// SettingKeys returns the tracked setting names in display order.
func SettingKeys() []string {
	return append([]string(nil), settingKeys...)
}

// Validate checks a resolved configuration.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Source.Backend) {
	case "synthetic":
	case "replay":
		if cfg.Source.ReplayFile == "" {
			return fmt.Errorf("source.replay_file is required for the replay backend")
		}
	default:
		return fmt.Errorf("source.backend: unknown backend '%s' (valid: synthetic, replay)", cfg.Source.Backend)
	}

	if cfg.Source.ChunkTimeout < MinChunkTimeout {
		return fmt.Errorf("source.chunk_timeout %s is below the minimum of %s", cfg.Source.ChunkTimeout, MinChunkTimeout)
	}
	if cfg.Source.TimeoutRetries < 1 {
		return fmt.Errorf("source.timeout_retries must be at least 1, got %d", cfg.Source.TimeoutRetries)
	}
	if cfg.Source.QueueSize < 1 {
		return fmt.Errorf("source.queue_size must be at least 1, got %d", cfg.Source.QueueSize)
	}
	if cfg.Source.Interval < 0 {
		return fmt.Errorf("source.interval cannot be negative")
	}

	u, err := url.Parse(cfg.Service.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.url '%s' is not an absolute URL", cfg.Service.URL)
	}
	if cfg.Service.RequestTimeout <= 0 {
		return fmt.Errorf("service.request_timeout must be positive")
	}

	if cfg.Catalog.IsEnabled() && cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required when the catalog is enabled")
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
