package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"callmap/internal/errors"
)

// Config represents the complete callmap configuration (v1 schema)
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Indexing IndexingConfig `json:"indexing" mapstructure:"indexing"`
	Builder  BuilderConfig  `json:"builder" mapstructure:"builder"`
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Fallback FallbackConfig `json:"fallback" mapstructure:"fallback"`
	Layout   LayoutConfig   `json:"layout" mapstructure:"layout"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// IndexingConfig bounds the document-symbol indexing pass
type IndexingConfig struct {
	SparseRetries int      `json:"sparseRetries" mapstructure:"sparseRetries"`
	RetryDelayMs  int      `json:"retryDelayMs" mapstructure:"retryDelayMs"`
	Exclude       []string `json:"exclude" mapstructure:"exclude"`
}

// BuilderConfig bounds the call-hierarchy traversal
type BuilderConfig struct {
	RelationCap     int  `json:"relationCap" mapstructure:"relationCap"`
	MaxDepth        int  `json:"maxDepth" mapstructure:"maxDepth"`
	PrepRetries     int  `json:"prepRetries" mapstructure:"prepRetries"`
	PrepBackoffMs   int  `json:"prepBackoffMs" mapstructure:"prepBackoffMs"`
	CallRetries     int  `json:"callRetries" mapstructure:"callRetries"`
	CallBackoffMs   int  `json:"callBackoffMs" mapstructure:"callBackoffMs"`
	Workers         int  `json:"workers" mapstructure:"workers"`
	QueryCacheSize  int  `json:"queryCacheSize" mapstructure:"queryCacheSize"`
	Implementations bool `json:"implementations" mapstructure:"implementations"`
}

// GatewayConfig bounds provider queries
type GatewayConfig struct {
	RequestTimeoutMs int     `json:"requestTimeoutMs" mapstructure:"requestTimeoutMs"`
	RateLimit        float64 `json:"rateLimit" mapstructure:"rateLimit"`
	RateBurst        int     `json:"rateBurst" mapstructure:"rateBurst"`
}

// FallbackConfig contains static-resolver configuration
type FallbackConfig struct {
	Enabled         bool     `json:"enabled" mapstructure:"enabled"`
	ExternalModules []string `json:"externalModules" mapstructure:"externalModules"`
}

// LayoutConfig contains dot generation defaults
type LayoutConfig struct {
	Collapsed bool `json:"collapsed" mapstructure:"collapsed"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// PrepBackoff returns the prep retry backoff as a duration.
func (b BuilderConfig) PrepBackoff() time.Duration {
	return time.Duration(b.PrepBackoffMs) * time.Millisecond
}

// CallBackoff returns the call retry backoff as a duration.
func (b BuilderConfig) CallBackoff() time.Duration {
	return time.Duration(b.CallBackoffMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout as a duration.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutMs) * time.Millisecond
}

// RetryDelay returns the sparse-retry delay as a duration.
func (i IndexingConfig) RetryDelay() time.Duration {
	return time.Duration(i.RetryDelayMs) * time.Millisecond
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Indexing: IndexingConfig{
			SparseRetries: 5,
			RetryDelayMs:  150,
			Exclude:       []string{},
		},
		Builder: BuilderConfig{
			RelationCap:     8000,
			MaxDepth:        0,
			PrepRetries:     5,
			PrepBackoffMs:   180,
			CallRetries:     3,
			CallBackoffMs:   120,
			Workers:         4,
			QueryCacheSize:  8192,
			Implementations: true,
		},
		Gateway: GatewayConfig{
			RequestTimeoutMs: 15000,
			RateLimit:        0,
			RateBurst:        1,
		},
		Fallback: FallbackConfig{
			Enabled:         true,
			ExternalModules: []string{},
		},
		Layout: LayoutConfig{
			Collapsed: false,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .callmap/config.json under the repo
// root, layered over defaults. CALLMAP_* environment variables override
// both (e.g. CALLMAP_LOGGING_LEVEL=debug).
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	var asMap map[string]interface{}
	raw, err := json.Marshal(defaults)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	for key, value := range asMap {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".callmap"))

	v.SetEnvPrefix("CALLMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.New(errors.ConfigInvalid, "read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New(errors.ConfigInvalid, "parse config", err)
	}

	return &cfg, nil
}

// Save writes the configuration to .callmap/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".callmap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return errors.Newf(errors.ConfigInvalid, "unsupported config version %d", c.Version)
	}
	if c.Builder.RelationCap <= 0 {
		return errors.New(errors.ConfigInvalid, "builder.relationCap must be positive", nil)
	}
	if c.Builder.Workers <= 0 {
		return errors.New(errors.ConfigInvalid, "builder.workers must be positive", nil)
	}
	if c.Builder.MaxDepth < 0 {
		return errors.New(errors.ConfigInvalid, "builder.maxDepth must not be negative", nil)
	}
	if c.Gateway.RateLimit < 0 {
		return errors.New(errors.ConfigInvalid, "gateway.rateLimit must not be negative", nil)
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return errors.Newf(errors.ConfigInvalid, "unknown logging format %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ConfigInvalid, "unknown logging level %q", c.Logging.Level)
	}
	return nil
}
