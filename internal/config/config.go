// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" mapstructure:"taxonomy"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Inventory  InventoryConfig  `yaml:"inventory" mapstructure:"inventory"`
	Docs       DocsConfig       `yaml:"docs" mapstructure:"docs"`
	Publish    PublishConfig    `yaml:"publish" mapstructure:"publish"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the claim store backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds model API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractionConfig tunes claim extraction.
type ExtractionConfig struct {
	// ConfidenceFloor folds lower-confidence claims to unknown.
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
}

// TaxonomyConfig points at an optional control catalog override file.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SessionConfig tunes session lifecycle.
type SessionConfig struct {
	IdleTimeoutMins   int    `yaml:"idle_timeout_mins" mapstructure:"idle_timeout_mins"`
	SweepIntervalSecs int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	DefaultProjectID  string `yaml:"default_project_id" mapstructure:"default_project_id"`
}

// IdleTimeout returns the idle timeout as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMins) * time.Minute
}

// SweepInterval returns the janitor sweep interval as a duration.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// InventoryConfig configures the deployment inventory source.
type InventoryConfig struct {
	// Mode is http or file.
	Mode              string  `yaml:"mode" mapstructure:"mode"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	AuthToken         string  `yaml:"auth_token" mapstructure:"auth_token"`
	FixtureDir        string  `yaml:"fixture_dir" mapstructure:"fixture_dir"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// DocsConfig configures document resolution.
type DocsConfig struct {
	BucketGateway string `yaml:"bucket_gateway" mapstructure:"bucket_gateway"`
}

// PublishConfig configures the discrepancy publish sink.
type PublishConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	ProjectID string `yaml:"project_id" mapstructure:"project_id"`
	Topic     string `yaml:"topic" mapstructure:"topic"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SAIFGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("extraction.confidence_floor", 0.5)
	v.SetDefault("session.idle_timeout_mins", 30)
	v.SetDefault("session.sweep_interval_secs", 60)
	v.SetDefault("inventory.mode", "http")
	v.SetDefault("inventory.timeout_secs", 30)
	v.SetDefault("inventory.max_retries", 3)
	v.SetDefault("inventory.requests_per_second", 2)
	v.SetDefault("publish.topic", "saifguard-discrepancies")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
