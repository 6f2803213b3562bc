// Package config manages Vigil configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Inspector modes.
const (
	ModeReported = "reported"
	ModeHTTP     = "http"
	ModeBrowser  = "browser"
)

// EnvPrefix is prepended to environment overrides, e.g. VIGIL_LOG_LEVEL.
const EnvPrefix = "VIGIL"

// Config represents the application configuration
type Config struct {
	DataDir             string          `mapstructure:"data_dir"`
	Database            string          `mapstructure:"database"`
	KnownDomains        string          `mapstructure:"known_domains"`
	SimilarityThreshold int             `mapstructure:"similarity_threshold"`
	HistoryLimit        int             `mapstructure:"history_limit"`
	Inspector           InspectorConfig `mapstructure:"inspector"`
	Log                 LogConfig       `mapstructure:"log"`
}

// InspectorConfig selects how page scripts are counted
type InspectorConfig struct {
	Mode         string        `mapstructure:"mode"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Rate         float64       `mapstructure:"rate"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	ChromePath   string        `mapstructure:"chrome_path"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:             defaultDir(),
		SimilarityThreshold: 3,
		HistoryLimit:        12,
		Inspector: InspectorConfig{
			Mode:         ModeReported,
			Timeout:      5 * time.Second,
			Rate:         2,
			MaxBodyBytes: 2 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, or from ConfigPath when path is empty.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the host cannot run with.
func (c *Config) Validate() error {
	switch c.Inspector.Mode {
	case ModeReported, ModeHTTP, ModeBrowser:
	default:
		return fmt.Errorf("invalid inspector mode %q", c.Inspector.Mode)
	}
	if c.SimilarityThreshold < 1 {
		return fmt.Errorf("similarity_threshold must be >= 1, got %d", c.SimilarityThreshold)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0, got %d", c.HistoryLimit)
	}
	return nil
}

// DatabasePath returns the sqlite file, defaulting to vigil.db inside DataDir.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "vigil.db")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vigil"
	}
	return filepath.Join(home, ".config", "vigil")
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("known_domains", cfg.KnownDomains)
	v.SetDefault("similarity_threshold", cfg.SimilarityThreshold)
	v.SetDefault("history_limit", cfg.HistoryLimit)
	v.SetDefault("inspector.mode", cfg.Inspector.Mode)
	v.SetDefault("inspector.timeout", cfg.Inspector.Timeout)
	v.SetDefault("inspector.rate", cfg.Inspector.Rate)
	v.SetDefault("inspector.user_agent", cfg.Inspector.UserAgent)
	v.SetDefault("inspector.max_body_bytes", cfg.Inspector.MaxBodyBytes)
	v.SetDefault("inspector.chrome_path", cfg.Inspector.ChromePath)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
}
