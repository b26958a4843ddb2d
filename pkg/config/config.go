// Package config is the typed view over cmsprobe.yaml, CMSPROBE_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/httpclient"
)

// EnvPrefix namespaces environment overrides (CMSPROBE_THREADS, CMSPROBE_LOG_LEVEL).
const EnvPrefix = "CMSPROBE"

// LogConfig controls logger construction.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty = stderr only
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// UpdateConfig controls database builds.
type UpdateConfig struct {
	Workspace string `mapstructure:"workspace"`
}

// Config holds every setting shared by the commands.
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	Threads       int           `mapstructure:"threads"`
	TargetThreads int           `mapstructure:"threads_targets"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     int           `mapstructure:"rate_limit"`
	UserAgent     string        `mapstructure:"user_agent"`
	Proxy         string        `mapstructure:"proxy"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Update  UpdateConfig  `mapstructure:"update"`
}

// SetDefaults registers every key with its default so environment
// variables resolve even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("threads", defaults.Threads)
	v.SetDefault("threads_targets", defaults.TargetThreads)
	v.SetDefault("timeout", duration.HTTPProbe)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("proxy", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("update.workspace", defaults.WorkspaceDir)
}

// Load reads configFile (or cmsprobe.yaml from the search path), applies
// environment overrides and validates the result. A missing file is only an
// error when configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(defaults.ToolName)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + defaults.ToolName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no command can run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1, got %d", ErrInvalidConfig, c.Threads)
	}
	if c.TargetThreads < 1 {
		return fmt.Errorf("%w: threads_targets must be at least 1, got %d", ErrInvalidConfig, c.TargetThreads)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	if _, err := httpclient.ParseProxyURL(c.Proxy); err != nil {
		return fmt.Errorf("%w: proxy: %v", ErrInvalidConfig, err)
	}
	return nil
}
