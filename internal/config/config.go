// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Blocklist BlocklistConfig `mapstructure:"blocklist"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// EngineConfig describes how the rendering engine is launched and driven.
type EngineConfig struct {
	ExecPath  string `mapstructure:"exec_path"`
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
	WaitUntil string `mapstructure:"wait_until"`
}

// PoolConfig governs instance health and lifecycle.
type PoolConfig struct {
	PageCeiling          int `mapstructure:"page_ceiling"`
	HealthProbeSeconds   int `mapstructure:"health_probe_seconds"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// ExecutorConfig governs admission, deadlines and retry behavior.
type ExecutorConfig struct {
	MaxConcurrent           int `mapstructure:"max_concurrent"`
	RetryBudget             int `mapstructure:"retry_budget"`
	BackoffBaseMs           int `mapstructure:"backoff_base_ms"`
	NavigationTimeoutSecs   int `mapstructure:"navigation_timeout_seconds"`
	OperationTimeoutSeconds int `mapstructure:"operation_timeout_seconds"`
}

// ExtractConfig tunes the extraction pipeline.
type ExtractConfig struct {
	MinTextLen            int `mapstructure:"min_text_len"`
	CaptureTimeoutSeconds int `mapstructure:"capture_timeout_seconds"`
}

// ReaperConfig controls stray-page cleanup.
type ReaperConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// BlocklistConfig adds operator-supplied hosts to the default tracker set.
type BlocklistConfig struct {
	ExtraHosts []string `mapstructure:"extra_hosts"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RENDERFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("engine.exec_path", "")
	v.SetDefault("engine.headless", true)
	v.SetDefault("engine.user_agent", "renderfetch/1.0 (+https://github.com/renderfetch/renderfetch)")
	v.SetDefault("engine.wait_until", "DOMContentLoaded")
	v.SetDefault("pool.page_ceiling", 5)
	v.SetDefault("pool.health_probe_seconds", 3)
	v.SetDefault("pool.shutdown_grace_seconds", 10)
	v.SetDefault("executor.max_concurrent", 10)
	v.SetDefault("executor.retry_budget", 2)
	v.SetDefault("executor.backoff_base_ms", 500)
	v.SetDefault("executor.navigation_timeout_seconds", 30)
	v.SetDefault("executor.operation_timeout_seconds", 60)
	v.SetDefault("extract.min_text_len", 100)
	v.SetDefault("extract.capture_timeout_seconds", 10)
	v.SetDefault("reaper.interval_seconds", 60)
	v.SetDefault("blocklist.extra_hosts", []string{})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be > 0")
	}
	if c.Executor.RetryBudget < 0 {
		return fmt.Errorf("executor.retry_budget must be >= 0")
	}
	if c.Executor.NavigationTimeoutSecs <= 0 {
		return fmt.Errorf("executor.navigation_timeout_seconds must be > 0")
	}
	if c.Executor.OperationTimeoutSeconds < c.Executor.NavigationTimeoutSecs {
		return fmt.Errorf("executor.operation_timeout_seconds must cover the navigation timeout")
	}
	if c.Pool.PageCeiling <= 0 {
		return fmt.Errorf("pool.page_ceiling must be > 0")
	}
	switch c.Engine.WaitUntil {
	case "DOMContentLoaded", "load", "networkIdle":
	default:
		return fmt.Errorf("engine.wait_until must be one of DOMContentLoaded, load, networkIdle")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout returns the server-level request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
