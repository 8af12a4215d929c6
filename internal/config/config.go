// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"restock_bot/internal/model"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	// Monitor loop.
	TickSeconds             int
	PhaseWindowMinutes      int
	MinCheckIntervalMinutes int
	MaxParallelProbes       int

	// Catalog source.
	CatalogBaseURL        string
	CatalogFeedURL        string
	ProbeTimeoutSeconds   int
	ProbeHostDelaySeconds int

	// Cart service.
	CartServiceURL     string
	CartTimeoutSeconds int

	// Default threshold policy, overridable per group in storage.
	DefaultMinValue   int64
	DefaultMaxValue   int64
	DefaultMaxItems   int
	ThresholdsEnabled bool

	// Optional Telegram notification channel.
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from environment variables.
// URLs for the catalog and cart collaborators are not validated here;
// each command checks for the settings it actually needs.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/monitor.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		CatalogBaseURL:   os.Getenv("CATALOG_BASE_URL"),
		CatalogFeedURL:   os.Getenv("CATALOG_FEED_URL"),
		CartServiceURL:   os.Getenv("CART_SERVICE_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.TickSeconds, err = intEnv("MONITOR_TICK_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.PhaseWindowMinutes, err = intEnv("PHASE_WINDOW_MINUTES", 10); err != nil {
		return nil, err
	}
	if cfg.MinCheckIntervalMinutes, err = intEnv("MIN_CHECK_INTERVAL_MINUTES", 10); err != nil {
		return nil, err
	}
	if cfg.MaxParallelProbes, err = intEnv("MAX_PARALLEL_PROBES", 1); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeoutSeconds, err = intEnv("PROBE_TIMEOUT_SECONDS", 20); err != nil {
		return nil, err
	}
	if cfg.ProbeHostDelaySeconds, err = intEnv("PROBE_HOST_DELAY_SECONDS", 3); err != nil {
		return nil, err
	}
	if cfg.CartTimeoutSeconds, err = intEnv("CART_TIMEOUT_SECONDS", 15); err != nil {
		return nil, err
	}
	if cfg.DefaultMinValue, err = int64Env("CART_DEFAULT_MIN_VALUE", 0); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxValue, err = int64Env("CART_DEFAULT_MAX_VALUE", 50000); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxItems, err = intEnv("CART_DEFAULT_MAX_ITEMS", 20); err != nil {
		return nil, err
	}
	if cfg.ThresholdsEnabled, err = boolEnv("CART_THRESHOLDS_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.TelegramChatID, err = int64Env("TELEGRAM_CHAT_ID", 0); err != nil {
		return nil, err
	}

	if cfg.TickSeconds < 1 {
		return nil, fmt.Errorf("MONITOR_TICK_SECONDS must be at least 1, got %d", cfg.TickSeconds)
	}
	if cfg.MinCheckIntervalMinutes < 1 {
		return nil, fmt.Errorf("MIN_CHECK_INTERVAL_MINUTES must be at least 1, got %d", cfg.MinCheckIntervalMinutes)
	}
	if cfg.MaxParallelProbes < 1 {
		return nil, fmt.Errorf("MAX_PARALLEL_PROBES must be at least 1, got %d", cfg.MaxParallelProbes)
	}

	return cfg, nil
}

// Tick is the monitor loop wake interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// PhaseWindow is the window the per-watch phase offset is spread across.
func (c *Config) PhaseWindow() time.Duration {
	return time.Duration(c.PhaseWindowMinutes) * time.Minute
}

// ProbeTimeout bounds a single catalog probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// ProbeHostDelay is the minimum spacing between probes against one host.
func (c *Config) ProbeHostDelay() time.Duration {
	return time.Duration(c.ProbeHostDelaySeconds) * time.Second
}

// CartTimeout bounds a single cart service call.
func (c *Config) CartTimeout() time.Duration {
	return time.Duration(c.CartTimeoutSeconds) * time.Second
}

// DefaultPolicy returns the global threshold policy applied to groups
// without a stored override.
func (c *Config) DefaultPolicy() model.GroupPolicy {
	return model.GroupPolicy{
		MinValue: c.DefaultMinValue,
		MaxValue: c.DefaultMaxValue,
		MaxItems: c.DefaultMaxItems,
		Enabled:  c.ThresholdsEnabled,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func int64Env(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
