// Package config loads runtime settings from environment variables with
// safe defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the bridge service.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	OpenAIAPIKey string
	RealtimeURL  string
	Model        string
	Voice        string
	Instructions string

	MaxSessions    int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration

	DatabaseURL      string
	MetricsNamespace string
	LogLevel         string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8084"),
		ShutdownTimeout:  15 * time.Second,
		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RealtimeURL:      envOrDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		Model:            envOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2025-06-03"),
		Voice:            envOrDefault("OPENAI_REALTIME_VOICE", "alloy"),
		Instructions:     envOrDefault("OPENAI_REALTIME_INSTRUCTIONS", ""),
		MaxSessions:      50,
		ConnectTimeout:   15 * time.Second,
		RequestTimeout:   30 * time.Second,
		IdleTimeout:      5 * time.Minute,
		SweepInterval:    time.Minute,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voice_bridge"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessions, err = intFromEnv("APP_MAX_SESSIONS", cfg.MaxSessions); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = durationFromEnv("APP_CONNECT_TIMEOUT", cfg.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationFromEnv("APP_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = durationFromEnv("APP_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}

	if cfg.MaxSessions < 0 {
		return Config{}, fmt.Errorf("APP_MAX_SESSIONS must be >= 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_CONNECT_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_REQUEST_TIMEOUT must be positive")
	}
	if cfg.IdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
