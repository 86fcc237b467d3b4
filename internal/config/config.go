package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the roleplay voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	MaxConcurrentSessions    int
	SessionInactivityTimeout time.Duration
	SweepInterval            time.Duration
	MaxTranscriptChars       int
	GreetingGrace            time.Duration
	GreetingRetryAfter       time.Duration
	ReconnectBase            time.Duration

	RealtimeAPIKey    string
	RealtimeWSBaseURL string
	RealtimeModelID   string

	EmotionAPIKey  string
	EmotionBaseURL string
	EmotionModelID string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "roleplay"),
		AllowAnyOrigin:           false,
		MaxConcurrentSessions:    20,
		SessionInactivityTimeout: 10 * time.Minute,
		SweepInterval:            time.Minute,
		MaxTranscriptChars:       200_000,
		GreetingGrace:            3 * time.Second,
		GreetingRetryAfter:       6 * time.Second,
		ReconnectBase:            time.Second,
		ShutdownTimeout:          15 * time.Second,
		RealtimeAPIKey:           stringsTrimSpace("REALTIME_API_KEY"),
		RealtimeWSBaseURL:        envOrDefault("REALTIME_WS_BASE_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModelID:          envOrDefault("REALTIME_MODEL_ID", "gpt-4o-realtime-preview"),
		EmotionAPIKey:            stringsTrimSpace("EMOTION_API_KEY"),
		EmotionBaseURL:           envOrDefault("EMOTION_BASE_URL", "https://api.openai.com/v1"),
		EmotionModelID:           envOrDefault("EMOTION_MODEL_ID", "gpt-4o-mini"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
	}
	if cfg.EmotionAPIKey == "" {
		// One key usually serves both endpoints.
		cfg.EmotionAPIKey = cfg.RealtimeAPIKey
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.GreetingGrace, err = durationFromEnv("APP_GREETING_GRACE", cfg.GreetingGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.GreetingRetryAfter, err = durationFromEnv("APP_GREETING_RETRY_AFTER", cfg.GreetingRetryAfter)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectBase, err = durationFromEnv("APP_RECONNECT_BASE", cfg.ReconnectBase)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentSessions, err = intFromEnv("APP_MAX_CONCURRENT_SESSIONS", cfg.MaxConcurrentSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTranscriptChars, err = intFromEnv("APP_MAX_TRANSCRIPT_CHARS", cfg.MaxTranscriptChars)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxConcurrentSessions <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_CONCURRENT_SESSIONS must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be positive")
	}
	if cfg.MaxTranscriptChars <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_TRANSCRIPT_CHARS must be positive")
	}
	if cfg.ReconnectBase <= 0 {
		return Config{}, fmt.Errorf("APP_RECONNECT_BASE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
