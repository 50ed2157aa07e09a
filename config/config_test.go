package config

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// An empty value counts as set, so the variables are removed after
	// t.Setenv has recorded them for restoring.
	for _, key := range []string{"PKUHOLE_BASE_URL", "PKUHOLE_TIMEOUT", "PKUHOLE_RATE_EVERY", "PKUHOLE_RATE_BURST", "PKUHOLE_LOG_LEVEL", "PKUHOLE_DB_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("Expected base URL %q, got %q", DefaultBaseURL, cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.Timeout)
	}
	if cfg.RateEvery != 500*time.Millisecond || cfg.RateBurst != DefaultRateLimitBurst {
		t.Errorf("Unexpected rate limit %v/%d", cfg.RateEvery, cfg.RateBurst)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("Expected INFO log level, got %v", cfg.LogLevel)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("Expected default DB path, got %q", cfg.DBPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PKUHOLE_BASE_URL", "https://hole.example.com/")
	t.Setenv("PKUHOLE_HOST", Host)
	t.Setenv("PKUHOLE_TIMEOUT", "5s")
	t.Setenv("PKUHOLE_RATE_EVERY", "2s")
	t.Setenv("PKUHOLE_RATE_BURST", "9")
	t.Setenv("PKUHOLE_LOG_LEVEL", "debug")
	t.Setenv("PKUHOLE_S3_ENABLED", "true")
	t.Setenv("PKUHOLE_S3_USE_SSL", "false")

	cfg := Load(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if cfg.BaseURL != "https://hole.example.com" {
		t.Errorf("Expected trailing slash to be trimmed, got %q", cfg.BaseURL)
	}
	if cfg.Host != Host {
		t.Errorf("Expected host %q, got %q", Host, cfg.Host)
	}
	if cfg.Timeout != 5*time.Second || cfg.RateEvery != 2*time.Second || cfg.RateBurst != 9 {
		t.Errorf("Unexpected durations %v %v %d", cfg.Timeout, cfg.RateEvery, cfg.RateBurst)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("Expected DEBUG log level, got %v", cfg.LogLevel)
	}
	if !cfg.S3Enabled || cfg.S3UseSSL {
		t.Errorf("Unexpected S3 flags enabled=%v ssl=%v", cfg.S3Enabled, cfg.S3UseSSL)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PKUHOLE_TIMEOUT", "soon")
	t.Setenv("PKUHOLE_RATE_EVERY", "often")
	t.Setenv("PKUHOLE_RATE_BURST", "0")
	t.Setenv("PKUHOLE_LOG_LEVEL", "chatty")

	cfg := Load(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout, got %v", cfg.Timeout)
	}
	if cfg.RateEvery != 500*time.Millisecond {
		t.Errorf("Expected default rate interval, got %v", cfg.RateEvery)
	}
	if cfg.RateBurst != DefaultRateLimitBurst {
		t.Errorf("Expected default burst, got %d", cfg.RateBurst)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("Expected INFO log level, got %v", cfg.LogLevel)
	}
}
