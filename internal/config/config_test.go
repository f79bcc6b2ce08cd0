package config_test

import (
	"os"
	"testing"
	"time"

	"tradecompass-core/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("PORT")
	os.Unsetenv("REDIS_URL")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}

	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.HTTP.ReadTimeout)
	}

	if cfg.Cache.AnalysisTTL != 7*24*time.Hour {
		t.Errorf("Expected default analysis TTL of 7 days, got %v", cfg.Cache.AnalysisTTL)
	}

	if cfg.Cache.EntityTTL != 30*24*time.Hour {
		t.Errorf("Expected default entity TTL of 30 days, got %v", cfg.Cache.EntityTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("PORT", "9090")
	os.Setenv("REDIS_URL", "redis://localhost:6380")
	os.Setenv("WORKFLOW_PERSIST_DEBOUNCE", "500ms")

	defer func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("PORT")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("WORKFLOW_PERSIST_DEBOUNCE")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Expected environment 'test', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}

	if cfg.Redis.URL != "redis://localhost:6380" {
		t.Errorf("Expected overridden Redis URL, got %s", cfg.Redis.URL)
	}

	if cfg.Workflow.PersistDebounce != 500*time.Millisecond {
		t.Errorf("Expected 500ms debounce, got %v", cfg.Workflow.PersistDebounce)
	}
}

func TestDurationFallsBackToSeconds(t *testing.T) {
	os.Setenv("HTTP_READ_TIMEOUT", "45")
	defer os.Unsetenv("HTTP_READ_TIMEOUT")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("Expected bare integer to parse as seconds, got %v", cfg.HTTP.ReadTimeout)
	}
}

func TestInvalidPortRejected(t *testing.T) {
	os.Setenv("PORT", "0")
	defer os.Unsetenv("PORT")

	if _, err := config.Load(); err == nil {
		t.Error("Expected error for invalid port")
	}
}
