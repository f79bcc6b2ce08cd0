package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	HTTP     HTTPConfig
	Redis    RedisConfig
	Log      LogConfig
	Cache    CacheConfig
	Workflow WorkflowConfig
	Registry RegistryConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string

	// File rotation, used when Output is "file".
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type CacheConfig struct {
	AnalysisTTL   time.Duration
	EntityTTL     time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

type WorkflowConfig struct {
	PersistDebounce time.Duration
	BootstrapTimeout time.Duration
}

type RegistryConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryAttempts  int
}

func Load() (*Config, error) {
	// A missing .env file is fine in production, env vars come from the runtime.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 20),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/tradecompass.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		Cache: CacheConfig{
			AnalysisTTL:   getEnvDuration("CACHE_ANALYSIS_TTL", 7*24*time.Hour),
			EntityTTL:     getEnvDuration("CACHE_ENTITY_TTL", 30*24*time.Hour),
			SessionTTL:    getEnvDuration("CACHE_SESSION_TTL", 0),
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 6*time.Hour),
		},
		Workflow: WorkflowConfig{
			PersistDebounce:  getEnvDuration("WORKFLOW_PERSIST_DEBOUNCE", 2*time.Second),
			BootstrapTimeout: getEnvDuration("WORKFLOW_BOOTSTRAP_TIMEOUT", 10*time.Second),
		},
		Registry: RegistryConfig{
			BaseURL:        getEnv("REGISTRY_BASE_URL", ""),
			RequestTimeout: getEnvDuration("REGISTRY_REQUEST_TIMEOUT", 15*time.Second),
			RetryAttempts:  getEnvInt("REGISTRY_RETRY_ATTEMPTS", 3),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", cfg.HTTP.Port)
	}

	if cfg.Workflow.PersistDebounce <= 0 {
		return fmt.Errorf("WORKFLOW_PERSIST_DEBOUNCE must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}

	// Bare integers are treated as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return fallback
}
