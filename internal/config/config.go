// Package config loads the service's environment configuration, following
// the teacher's pattern of loading a .env file in development via godotenv
// and then reading typed values from os.Getenv with a single fatal check for
// mandatory variables at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Env        string
	HTTPAddr   string
	RedisURL   string
	DatabaseURL string

	MerchantProviderAPIKey  string
	MerchantProviderBaseURL string

	SerperAPIKey string

	LLMBaseURL string
	LLMModel   string
	OpenAIAPIKey string

	HostingAppBaseURL string

	AgenticDrainTimeout time.Duration
	AgenticQueueWorkers int
}

// Load reads a .env file if present (ignored if missing) and builds a
// Config, returning an error when a mandatory variable is absent or an
// integer variable does not parse.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                     getenv("ENV", "development"),
		HTTPAddr:                getenv("HTTP_ADDR", ":8080"),
		RedisURL:                getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		MerchantProviderAPIKey:  os.Getenv("MERCHANT_PROVIDER_API_KEY"),
		MerchantProviderBaseURL: getenv("MERCHANT_PROVIDER_BASE_URL", "https://api.ntropy.com"),
		SerperAPIKey:            os.Getenv("SERPER_API_KEY"),
		LLMBaseURL:              os.Getenv("LLM_BASE_URL"),
		LLMModel:                getenv("LLM_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		HostingAppBaseURL:       os.Getenv("HOSTING_APP_BASE_URL"),
	}

	drainSeconds, err := getenvInt("AGENTIC_DRAIN_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.AgenticDrainTimeout = time.Duration(drainSeconds) * time.Second

	workers, err := getenvInt("AGENTIC_QUEUE_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	cfg.AgenticQueueWorkers = workers

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("HTTP_ADDR must not be empty")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
