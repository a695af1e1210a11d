// Package config provides configuration for the broker.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the broker configuration.
type Config struct {
	// Database
	DatabaseURL string

	// Pricing
	FeeTablePath string

	// Proof timing
	ProofDeadline   time.Duration
	ChallengeWindow time.Duration

	// Webhooks
	WebhookTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		DatabaseURL:     getEnv("DATABASE_URL", "file:broker.db?cache=shared&mode=rwc"),
		FeeTablePath:    getEnv("FEE_TABLE_PATH", ""),
		ProofDeadline:   time.Duration(getEnvInt("PROOF_DEADLINE_HOURS", 72)) * time.Hour,
		ChallengeWindow: time.Duration(getEnvInt("CHALLENGE_WINDOW_HOURS", 24)) * time.Hour,
		WebhookTimeout:  time.Duration(getEnvInt("WEBHOOK_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
