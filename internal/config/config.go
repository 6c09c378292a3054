// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds everything the process reads from its environment.
type AppConfig struct {
	// Addr is the HTTP listen address.
	Addr string
	// DatabaseURL selects the Postgres store when set; empty means in-memory.
	DatabaseURL string
	// DevSeed seeds a demo owner and portfolio on startup.
	DevSeed bool
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is json (default) or text.
	LogFormat string
	// RuleCacheTTL bounds how long resolved rule tables are cached.
	RuleCacheTTL time.Duration
}

// Load reads the optional .env file and the process environment. Missing
// values fall back to development defaults; a missing .env is not an error.
func Load() AppConfig {
	_ = godotenv.Load()
	return AppConfig{
		Addr:         getEnv("SERVER_ADDR", ":8080"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DevSeed:      boolEnv("DEV_SEED"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		RuleCacheTTL: durationEnv("RULE_CACHE_TTL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
