// Package config reads client and simulator settings from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Client    ClientConfig
	Simulator SimulatorConfig
	LogLevel  string
	LogFormat string
}

type ClientConfig struct {
	APIURL     string
	DBPath     string
	Passphrase string
	Scope      string
	Timeout    time.Duration
	// RateLimit is outbound requests per second; 0 disables throttling.
	RateLimit float64
}

type SimulatorConfig struct {
	Port       string
	SigningKey string
	AccessTTL  time.Duration
	// Seed creates a demo account at startup.
	Seed bool
	// PublicURL prefixes links in gift and reset email.
	PublicURL string
	// PostmarkToken enables real email delivery; without it mail is
	// kept in memory.
	PostmarkToken string
	FromEmail     string
}

// Load builds a Config from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Client: ClientConfig{
			APIURL:     getEnv("SCOUTCARD_API_URL", "http://localhost:8080"),
			DBPath:     getEnv("SCOUTCARD_DB_PATH", defaultDBPath()),
			Passphrase: getEnv("SCOUTCARD_PASSPHRASE", ""),
			Scope:      getEnv("SCOUTCARD_SCOPE", "default"),
			Timeout:    getEnvDuration("SCOUTCARD_TIMEOUT", 15*time.Second),
			RateLimit:  getEnvFloat("SCOUTCARD_RATE_LIMIT", 0),
		},
		Simulator: SimulatorConfig{
			Port:          getEnv("CARDSIM_PORT", "8080"),
			SigningKey:    getEnv("CARDSIM_SIGNING_KEY", ""),
			AccessTTL:     getEnvDuration("CARDSIM_ACCESS_TTL", 15*time.Minute),
			Seed:          getEnv("CARDSIM_SEED", "") != "",
			PublicURL:     getEnv("CARDSIM_PUBLIC_URL", "http://localhost:8080"),
			PostmarkToken: getEnv("CARDSIM_POSTMARK_TOKEN", ""),
			FromEmail:     getEnv("CARDSIM_FROM_EMAIL", "cards@localhost"),
		},
		LogLevel:  getEnv("SCOUTCARD_LOG_LEVEL", "info"),
		LogFormat: getEnv("SCOUTCARD_LOG_FORMAT", "text"),
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "scoutcard.db"
	}
	return filepath.Join(dir, "scoutcard", "credentials.db")
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts a Go duration ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
