// Package config loads gateway configuration from environment variables.
// A .env file is honored when present; explicit environment always wins.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration.
type Config struct {
	// ActiveBroker is the broker the gateway logs into at startup.
	ActiveBroker string

	// Broker credentials. Only the active broker's set needs to be present;
	// adapters validate before any network call.
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	ZerodhaAPIKey    string
	ZerodhaAPISecret string

	FyersAppID     string
	FyersAPISecret string

	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MetricsAddr   string
	LogLevel      string

	// Sandbox
	SandboxStartingCash float64
}

// Load reads configuration, trying .env first.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		ActiveBroker: getEnv("ACTIVE_BROKER", "angel"),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		ZerodhaAPIKey:    getEnv("ZERODHA_API_KEY", ""),
		ZerodhaAPISecret: getEnv("ZERODHA_API_SECRET", ""),

		FyersAppID:     getEnv("FYERS_APP_ID", ""),
		FyersAPISecret: getEnv("FYERS_API_SECRET", ""),

		SQLitePath:    getEnv("SQLITE_PATH", "data/gateway.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		SandboxStartingCash: getEnvFloat("SANDBOX_STARTING_CASH", 1_000_000),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
