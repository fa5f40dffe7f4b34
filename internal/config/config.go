package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
// DatabaseDSN may be empty, in which case results are not persisted.
type Config struct {
	ListenAddr   string
	DatabaseDSN  string
	AuthEndpoint string
	TickPeriod   time.Duration
	Development  bool
}

func Load() Config {
	return Config{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		DatabaseDSN:  getEnv("DATABASE_DSN", ""),
		AuthEndpoint: getEnv("AUTH_ENDPOINT", ""),
		TickPeriod:   time.Duration(getEnvAsInt("TICK_PERIOD_MS", 20)) * time.Millisecond,
		Development:  getEnv("ENV", "production") != "production",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
