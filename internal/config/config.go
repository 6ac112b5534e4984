package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string
	// DatabaseURL selects the Postgres store; empty runs the in-memory
	// store (optionally snapshotted to SnapshotFile).
	DatabaseURL  string
	SnapshotFile string
	// RedisAddr enables the cross-instance fan-out bus and rate limiting;
	// empty runs the in-process bus.
	RedisAddr      string
	RedisPass      string
	AllowedOrigins []string
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Alerts: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8013"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SnapshotFile:   getEnv("SNAPSHOT_FILE", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPass:      getEnv("REDIS_PASS", ""),
		AllowedOrigins: splitEnv("ALLOWED_ORIGINS"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
