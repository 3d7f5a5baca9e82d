// Package config reads process configuration from the environment.
// No example repo in the pack reaches for a config library (no
// viper, no envconfig) — every one of them reads os.Getenv by hand,
// the teacher's main.go included (REDIS_ADDR, DATABASE_URL). This
// package generalizes that pattern instead of introducing a new
// dependency the corpus never shows.
package config

import "os"

// Config is the full set of construction parameters for the service.
// Redis and Postgres are optional: the core is fully functional with
// neither set.
type Config struct {
	Addr        string
	DataDir     string
	RedisAddr   string
	DatabaseURL string
	MDNS        bool
	LogLevel    string
}

// Load reads Config from the environment, applying the same defaults
// documented in SPEC_FULL.md §6C.
func Load() Config {
	return Config{
		Addr:        getenv("DRAWROOM_ADDR", ":8080"),
		DataDir:     getenv("DRAWROOM_DATA_DIR", "./data"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MDNS:        os.Getenv("DRAWROOM_MDNS") == "true",
		LogLevel:    getenv("DRAWROOM_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
