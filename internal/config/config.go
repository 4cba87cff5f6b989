// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr         string
	OracleURL        string        // base URL of the analysis/synthesis service
	SampleRate       int           // capture and playback sample rate (Hz)
	SilenceThreshold float64       // mean spectrum magnitude below which a tick counts as quiet (0-255 scale)
	SilenceWindow    time.Duration // sustained quiet required to end a listening phase
	TickInterval     time.Duration // silence detector sampling cadence
	AmbientEnabled   bool
	ModeCachePath    string        // where the cultural mode cache is persisted
	ModeCacheTTL     time.Duration // validity window of a detected cultural mode
	OracleTimeout    time.Duration // per-call deadline for analyze/synthesize
}

func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		OracleURL:        getEnv("ORACLE_URL", "http://localhost:9090"),
		SampleRate:       getEnvInt("SAMPLE_RATE", 16000),
		SilenceThreshold: getEnvFloat("SILENCE_THRESHOLD", 15.0),
		SilenceWindow:    getEnvDuration("SILENCE_WINDOW", 2000*time.Millisecond),
		TickInterval:     getEnvDuration("TICK_INTERVAL", 16*time.Millisecond),
		AmbientEnabled:   getEnvBool("AMBIENT_ENABLED", true),
		ModeCachePath:    getEnv("MODE_CACHE_PATH", "mode_cache.yaml"),
		ModeCacheTTL:     getEnvDuration("MODE_CACHE_TTL", 24*time.Hour),
		OracleTimeout:    getEnvDuration("ORACLE_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
