package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the market simulator.
type Config struct {
	Port            int
	LogLevel        string
	DatabaseURL     string // empty selects the in-memory store
	RedisURL        string // empty disables the read-through cache
	TickMin         time.Duration
	TickMax         time.Duration
	SeriesMax       int
	RNGSeed         int64 // 0 seeds from the clock
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	tickMin, err := getDuration("TICK_MIN", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_MIN: %w", err)
	}

	tickMax, err := getDuration("TICK_MAX", 7*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_MAX: %w", err)
	}
	if tickMax <= tickMin {
		return nil, fmt.Errorf("TICK_MAX (%v) must be greater than TICK_MIN (%v)", tickMax, tickMin)
	}

	seriesMax, err := getInt("SERIES_MAX", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid SERIES_MAX: %w", err)
	}
	if seriesMax < 2 {
		return nil, fmt.Errorf("SERIES_MAX must be at least 2, got %d", seriesMax)
	}

	seed, err := getInt64("RNG_SEED", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid RNG_SEED: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabaseURL:     getStr("DATABASE_URL", ""),
		RedisURL:        getStr("REDIS_URL", ""),
		TickMin:         tickMin,
		TickMax:         tickMax,
		SeriesMax:       seriesMax,
		RNGSeed:         seed,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
