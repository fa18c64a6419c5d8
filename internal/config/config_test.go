package config

import (
	"testing"
	"time"
)

var configEnvKeys = []string{
	"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
	"TICK_MIN", "TICK_MAX", "SERIES_MAX", "RNG_SEED",
	"READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.TickMin != 3*time.Second || cfg.TickMax != 7*time.Second {
		t.Errorf("expected tick bounds [3s,7s), got [%v,%v)", cfg.TickMin, cfg.TickMax)
	}
	if cfg.SeriesMax != 500 {
		t.Errorf("expected series cap 500, got %d", cfg.SeriesMax)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty DATABASE_URL, got %q", cfg.DatabaseURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TICK_MIN", "1s")
	t.Setenv("TICK_MAX", "2s")
	t.Setenv("SERIES_MAX", "50")
	t.Setenv("RNG_SEED", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 9999 || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %d %q", cfg.Port, cfg.LogLevel)
	}
	if cfg.TickMin != time.Second || cfg.TickMax != 2*time.Second {
		t.Errorf("tick overrides not applied: %v %v", cfg.TickMin, cfg.TickMax)
	}
	if cfg.SeriesMax != 50 || cfg.RNGSeed != 42 {
		t.Errorf("series/seed overrides not applied: %d %d", cfg.SeriesMax, cfg.RNGSeed)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"PORT", "not-a-number"},
		{"LOG_LEVEL", "loud"},
		{"TICK_MIN", "fast"},
		{"SERIES_MAX", "1"},
		{"RNG_SEED", "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_TickBoundsMustBeOrdered(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_MIN", "5s")
	t.Setenv("TICK_MAX", "5s")
	if _, err := Load(); err == nil {
		t.Error("expected error when TICK_MAX <= TICK_MIN")
	}
}
