package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"NORMALIZE_MAX_WIDTH", "NORMALIZE_TILE_SIZE", "NORMALIZE_DEVICE_PIXEL_RATIO",
		"NORMALIZE_BACKING_STORE_RATIO", "POSTGRES_DSN", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Normalize.MaxWidth != 2048 || cfg.Normalize.MaxHeight != 2048 {
		t.Fatalf("expected 2048x2048 bound, got %dx%d", cfg.Normalize.MaxWidth, cfg.Normalize.MaxHeight)
	}
	if cfg.Normalize.TileSize != 1024 {
		t.Fatalf("expected tile size 1024, got %d", cfg.Normalize.TileSize)
	}
	if got := cfg.Normalize.PixelRatio(); got != 2 {
		t.Fatalf("expected pixel ratio 2, got %v", got)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("expected memory store by default, got dsn %q", cfg.Database.DSN)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected one minute window, got %s", cfg.RateLimit.Window)
	}
	if err := cfg.Normalize.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NORMALIZE_DEVICE_PIXEL_RATIO", "3")
	t.Setenv("NORMALIZE_BACKING_STORE_RATIO", "1.5")
	t.Setenv("NORMALIZE_OUTPUT_TYPE", "WEBP")
	t.Setenv("NORMALIZE_TILE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg := Load()
	if got := cfg.Normalize.PixelRatio(); got != 2 {
		t.Fatalf("expected pixel ratio 2, got %v", got)
	}
	if cfg.Normalize.OutputType != "webp" {
		t.Fatalf("expected lowercased output type, got %q", cfg.Normalize.OutputType)
	}
	if cfg.Normalize.TileSize != 1024 {
		t.Fatalf("expected fallback tile size on parse error, got %d", cfg.Normalize.TileSize)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected 30s window, got %s", cfg.RateLimit.Window)
	}
}

func TestNormalizeConfigValidate(t *testing.T) {
	bad := NormalizeConfig{MaxWidth: 10, MaxHeight: 10, TileSize: 0, JPEGQuality: 85}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero tile size")
	}
	if got := (NormalizeConfig{}).PixelRatio(); got != 1 {
		t.Fatalf("expected unit pixel ratio for zero config, got %v", got)
	}
}
