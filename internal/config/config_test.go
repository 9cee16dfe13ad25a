package config

import (
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "IDLE_API_ADDR", "DATABASE_URL", "IDLE_TICK", "IDLE_SAVE_SLOT"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Slot != "default" || cfg.Tick != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("database url should be optional")
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IDLE_TICK", "250ms")
	t.Setenv("IDLE_AUTOSAVE_EVERY", "garbage")
	t.Setenv("IDLE_AUTOSTART", "false")

	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Tick != 250*time.Millisecond {
		t.Fatalf("tick = %s", cfg.Tick)
	}
	if cfg.AutosaveEvery != 30*time.Second {
		t.Fatalf("bad duration should fall back, got %s", cfg.AutosaveEvery)
	}
	if cfg.AutoStart {
		t.Fatalf("autostart should be false")
	}
}

func TestLoadServerRejectsBadTick(t *testing.T) {
	t.Setenv("IDLE_TICK", "-1s")
	if _, err := LoadServerFromEnv(); err == nil {
		t.Fatalf("expected error for negative tick")
	}
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("IDLE_TICK", "")
	t.Setenv("IDLE_SIM_RUN_FOR", "1h")
	t.Setenv("IDLE_SIM_RUN_ONCE", "true")
	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RunFor != time.Hour || !cfg.RunOnce || cfg.Every != time.Minute {
		t.Fatalf("unexpected worker config: %+v", cfg)
	}
}
