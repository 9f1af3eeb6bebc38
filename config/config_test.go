package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("DEFAULT_SLOT_CAPACITY", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.App.Port)
	}
	if cfg.Engine.DefaultSlotCapacity != 10 {
		t.Errorf("expected default slot capacity 10, got %d", cfg.Engine.DefaultSlotCapacity)
	}
	if cfg.Engine.ReservedBuffer != 2 {
		t.Errorf("expected reserved buffer 2, got %d", cfg.Engine.ReservedBuffer)
	}
	if cfg.Engine.SlotLockTTL != 5*time.Second {
		t.Errorf("expected lock ttl 5s, got %s", cfg.Engine.SlotLockTTL)
	}
	if cfg.Engine.NoShowGrace != 10*time.Minute {
		t.Errorf("expected grace 10m, got %s", cfg.Engine.NoShowGrace)
	}
	if cfg.Engine.CapacityTTL != 24*time.Hour {
		t.Errorf("expected capacity ttl 24h, got %s", cfg.Engine.CapacityTTL)
	}
	if cfg.AuthEnabled() {
		t.Error("expected auth to be disabled without JWT_SECRET")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_SLOT_CAPACITY", "25")
	t.Setenv("RESERVED_BUFFER", "4")
	t.Setenv("SLOT_LOCK_WAIT", "750ms")
	t.Setenv("RECONCILE_INTERVAL", "1m")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.DefaultSlotCapacity != 25 {
		t.Errorf("expected slot capacity 25, got %d", cfg.Engine.DefaultSlotCapacity)
	}
	if cfg.Engine.ReservedBuffer != 4 {
		t.Errorf("expected buffer 4, got %d", cfg.Engine.ReservedBuffer)
	}
	if cfg.Engine.SlotLockWait != 750*time.Millisecond {
		t.Errorf("expected lock wait 750ms, got %s", cfg.Engine.SlotLockWait)
	}
	if cfg.Engine.ReconcileInterval != time.Minute {
		t.Errorf("expected reconcile interval 1m, got %s", cfg.Engine.ReconcileInterval)
	}
	if !cfg.AuthEnabled() {
		t.Error("expected auth to be enabled")
	}
}

func TestLoadConfig_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("NO_SHOW_GRACE", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.NoShowGrace != 10*time.Minute {
		t.Errorf("expected fallback grace 10m, got %s", cfg.Engine.NoShowGrace)
	}
}
