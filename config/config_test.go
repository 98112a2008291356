package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("ListenAddress = %q, want :8080", cfg.ListenAddress)
	}
	if cfg.Backend != "level" {
		t.Fatalf("Backend = %q, want level", cfg.Backend)
	}
	if cfg.Protocol.UnlockTimeSeconds != 21_600 {
		t.Fatalf("UnlockTimeSeconds = %d, want 21600", cfg.Protocol.UnlockTimeSeconds)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ListenAddress != cfg.ListenAddress || reloaded.Backend != cfg.Backend {
		t.Fatalf("reloaded config mismatch: %+v", reloaded)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "ListenAddress = \":9090\"\nBackend = \"memory\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("ListenAddress = %q, want :9090", cfg.ListenAddress)
	}
	if cfg.Backend != "memory" {
		t.Fatalf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.DataDir != "./leverlend-data" {
		t.Fatalf("DataDir = %q, want default", cfg.DataDir)
	}
	if cfg.Protocol.MaxBaseFeeBps != 1_000 {
		t.Fatalf("MaxBaseFeeBps = %d, want 1000", cfg.Protocol.MaxBaseFeeBps)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("Backend = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadRejectsBadAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("Admin = \"not-an-address\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed admin address")
	}
}

func TestValidateRejectsExcessiveFees(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Protocol.MaxBaseFeeBps = 10_001
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for base fee above 10000 bps")
	}
}
