package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8645" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.MetricsAddress != ":9464" {
		t.Fatalf("unexpected metrics address %q", cfg.MetricsAddress)
	}
	if cfg.AuthTokenEnv != "ESCROWD_RPC_TOKEN" {
		t.Fatalf("unexpected auth token env %q", cfg.AuthTokenEnv)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the file written on the first run.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded != *cfg {
		t.Fatalf("reload mismatch: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	body := "ListenAddress = \":9999\"\nDataDir = \"/var/lib/escrowd\"\nEnv = \"prod\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "/var/lib/escrowd" {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.Env != "prod" {
		t.Fatalf("unexpected env %q", cfg.Env)
	}
	// Unset fields fall back to defaults.
	if cfg.ServiceName != "escrowd" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}
