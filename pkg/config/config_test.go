package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIPort != DefaultAPIPort {
		t.Fatalf("expected default api port %d, got %d", DefaultAPIPort, cfg.APIPort)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudge.json")
	if err := os.WriteFile(path, []byte(`{"api_port": 9999, "mqtt_enabled": true, "mqtt_broker": "broker.local"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIPort != 9999 {
		t.Fatalf("expected overridden api port 9999, got %d", cfg.APIPort)
	}
	if !cfg.MQTTEnabled || cfg.MQTTBroker != "broker.local" {
		t.Fatalf("expected mqtt overrides applied, got %+v", cfg)
	}
	// Fields absent from the file keep their defaults.
	if cfg.SQLitePath != DefaultSQLitePath {
		t.Fatalf("expected sqlite_path to fall back to default, got %q", cfg.SQLitePath)
	}
}

func TestLoad_RejectsInvalidAPIPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudge.json")
	if err := os.WriteFile(path, []byte(`{"api_port": 0}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for an out-of-range api_port")
	}
}

func TestLoad_RejectsEmptySQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudge.json")
	if err := os.WriteFile(path, []byte(`{"sqlite_path": ""}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for an empty sqlite_path")
	}
}
