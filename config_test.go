package main

import (
	"os"
	"path"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	configPath := path.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	return configPath
}

func TestGetConfigDefaults(t *testing.T) {
	configPath := writeConfig(t, `
processFolder: /tmp/deflickarr
databasePath: /tmp/deflickarr.db
`)

	config, err := GetConfig(configPath)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}

	if config.BindAddress != "127.0.0.1" {
		t.Errorf("default bind address = %q, want 127.0.0.1", config.BindAddress)
	}
	if config.Port != 80 {
		t.Errorf("default port = %d, want 80", config.Port)
	}
	if config.Workers != 1 {
		t.Errorf("default workers = %d, want 1", config.Workers)
	}
	if config.Deflicker.Mode != "balanced" {
		t.Errorf("default mode = %q, want balanced", config.Deflicker.Mode)
	}
	if config.Deflicker.WindowSize != 15 {
		t.Errorf("default window size = %d, want 15", config.Deflicker.WindowSize)
	}
	if config.Deflicker.BatchSize != 2 {
		t.Errorf("default batch size = %d, want 2", config.Deflicker.BatchSize)
	}
	if *config.DeleteInputFileWhenFinished {
		t.Error("delete input file should default to false")
	}
}

func TestGetConfigMissingRequired(t *testing.T) {
	configPath := writeConfig(t, `
bindAddress: 0.0.0.0
`)

	if _, err := GetConfig(configPath); err == nil {
		t.Fatal("expected error for missing process folder and database path")
	}
}

func TestGetConfigEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
processFolder: /tmp/deflickarr
databasePath: /tmp/deflickarr.db
port: 9000
`)

	t.Setenv("PORT", "8123")

	config, err := GetConfig(configPath)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}

	if config.Port != 8123 {
		t.Errorf("port = %d, want env override 8123", config.Port)
	}
}

func TestGetConfigInvalidDeflickerMode(t *testing.T) {
	configPath := writeConfig(t, `
processFolder: /tmp/deflickarr
databasePath: /tmp/deflickarr.db
deflicker:
  mode: turbo
`)

	if _, err := GetConfig(configPath); err == nil {
		t.Fatal("expected error for unknown deflicker mode")
	}
}

func TestEngineOptionsInvalidWindow(t *testing.T) {
	opts := DeflickerOptions{
		Mode:       "fast",
		WindowSize: -3,
		BatchSize:  2,
	}

	if _, err := opts.EngineOptions(); err == nil {
		t.Fatal("expected error for negative window size")
	}
}
