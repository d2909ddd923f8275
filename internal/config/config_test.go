package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"autocron/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.EnvConfigPath, "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".autocron")
	if cfg.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "autocron.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LogDir != filepath.Join(tempHome, ".autocron", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.LogDir)
	}
	if cfg.LogFormat != "console" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected logging defaults: %q %q", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.MaxWorkers != 0 {
		t.Fatalf("expected no worker override by default, got %d", cfg.MaxWorkers)
	}
	if cfg.WorkerGraceSeconds != 10 {
		t.Fatalf("unexpected worker grace: %d", cfg.WorkerGraceSeconds)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "autocron.toml")

	body := []byte("data_dir = \"" + tempDir + "/state\"\n" +
		"database_file = \"tasks.db\"\n" +
		"log_level = \"DEBUG\"\n" +
		"max_workers = 4\n")
	if err := os.WriteFile(configPath, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.DataDir != filepath.Join(tempDir, "state") {
		t.Fatalf("unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.DatabasePath() != filepath.Join(tempDir, "state", "tasks.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected normalized level, got %q", cfg.LogLevel)
	}
	if cfg.MaxWorkers != 4 {
		t.Fatalf("expected worker override, got %d", cfg.MaxWorkers)
	}
}

func TestLoadPathFromEnv(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "env.toml")
	if err := os.WriteFile(configPath, []byte("database_file = \"env.db\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvConfigPath, configPath)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected env-resolved path %q, got %q exists=%v", configPath, resolved, exists)
	}
	if filepath.Base(cfg.DatabasePath()) != "env.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad format", "log_format = \"xml\"\n"},
		{"bad level", "log_level = \"verbose\"\n"},
		{"negative workers", "max_workers = -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "autocron.toml")
			if err := os.WriteFile(configPath, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(configPath); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAbsoluteDatabaseFileWins(t *testing.T) {
	cfg := config.Default()
	abs := filepath.Join(t.TempDir(), "elsewhere.db")
	cfg.DatabaseFile = abs
	if cfg.DatabasePath() != abs {
		t.Fatalf("expected absolute path %q, got %q", abs, cfg.DatabasePath())
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample to load cleanly: exists=%v err=%v", exists, err)
	}
}
