package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabasePath != filepath.Join(dir, "local.db") {
		t.Errorf("database path %q, want it joined to the settings dir", cfg.DatabasePath)
	}
	if cfg.RemoteURL != "" {
		t.Errorf("remote url %q, want empty by default", cfg.RemoteURL)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("sync interval %v, want 30s", cfg.SyncInterval)
	}
	if cfg.DebounceInterval != 500*time.Millisecond {
		t.Errorf("debounce interval %v, want 500ms", cfg.DebounceInterval)
	}
	if cfg.DashboardPort != 8080 {
		t.Errorf("dashboard port %d, want 8080", cfg.DashboardPort)
	}
	if cfg.Offline {
		t.Error("offline should default to false")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `database: maps.db
remote:
  url: libsql://example.turso.io
  auth_token: secret
offline: true
daemon:
  sync_interval: 2m
dashboard:
  port: 9090
log:
  file: daemon.log
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabasePath != filepath.Join(dir, "maps.db") {
		t.Errorf("database path %q", cfg.DatabasePath)
	}
	if cfg.RemoteURL != "libsql://example.turso.io" {
		t.Errorf("remote url %q", cfg.RemoteURL)
	}
	if cfg.RemoteAuthToken != "secret" {
		t.Errorf("auth token %q", cfg.RemoteAuthToken)
	}
	if !cfg.Offline {
		t.Error("offline should be read from the file")
	}
	if cfg.SyncInterval != 2*time.Minute {
		t.Errorf("sync interval %v, want 2m", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 9090 {
		t.Errorf("dashboard port %d, want 9090", cfg.DashboardPort)
	}
	if cfg.LogFile != filepath.Join(dir, "daemon.log") {
		t.Errorf("log file %q, want it joined to the settings dir", cfg.LogFile)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MAPSYNC_REMOTE_URL", "libsql://env.turso.io")
	t.Setenv("MAPSYNC_DASHBOARD_PORT", "7070")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RemoteURL != "libsql://env.turso.io" {
		t.Errorf("remote url %q, want the environment value", cfg.RemoteURL)
	}
	if cfg.DashboardPort != 7070 {
		t.Errorf("dashboard port %d, want 7070", cfg.DashboardPort)
	}
}

func TestFindDirWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o750); err != nil {
		t.Fatalf("creating settings dir: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatalf("creating nested dir: %v", err)
	}

	t.Chdir(nested)
	got := FindDir()
	if got == "" {
		t.Fatal("FindDir should locate the settings dir from a nested cwd")
	}
	// Resolve symlinks before comparing; t.TempDir may sit behind one.
	want, _ := filepath.EvalSymlinks(filepath.Join(root, DirName))
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("FindDir returned %q, want %q", got, want)
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{LogFile: filepath.Join(dir, "daemon.log")}

	logger := cfg.Logger("[test] ")
	logger.Println("hello")

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}
