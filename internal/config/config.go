// Package config loads mapsync settings from the .mapsync directory
// and the environment.
//
// Settings are read from .mapsync/config.yaml when present and can be
// overridden with MAPSYNC_-prefixed environment variables, e.g.
// MAPSYNC_REMOTE_URL or MAPSYNC_DASHBOARD_PORT.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DirName is the per-project settings directory.
const DirName = ".mapsync"

// Config holds all mapsync settings.
type Config struct {
	// Dir is the resolved .mapsync directory.
	Dir string

	// DatabasePath is the local SQLite database file.
	DatabasePath string

	// RemoteURL is the libSQL endpoint for the shared record store.
	// Empty means no remote is configured.
	RemoteURL string

	// RemoteAuthToken authenticates against RemoteURL.
	RemoteAuthToken string

	// Offline starts the controller in offline mode.
	Offline bool

	// SyncInterval is the daemon's periodic retry interval.
	SyncInterval time.Duration

	// DebounceInterval batches rapid local mutations before syncing.
	DebounceInterval time.Duration

	// DashboardPort is the dashboard server's listen port.
	DashboardPort int

	// LogFile, when set, sends daemon logs to a rotated file instead
	// of stderr.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load reads configuration for the given .mapsync directory. A missing
// config file is not an error; defaults and environment variables apply.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database", "local.db")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.auth_token", "")
	v.SetDefault("offline", false)
	v.SetDefault("daemon.sync_interval", "30s")
	v.SetDefault("daemon.debounce_interval", "500ms")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("MAPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		Dir:              dir,
		DatabasePath:     v.GetString("database"),
		RemoteURL:        v.GetString("remote.url"),
		RemoteAuthToken:  v.GetString("remote.auth_token"),
		Offline:          v.GetBool("offline"),
		SyncInterval:     v.GetDuration("daemon.sync_interval"),
		DebounceInterval: v.GetDuration("daemon.debounce_interval"),
		DashboardPort:    v.GetInt("dashboard.port"),
		LogFile:          v.GetString("log.file"),
		LogMaxSizeMB:     v.GetInt("log.max_size_mb"),
		LogMaxBackups:    v.GetInt("log.max_backups"),
		LogMaxAgeDays:    v.GetInt("log.max_age_days"),
	}
	if !filepath.IsAbs(cfg.DatabasePath) {
		cfg.DatabasePath = filepath.Join(dir, cfg.DatabasePath)
	}
	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(dir, cfg.LogFile)
	}
	return cfg, nil
}

// FindDir walks up from the working directory looking for a .mapsync
// directory. Returns "" when none exists.
func FindDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Logger builds a logger with the given bracketed prefix, writing to a
// rotated log file when one is configured and stderr otherwise.
func (c *Config) Logger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if c.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			MaxAge:     c.LogMaxAgeDays,
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}
