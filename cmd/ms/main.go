// Command ms is the mapsync CLI: local mind-map storage with
// last-write-wins synchronization against a shared record store.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/config"
	"github.com/mindwell/mapsync/internal/remote"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/syncer"
	"github.com/mindwell/mapsync/internal/ui"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ms",
	Short: "Mind map storage and sync",
	Long: `ms manages mind-map documents in a local SQLite database and keeps
them synchronized with a shared libSQL record store.

Documents and nodes are whole records resolved last-write-wins by
modification date. Every sync pass ends with a structural validation of
the merged tree; a pass that would corrupt a document is rolled back.`,
	Version: version,
}

func main() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "maps", Title: "Map commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced commands:"},
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// offlineMarker is the file whose presence keeps the controller in
// offline mode across CLI invocations.
func offlineMarker(cfg *config.Config) string {
	return filepath.Join(cfg.Dir, "offline")
}

// mustConfig locates the .mapsync directory and loads settings, exiting
// with a message when no workspace exists.
func mustConfig() *config.Config {
	dir := config.FindDir()
	if dir == "" {
		fmt.Fprintf(os.Stderr, "Error: %s directory not found (run 'ms init' first)\n", config.DirName)
		os.Exit(1)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openLocal opens the local database and ensures its schema exists.
func openLocal(cmd *cobra.Command, cfg *config.Config) *store.DB {
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(cmd.Context()); err != nil {
		_ = db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db
}

// openRemote connects to the configured record store and ensures its
// schema exists.
func openRemote(cmd *cobra.Command, cfg *config.Config) remote.Store {
	if cfg.RemoteURL == "" {
		fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url in %s/config.yaml or MAPSYNC_REMOTE_URL)\n", config.DirName)
		os.Exit(1)
	}
	rs, err := remote.OpenLibSQL(cfg.RemoteURL, cfg.RemoteAuthToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to remote: %v\n", err)
		os.Exit(1)
	}
	if err := rs.InitSchema(cmd.Context()); err != nil {
		_ = rs.Close()
		fmt.Fprintf(os.Stderr, "Error initializing remote schema: %v\n", err)
		os.Exit(1)
	}
	return rs
}

// newController wires a sync controller from config, honoring the
// persisted offline toggle.
func newController(cmd *cobra.Command, cfg *config.Config) (syncer.Controller, *store.DB) {
	db := openLocal(cmd, cfg)
	rs := openRemote(cmd, cfg)
	ctrl := syncer.New(db, rs, cfg.Logger("[sync] "))
	if cfg.Offline {
		ctrl.SetOffline(true)
	}
	if _, err := os.Stat(offlineMarker(cfg)); err == nil {
		ctrl.SetOffline(true)
	}
	return ctrl, db
}

func warnf(format string, args ...any) {
	fmt.Printf("%s "+format+"\n", append([]any{ui.RenderWarn("⚠")}, args...)...)
}
