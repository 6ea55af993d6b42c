// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Watches the store directory for database writes
// 2. Runs a debounced sync once local mutations settle
// 3. Periodically re-runs sync so failed documents get retried
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full sync regardless of
	// filesystem activity. This is the retry path for documents whose
	// previous pass failed or was rolled back.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after the last observed
	// write before syncing. This batches rapid mutations together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// OnResult, when set, is invoked after every sync run.
	OnResult func(*syncer.Result)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Second,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates store watching and sync runs.
type Daemon struct {
	ctrl     syncer.Controller
	local    store.LocalStore
	watchDir string
	config   *Config

	watcher *fsnotify.Watcher

	mu         sync.Mutex
	dirty      bool
	lastChange time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance watching the given store directory.
//
// Use Start() to begin watching and syncing.
func New(ctrl syncer.Controller, local store.LocalStore, watchDir string) (*Daemon, error) {
	return NewWithConfig(ctrl, local, watchDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(ctrl syncer.Controller, local store.LocalStore, watchDir string, config *Config) (*Daemon, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller cannot be nil")
	}
	if local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if watchDir == "" {
		return nil, fmt.Errorf("watchDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		ctrl:     ctrl,
		local:    local,
		watchDir: watchDir,
		config:   config,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an initial full sync
// 2. Watch the store directory for writes
// 3. Run a debounced sync when mutations settle
// 4. Re-run sync on SyncInterval for retries
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runSync(ctx)

	if err := d.watcher.Add(d.watchDir); err != nil {
		return fmt.Errorf("failed to watch store directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.watchDir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events and marks the store dirty.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			d.markDirty()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) markDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = true
	d.lastChange = time.Now()
}

// takeDirty reports whether changes have settled for at least the
// debounce interval, clearing the flag when they have.
func (d *Daemon) takeDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty || time.Since(d.lastChange) < d.config.DebounceInterval {
		return false
	}
	d.dirty = false
	return true
}

// syncLoop drives debounced and periodic sync runs.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	debounce := time.NewTicker(d.config.DebounceInterval)
	defer debounce.Stop()
	periodic := time.NewTicker(d.config.SyncInterval)
	defer periodic.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-debounce.C:
			if !d.takeDirty() {
				continue
			}
			// Only sync when local documents are actually flagged.
			// The daemon's own writes also trip the watcher, and this
			// check keeps them from triggering an endless loop.
			ids, err := d.local.ListSyncNeeded(d.ctx)
			if err != nil {
				d.config.Logger.Printf("Failed to list flagged documents: %v", err)
				continue
			}
			if len(ids) == 0 {
				continue
			}
			d.runSync(d.ctx)

		case <-periodic.C:
			d.runSync(d.ctx)
		}
	}
}

// runSync executes one sync run and reports the result.
func (d *Daemon) runSync(ctx context.Context) {
	if d.ctrl.Offline() {
		d.config.Logger.Println("Offline mode enabled, skipping sync")
		return
	}
	res, err := d.ctrl.Sync(ctx)
	if err != nil {
		d.config.Logger.Printf("Sync run failed: %v", err)
		return
	}
	if d.config.OnResult != nil {
		d.config.OnResult(res)
	}
}
