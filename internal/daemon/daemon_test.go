package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/remote"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/syncer"
)

func setupDaemonDeps(t *testing.T) (string, *store.DB, *remote.Memory, syncer.Controller) {
	t.Helper()

	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "local.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	mem := remote.NewMemory()
	ctrl := syncer.New(db, mem, log.New(os.Stderr, "[test] ", 0))
	return dir, db, mem, ctrl
}

func TestNewValidation(t *testing.T) {
	dir, db, _, ctrl := setupDaemonDeps(t)

	if _, err := New(nil, db, dir); err == nil {
		t.Error("nil controller should be rejected")
	}
	if _, err := New(ctrl, nil, dir); err == nil {
		t.Error("nil store should be rejected")
	}
	if _, err := New(ctrl, db, ""); err == nil {
		t.Error("empty watch directory should be rejected")
	}

	d, err := New(ctrl, db, dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNilConfigUsesDefaults(t *testing.T) {
	dir, db, _, ctrl := setupDaemonDeps(t)

	d, err := NewWithConfig(ctrl, db, dir, nil)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer d.Stop()

	if d.config.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval %v, want 30s", d.config.SyncInterval)
	}
	if d.config.DebounceInterval != 500*time.Millisecond {
		t.Errorf("DebounceInterval %v, want 500ms", d.config.DebounceInterval)
	}
}

func TestTakeDirtyDebounces(t *testing.T) {
	dir, db, _, ctrl := setupDaemonDeps(t)

	cfg := DefaultConfig()
	cfg.DebounceInterval = 20 * time.Millisecond
	d, err := NewWithConfig(ctrl, db, dir, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer d.Stop()

	if d.takeDirty() {
		t.Error("clean daemon should not report dirty")
	}

	d.markDirty()
	if d.takeDirty() {
		t.Error("changes should not be taken before they settle")
	}

	time.Sleep(30 * time.Millisecond)
	if !d.takeDirty() {
		t.Error("settled changes should be taken")
	}
	if d.takeDirty() {
		t.Error("taking must clear the flag")
	}
}

func TestStartSyncsAndShutsDown(t *testing.T) {
	dir, db, mem, ctrl := setupDaemonDeps(t)
	ctx := context.Background()

	// A flagged document for the initial run to pick up.
	doc := model.NewDocument("Daemon fodder")
	root := model.NewNode(doc.ID, "Daemon fodder")
	doc.RootNodeID = &root.ID
	doc.AddNode(root.ID)
	if err := db.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if err := db.SaveNode(ctx, root); err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}
	if err := db.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
		t.Fatalf("MarkSyncNeeded failed: %v", err)
	}

	results := make(chan *syncer.Result, 8)
	cfg := DefaultConfig()
	cfg.Logger = log.New(os.Stderr, "[test] ", 0)
	cfg.OnResult = func(res *syncer.Result) { results <- res }

	d, err := NewWithConfig(ctrl, db, dir, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()

	select {
	case res := <-results:
		if res.SyncedDocuments != 1 {
			t.Errorf("initial run synced %d documents, want 1", res.SyncedDocuments)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the initial sync run")
	}
	if mem.Len() != 2 {
		t.Errorf("remote holds %d records, want 2", mem.Len())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestRunSyncSkipsWhileOffline(t *testing.T) {
	dir, db, mem, ctrl := setupDaemonDeps(t)
	ctx := context.Background()

	doc := model.NewDocument("Stuck")
	root := model.NewNode(doc.ID, "Stuck")
	doc.RootNodeID = &root.ID
	doc.AddNode(root.ID)
	if err := db.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if err := db.SaveNode(ctx, root); err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}
	if err := db.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
		t.Fatalf("MarkSyncNeeded failed: %v", err)
	}

	called := false
	cfg := DefaultConfig()
	cfg.Logger = log.New(os.Stderr, "[test] ", 0)
	cfg.OnResult = func(*syncer.Result) { called = true }

	d, err := NewWithConfig(ctrl, db, dir, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer d.Stop()

	ctrl.SetOffline(true)
	d.runSync(ctx)

	if called {
		t.Error("offline runs must not invoke OnResult")
	}
	if mem.Len() != 0 {
		t.Errorf("remote holds %d records after an offline run", mem.Len())
	}
}
