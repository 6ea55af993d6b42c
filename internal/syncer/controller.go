package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/reconcile"
	"github.com/mindwell/mapsync/internal/record"
	"github.com/mindwell/mapsync/internal/remote"
	"github.com/mindwell/mapsync/internal/store"
)

// controller implements the Controller interface.
type controller struct {
	local   store.LocalStore
	remote  remote.Store
	rec     *reconcile.Reconciler
	logger  *log.Logger
	offline atomic.Bool
}

// New creates a new Controller.
//
// The local store must be opened and have its schema initialized before
// passing to this function. If logger is nil, a default logger writing
// to stderr is used.
//
// Example:
//
//	db, err := store.Open(".mapsync/local.db")
//	if err != nil {
//	    return err
//	}
//	if err := db.InitSchema(ctx); err != nil {
//	    return err
//	}
//	ctrl := syncer.New(db, remoteStore, nil)
func New(local store.LocalStore, rem remote.Store, logger *log.Logger) Controller {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &controller{
		local:  local,
		remote: rem,
		rec:    reconcile.New(local, rem, logger),
		logger: logger,
	}
}

// SetOffline implements Controller.SetOffline.
func (c *controller) SetOffline(offline bool) {
	was := c.offline.Swap(offline)
	if was != offline {
		c.logger.Printf("offline mode: %v", offline)
	}
}

// Offline implements Controller.Offline.
func (c *controller) Offline() bool {
	return c.offline.Load()
}

// errOffline is returned by every sync attempt while offline mode is on.
func errOffline() error {
	return model.NewSyncError(model.CodeNetworkUnavailable, "offline mode enabled", nil)
}

// SyncDocument implements Controller.SyncDocument.
func (c *controller) SyncDocument(ctx context.Context, documentID uuid.UUID) (*reconcile.Result, error) {
	if c.offline.Load() {
		return nil, errOffline()
	}
	return c.rec.SyncDocument(ctx, documentID)
}

// Sync implements Controller.Sync.
func (c *controller) Sync(ctx context.Context) (*Result, error) {
	if c.offline.Load() {
		return nil, errOffline()
	}
	start := time.Now()

	ids, err := c.pending(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, id := range ids {
		pass, err := c.rec.SyncDocument(ctx, id)
		if err != nil {
			res.FailedDocuments++
			res.Errors = append(res.Errors, fmt.Errorf("document %s: %w", id, err))
			c.logger.Printf("sync failed for document %s: %v", id, err)
			continue
		}
		res.Passes = append(res.Passes, pass)
		res.SyncedNodes += pass.Nodes
		res.Conflicts += len(pass.Conflicts)
		if pass.Failed() {
			res.FailedDocuments++
		} else {
			res.SyncedDocuments++
		}
	}
	res.Duration = time.Since(start)
	c.logger.Printf("sync run complete: %d documents synced, %d failed, %d nodes, %d conflicts in %v",
		res.SyncedDocuments, res.FailedDocuments, res.SyncedNodes, res.Conflicts, res.Duration)
	return res, nil
}

// pending collects the documents a run should cover: locally flagged
// documents first, then remote documents with no local counterpart.
func (c *controller) pending(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := c.local.ListSyncNeeded(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing flagged documents: %w", err)
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	recs, err := c.remote.Query(ctx, record.TypeMindMap, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("discovering remote documents: %w", err)
	}
	for _, rec := range recs {
		id, err := rec.EntityID()
		if err != nil {
			c.logger.Printf("skipping unparseable document record %q: %v", rec.Name, err)
			continue
		}
		if seen[id] {
			continue
		}
		if _, err := c.local.FindDocument(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("checking document %s: %w", id, err)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
