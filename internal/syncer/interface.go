// Package syncer coordinates sync passes across every document that
// needs one, and owns the offline switch.
package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/reconcile"
)

// Controller drives synchronization between the local store and the
// remote record store.
//
// The controller is designed to be resilient: individual document
// failures do not stop the run. Per-document outcomes are aggregated
// into a Result and failed documents keep their sync flag set so the
// next run retries them.
type Controller interface {
	// Sync runs a pass for every document that needs one: documents
	// flagged locally plus documents that exist only remotely.
	//
	// Returns a network_unavailable error immediately when offline
	// mode is enabled, before any remote traffic.
	//
	// Example:
	//   result, err := ctrl.Sync(ctx)
	Sync(ctx context.Context) (*Result, error)

	// SyncDocument runs a single pass for one document.
	//
	// Like Sync, it fails fast with a network_unavailable error in
	// offline mode.
	SyncDocument(ctx context.Context, documentID uuid.UUID) (*reconcile.Result, error)

	// SetOffline toggles offline mode. While enabled every sync
	// attempt fails fast; local mutations keep accumulating and are
	// replayed once the mode is disabled.
	SetOffline(offline bool)

	// Offline reports whether offline mode is enabled.
	Offline() bool
}

// Result aggregates the outcome of one Sync run.
type Result struct {
	// SyncedDocuments counts documents whose pass completed cleanly.
	SyncedDocuments int

	// FailedDocuments counts documents whose pass was rolled back,
	// collected entity errors, or could not run at all.
	FailedDocuments int

	// SyncedNodes counts node entities uploaded or downloaded.
	SyncedNodes int

	// Conflicts counts entities where both sides had diverged and a
	// winner was picked by timestamp.
	Conflicts int

	// Errors holds pass-level failures, one per document that could
	// not complete.
	Errors []error

	// Passes holds the per-document results in the order they ran.
	Passes []*reconcile.Result

	Duration time.Duration
}
