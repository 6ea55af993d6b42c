// Package store provides local persistence for mind map documents and
// nodes, backed by embedded SQLite.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
)

// ErrNotFound is returned when a document or node id has no row.
var ErrNotFound = errors.New("not found")

// LocalStore is the persistence collaborator the sync engine writes
// through. It is assumed durable and strongly consistent for a single
// device, and to serialize writes to a given entity id.
//
// The sync-needed flag is per document: local mutations set it through
// MarkSyncNeeded, a successful sync pass clears it, and downloads applied
// by the reconciler deliberately leave it untouched.
type LocalStore interface {
	// SaveDocument inserts or updates a document (upsert by id).
	SaveDocument(ctx context.Context, doc *model.Document) error

	// FindDocument returns a document by id, or ErrNotFound.
	FindDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)

	// ListDocuments returns every stored document.
	ListDocuments(ctx context.Context) ([]*model.Document, error)

	// DeleteDocument removes a document and cascades to its nodes.
	// Deleting an absent id is not an error (idempotent).
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// SaveNode inserts or updates a node (upsert by id).
	SaveNode(ctx context.Context, node *model.Node) error

	// FindNode returns a node by id, or ErrNotFound.
	FindNode(ctx context.Context, id uuid.UUID) (*model.Node, error)

	// ListNodes returns every node owned by a document.
	ListNodes(ctx context.Context, documentID uuid.UUID) ([]*model.Node, error)

	// DeleteNode removes a single node. Idempotent.
	DeleteNode(ctx context.Context, id uuid.UUID) error

	// MarkSyncNeeded sets or clears a document's sync-needed flag.
	MarkSyncNeeded(ctx context.Context, documentID uuid.UUID, needed bool) error

	// ListSyncNeeded returns the ids of documents flagged for sync.
	ListSyncNeeded(ctx context.Context) ([]uuid.UUID, error)
}
