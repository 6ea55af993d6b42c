// Package remote defines the remote record store collaborator and its
// backends.
//
// The remote store is record-oriented and last-write-wins per record: no
// transactions span records, and every save stamps a store-assigned
// modification date. Two backends ship: a hosted libSQL database and an
// in-memory store for tests and local development.
package remote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/record"
)

// ErrRecordNotFound is returned by Fetch for an unknown record name.
var ErrRecordNotFound = errors.New("record not found")

// Store is the remote record store the reconciler pushes to and pulls
// from. Implementations assign ModificationDate on save and must return
// it on the saved record; the sync engine's convergence depends on
// reading that timestamp back.
type Store interface {
	// Save upserts a record and returns the stored copy, including the
	// store-assigned modification date.
	Save(ctx context.Context, rec *record.Record) (*record.Record, error)

	// Fetch returns a record by name, or ErrRecordNotFound.
	Fetch(ctx context.Context, name string) (*record.Record, error)

	// Query returns all records of the given type scoped to a document.
	// Passing uuid.Nil returns every record of the type.
	Query(ctx context.Context, typ record.Type, documentID uuid.UUID) ([]*record.Record, error)

	// Delete removes a record by name. Idempotent.
	Delete(ctx context.Context, name string) error
}

// cloneRecord deep-copies a record so callers can't alias store state.
func cloneRecord(rec *record.Record) *record.Record {
	out := *rec
	out.Fields = make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			out.Fields[k] = cp
			continue
		}
		out.Fields[k] = v
	}
	return &out
}
