// Package record defines the remote store's flat representation of mind
// map entities and the bidirectional translation to domain types.
//
// A Record is ephemeral: constructed per sync operation, never persisted
// locally. The field names in this package are the de facto wire contract
// with pre-existing remote data and must not be renamed.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
)

// Type tags a record with the entity kind it projects.
type Type string

const (
	// TypeMindMap is the record type for documents.
	TypeMindMap Type = "MindMap"

	// TypeNode is the record type for nodes.
	TypeNode Type = "Node"
)

// Wire field names for MindMap records.
const (
	FieldTitle      = "title"
	FieldRootNodeID = "rootNodeID"
	FieldNodeIDs    = "nodeIDs"
	FieldTagIDs     = "tagIDs"
	FieldMediaIDs   = "mediaIDs"
	FieldIsShared   = "isShared"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
	FieldVersion    = "version"
)

// Wire field names for Node records. Child order is a local concern: the
// remote representation carries only the upward parent link, and child
// lists are rebuilt from parent links after download.
const (
	FieldText        = "text"
	FieldPosition    = "position"
	FieldParentID    = "parentID"
	FieldMindMapID   = "mindMapID"
	FieldIsTask      = "isTask"
	FieldIsCompleted = "isCompleted"
)

// Record is the remote store's flat, typed projection of a Document or
// Node. Name is the entity UUID rendered as a string; ModificationDate is
// assigned by the store on save.
type Record struct {
	Name             string         `json:"name"`
	Type             Type           `json:"type"`
	Fields           map[string]any `json:"fields"`
	ModificationDate time.Time      `json:"modificationDate"`
}

// EntityID parses the record name back into the entity identity.
func (r *Record) EntityID() (uuid.UUID, error) {
	id, err := uuid.Parse(r.Name)
	if err != nil {
		return uuid.Nil, model.NewSyncError(model.CodeDataCorrupted, "record name is not a uuid", err)
	}
	return id, nil
}

// DocumentID returns the document a record belongs to: the record's own
// identity for MindMap records, the mindMapID field for Node records.
func (r *Record) DocumentID() (uuid.UUID, error) {
	switch r.Type {
	case TypeMindMap:
		return r.EntityID()
	case TypeNode:
		return r.idField(FieldMindMapID)
	}
	return uuid.Nil, model.SyncErrorf(model.CodeDataCorrupted, "record %s has unknown type %q", r.Name, r.Type)
}
