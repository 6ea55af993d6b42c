// Package model defines the domain entities for mind map synchronization.
//
// Document and Node are value types: mutation helpers return nothing and
// operate on the receiver, but callers are expected to work on copies
// obtained from Clone() and persist the result explicitly. The snapshot a
// sync pass rolls back to is simply the set of values read at pass start.
package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Point is a 2D position on the mind map canvas.
type Point struct {
	X float64
	Y float64
}

// Entity is implemented by every syncable domain type.
type Entity interface {
	// EntityID returns the entity's identity.
	EntityID() uuid.UUID

	// ModifiedAt returns the last local modification time, used for
	// last-write-wins conflict resolution against remote records.
	ModifiedAt() time.Time
}

// Document is a mind map: the top-level syncable aggregate owning a tree
// of nodes. The struct is kept flat and timestamp-carrying so that whole
// records can be resolved last-write-wins against the remote store.
type Document struct {
	ID    uuid.UUID
	Title string

	// RootNodeID points at the tree root. Nil for an empty map.
	// Invariant: when set, it must appear in NodeIDs.
	RootNodeID *uuid.UUID

	// NodeIDs is the set of nodes owned by this document (unordered,
	// no duplicates).
	NodeIDs []uuid.UUID

	TagIDs   []uuid.UUID
	MediaIDs []uuid.UUID
	IsShared bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version increments on every local mutation.
	Version int64
}

// Node is a single tree element within a document.
type Node struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Text       string
	Position   Point

	// ParentID is nil only for the root node.
	ParentID *uuid.UUID

	// ChildIDs is ordered and duplicate-free. Every child's ParentID
	// must point back at this node.
	ChildIDs []uuid.UUID

	IsTask      bool
	IsCompleted bool

	MediaIDs []uuid.UUID
	TagIDs   []uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewDocument creates an empty document with a fresh identity.
func NewDocument(title string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// NewNode creates a node owned by the given document. The parent link is
// wired by the caller (domain service), not here.
func NewNode(documentID uuid.UUID, text string) *Node {
	now := time.Now().UTC()
	return &Node{
		ID:         uuid.New(),
		DocumentID: documentID,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
}

// EntityID implements Entity.
func (d *Document) EntityID() uuid.UUID { return d.ID }

// ModifiedAt implements Entity.
func (d *Document) ModifiedAt() time.Time { return d.UpdatedAt }

// EntityID implements Entity.
func (n *Node) EntityID() uuid.UUID { return n.ID }

// ModifiedAt implements Entity.
func (n *Node) ModifiedAt() time.Time { return n.UpdatedAt }

// Touch records a local mutation: bumps UpdatedAt and Version.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}

// Touch records a local mutation: bumps UpdatedAt and Version.
func (n *Node) Touch() {
	n.UpdatedAt = time.Now().UTC()
	n.Version++
}

// Validate checks field-level invariants that don't require the node set.
// Tree-level invariants (back-references, cycles) are the structural
// validator's job.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("document id is required")
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("document %s: createdAt is required", d.ID)
	}
	if d.UpdatedAt.IsZero() {
		return fmt.Errorf("document %s: updatedAt is required", d.ID)
	}
	if d.RootNodeID != nil && !slices.Contains(d.NodeIDs, *d.RootNodeID) {
		return fmt.Errorf("document %s: root node %s not in node set", d.ID, *d.RootNodeID)
	}
	return nil
}

// Validate checks field-level invariants that don't require the node set.
func (n *Node) Validate() error {
	if n.ID == uuid.Nil {
		return fmt.Errorf("node id is required")
	}
	if n.DocumentID == uuid.Nil {
		return fmt.Errorf("node %s: document id is required", n.ID)
	}
	if n.IsCompleted && !n.IsTask {
		return fmt.Errorf("node %s: completed but not a task", n.ID)
	}
	if n.CreatedAt.IsZero() {
		return fmt.Errorf("node %s: createdAt is required", n.ID)
	}
	if n.UpdatedAt.IsZero() {
		return fmt.Errorf("node %s: updatedAt is required", n.ID)
	}
	seen := make(map[uuid.UUID]bool, len(n.ChildIDs))
	for _, id := range n.ChildIDs {
		if seen[id] {
			return fmt.Errorf("node %s: duplicate child %s", n.ID, id)
		}
		seen[id] = true
	}
	return nil
}

// AddNode registers a node id in the document's node set (idempotent).
func (d *Document) AddNode(id uuid.UUID) {
	if !slices.Contains(d.NodeIDs, id) {
		d.NodeIDs = append(d.NodeIDs, id)
	}
}

// RemoveNode drops a node id from the document's node set. Clears
// RootNodeID if the root is removed.
func (d *Document) RemoveNode(id uuid.UUID) {
	d.NodeIDs = slices.DeleteFunc(d.NodeIDs, func(v uuid.UUID) bool { return v == id })
	if d.RootNodeID != nil && *d.RootNodeID == id {
		d.RootNodeID = nil
	}
}

// AddChild appends a child id, preserving order and uniqueness.
func (n *Node) AddChild(id uuid.UUID) {
	if !slices.Contains(n.ChildIDs, id) {
		n.ChildIDs = append(n.ChildIDs, id)
	}
}

// RemoveChild drops a child id if present.
func (n *Node) RemoveChild(id uuid.UUID) {
	n.ChildIDs = slices.DeleteFunc(n.ChildIDs, func(v uuid.UUID) bool { return v == id })
}

// HasChild reports whether id appears in ChildIDs.
func (n *Node) HasChild(id uuid.UUID) bool {
	return slices.Contains(n.ChildIDs, id)
}

// Clone returns a deep copy, safe to mutate independently.
func (d *Document) Clone() *Document {
	out := *d
	if d.RootNodeID != nil {
		root := *d.RootNodeID
		out.RootNodeID = &root
	}
	out.NodeIDs = slices.Clone(d.NodeIDs)
	out.TagIDs = slices.Clone(d.TagIDs)
	out.MediaIDs = slices.Clone(d.MediaIDs)
	return &out
}

// Clone returns a deep copy, safe to mutate independently.
func (n *Node) Clone() *Node {
	out := *n
	if n.ParentID != nil {
		parent := *n.ParentID
		out.ParentID = &parent
	}
	out.ChildIDs = slices.Clone(n.ChildIDs)
	out.MediaIDs = slices.Clone(n.MediaIDs)
	out.TagIDs = slices.Clone(n.TagIDs)
	return &out
}

// Equal reports whether two documents carry the same state. Timestamps are
// compared by instant, not representation.
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return false
	}
	return d.ID == other.ID &&
		d.Title == other.Title &&
		uuidPtrEqual(d.RootNodeID, other.RootNodeID) &&
		uuidSetEqual(d.NodeIDs, other.NodeIDs) &&
		uuidSetEqual(d.TagIDs, other.TagIDs) &&
		uuidSetEqual(d.MediaIDs, other.MediaIDs) &&
		d.IsShared == other.IsShared &&
		d.CreatedAt.Equal(other.CreatedAt) &&
		d.UpdatedAt.Equal(other.UpdatedAt) &&
		d.Version == other.Version
}

// Equal reports whether two nodes carry the same state. Child order is
// significant; tag and media sets are not.
func (n *Node) Equal(other *Node) bool {
	if other == nil {
		return false
	}
	return n.ID == other.ID &&
		n.DocumentID == other.DocumentID &&
		n.Text == other.Text &&
		n.Position == other.Position &&
		uuidPtrEqual(n.ParentID, other.ParentID) &&
		slices.Equal(n.ChildIDs, other.ChildIDs) &&
		n.IsTask == other.IsTask &&
		n.IsCompleted == other.IsCompleted &&
		uuidSetEqual(n.MediaIDs, other.MediaIDs) &&
		uuidSetEqual(n.TagIDs, other.TagIDs) &&
		n.CreatedAt.Equal(other.CreatedAt) &&
		n.UpdatedAt.Equal(other.UpdatedAt) &&
		n.Version == other.Version
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// uuidSetEqual compares two id slices as multisets, so duplicates on
// one side can't hide behind a matching length.
func uuidSetEqual(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}
