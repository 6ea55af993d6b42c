// Package validate checks the structural integrity of a mind map and
// computes node layout.
//
// The validator is the gate around every sync pass and every domain
// mutation: a document whose node set fails validation is never persisted
// as the outcome of a sync. All functions are pure and never mutate their
// inputs, so they need no locking.
package validate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
)

// Validate checks a document's node set for structural corruption and
// returns the first violation found, or nil. Checks run cheapest first:
//
//  1. node set consistency and root reachability
//  2. parent/child back-reference consistency for every node
//  3. cycle freedom via iterative depth-first walks
//
// Violations are reported one at a time; callers that need every problem
// re-run after fixing.
func Validate(doc *model.Document, nodes []*model.Node) error {
	byID := make(map[uuid.UUID]*model.Node, len(nodes))
	for _, n := range nodes {
		if other, ok := byID[n.ID]; ok && other != n {
			return fmt.Errorf("node %s appears twice in node set", n.ID)
		}
		byID[n.ID] = n
	}

	if err := checkNodeSet(doc, byID, nodes); err != nil {
		return err
	}
	if err := checkBackReferences(byID, nodes); err != nil {
		return err
	}
	return checkCycles(byID, nodes)
}

// checkNodeSet verifies the document's node id set matches the supplied
// nodes and that the root is present and parentless.
func checkNodeSet(doc *model.Document, byID map[uuid.UUID]*model.Node, nodes []*model.Node) error {
	for _, id := range doc.NodeIDs {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("document %s references missing node %s", doc.ID, id)
		}
	}
	inSet := make(map[uuid.UUID]bool, len(doc.NodeIDs))
	for _, id := range doc.NodeIDs {
		inSet[id] = true
	}
	for _, n := range nodes {
		if !inSet[n.ID] {
			return fmt.Errorf("node %s not in document %s node set", n.ID, doc.ID)
		}
		if n.DocumentID != doc.ID {
			return fmt.Errorf("node %s belongs to document %s, not %s", n.ID, n.DocumentID, doc.ID)
		}
	}

	if doc.RootNodeID == nil {
		if len(nodes) > 0 {
			return fmt.Errorf("document %s has %d nodes but no root", doc.ID, len(nodes))
		}
		return nil
	}
	root, ok := byID[*doc.RootNodeID]
	if !ok {
		return fmt.Errorf("document %s root node %s missing", doc.ID, *doc.RootNodeID)
	}
	if root.ParentID != nil {
		return fmt.Errorf("root node %s has parent %s", root.ID, *root.ParentID)
	}
	// Only the root may be parentless; a second parentless node is
	// unreachable from the root by definition.
	for _, n := range nodes {
		if n.ParentID == nil && n.ID != root.ID {
			return fmt.Errorf("node %s is parentless but is not the root", n.ID)
		}
	}
	return nil
}

// checkBackReferences verifies invariants 1 and 2: parent links and child
// lists agree in both directions.
func checkBackReferences(byID map[uuid.UUID]*model.Node, nodes []*model.Node) error {
	for _, n := range nodes {
		if n.ParentID != nil {
			parent, ok := byID[*n.ParentID]
			if !ok {
				return fmt.Errorf("node %s references missing parent %s", n.ID, *n.ParentID)
			}
			if !parent.HasChild(n.ID) {
				return fmt.Errorf("node %s has parent %s whose child list omits it", n.ID, parent.ID)
			}
		}
		for _, childID := range n.ChildIDs {
			child, ok := byID[childID]
			if !ok {
				return fmt.Errorf("node %s references missing child %s", n.ID, childID)
			}
			if child.ParentID == nil || *child.ParentID != n.ID {
				return fmt.Errorf("node %s lists child %s whose parent link disagrees", n.ID, childID)
			}
		}
	}
	return nil
}

// checkCycles verifies no node is its own descendant. Each node gets its
// own walk up the parent chain with a fresh visited set; the walk is
// iterative so pathological trees can't blow the stack.
func checkCycles(byID map[uuid.UUID]*model.Node, nodes []*model.Node) error {
	for _, start := range nodes {
		visited := map[uuid.UUID]bool{start.ID: true}
		cur := start
		for cur.ParentID != nil {
			next, ok := byID[*cur.ParentID]
			if !ok {
				// Dangling parent; reported by checkBackReferences,
				// but guard against being called in isolation.
				return fmt.Errorf("node %s references missing parent %s", cur.ID, *cur.ParentID)
			}
			if visited[next.ID] {
				return fmt.Errorf("cycle detected through node %s", next.ID)
			}
			visited[next.ID] = true
			cur = next
		}
	}
	return nil
}
