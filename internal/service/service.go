// Package service implements local mind-map mutations: creating
// documents and nodes, editing node content, and recursive deletion.
// Every mutation bumps the entity's modification metadata, revalidates
// the document, and flags it for the next sync run.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/validate"
)

// Service applies user-facing mutations to the local store.
type Service struct {
	local  store.LocalStore
	logger *log.Logger
}

// New creates a Service. If logger is nil, a default logger writing to
// stderr is used.
func New(local store.LocalStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[service] ", log.LstdFlags)
	}
	return &Service{local: local, logger: logger}
}

// CreateDocument creates a document with a root node carrying the title
// text at the origin.
func (s *Service) CreateDocument(ctx context.Context, title string) (*model.Document, error) {
	doc := model.NewDocument(title)
	root := model.NewNode(doc.ID, title)
	doc.RootNodeID = &root.ID
	doc.AddNode(root.ID)

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validating document: %w", err)
	}
	if err := s.local.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if err := s.local.SaveNode(ctx, root); err != nil {
		return nil, fmt.Errorf("saving root node: %w", err)
	}
	if err := s.local.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
		return nil, fmt.Errorf("flagging document: %w", err)
	}
	s.logger.Printf("created document %s (%q)", doc.ID, title)
	return doc, nil
}

// CreateNode creates a node under the given parent. A nil parentID
// attaches the node to the document's root, or makes it the root when
// the document is empty. The new node's position is derived from the
// radial layout.
func (s *Service) CreateNode(ctx context.Context, documentID uuid.UUID, parentID *uuid.UUID, text string) (*model.Node, error) {
	doc, err := s.local.FindDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}
	nodes, err := s.local.ListNodes(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}

	node := model.NewNode(documentID, text)
	doc.AddNode(node.ID)

	var parent *model.Node
	switch {
	case parentID != nil:
		parent = findNode(nodes, *parentID)
		if parent == nil {
			return nil, fmt.Errorf("parent %s: %w", *parentID, store.ErrNotFound)
		}
	case doc.RootNodeID != nil:
		parent = findNode(nodes, *doc.RootNodeID)
		if parent == nil {
			return nil, model.SyncErrorf(model.CodeDataCorrupted, "root node %s missing from document %s", *doc.RootNodeID, documentID)
		}
	default:
		// First node of an empty document becomes the root.
		doc.RootNodeID = &node.ID
	}
	if parent != nil {
		node.ParentID = &parent.ID
		parent.AddChild(node.ID)
		parent.Touch()
	}

	nodes = append(nodes, node)
	positions := validate.CalculatePositions(doc, nodes)
	node.Position = positions[node.ID]

	if err := validate.Validate(doc, nodes); err != nil {
		return nil, fmt.Errorf("validating document: %w", err)
	}

	doc.Touch()
	if err := s.local.SaveNode(ctx, node); err != nil {
		return nil, fmt.Errorf("saving node: %w", err)
	}
	if parent != nil {
		if err := s.local.SaveNode(ctx, parent); err != nil {
			return nil, fmt.Errorf("saving parent: %w", err)
		}
	}
	if err := s.local.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if err := s.local.MarkSyncNeeded(ctx, documentID, true); err != nil {
		return nil, fmt.Errorf("flagging document: %w", err)
	}
	return node, nil
}

// UpdateNode applies an edit to a node via the mutate callback, then
// revalidates and persists. The callback must not change identity or
// ownership fields.
func (s *Service) UpdateNode(ctx context.Context, nodeID uuid.UUID, mutate func(*model.Node) error) (*model.Node, error) {
	node, err := s.local.FindNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", nodeID, err)
	}
	id, docID, parentID := node.ID, node.DocumentID, node.ParentID

	if err := mutate(node); err != nil {
		return nil, err
	}
	if node.ID != id || node.DocumentID != docID {
		return nil, fmt.Errorf("node %s: identity fields are immutable", nodeID)
	}
	node.ParentID = parentID
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("validating node: %w", err)
	}

	node.Touch()
	if err := s.local.SaveNode(ctx, node); err != nil {
		return nil, fmt.Errorf("saving node: %w", err)
	}
	if err := s.local.MarkSyncNeeded(ctx, docID, true); err != nil {
		return nil, fmt.Errorf("flagging document: %w", err)
	}
	return node, nil
}

// DeleteNode removes a node and its entire subtree, children first, then
// detaches the node from its former parent. Deleting the root empties
// the document.
func (s *Service) DeleteNode(ctx context.Context, nodeID uuid.UUID) error {
	node, err := s.local.FindNode(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("loading node %s: %w", nodeID, err)
	}
	doc, err := s.local.FindDocument(ctx, node.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", node.DocumentID, err)
	}

	removed, err := s.deleteSubtree(ctx, node)
	if err != nil {
		return err
	}
	for _, id := range removed {
		doc.RemoveNode(id)
	}

	if node.ParentID != nil {
		parent, err := s.local.FindNode(ctx, *node.ParentID)
		if err == nil {
			parent.RemoveChild(node.ID)
			parent.Touch()
			if err := s.local.SaveNode(ctx, parent); err != nil {
				return fmt.Errorf("saving parent: %w", err)
			}
		} else if !errorsIsNotFound(err) {
			return fmt.Errorf("loading parent %s: %w", *node.ParentID, err)
		}
	}

	doc.Touch()
	if err := s.local.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	if err := s.local.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
		return fmt.Errorf("flagging document: %w", err)
	}
	s.logger.Printf("deleted node %s and %d descendants from document %s", nodeID, len(removed)-1, doc.ID)
	return nil
}

// deleteSubtree removes node and its descendants depth-first and returns
// every removed id.
func (s *Service) deleteSubtree(ctx context.Context, node *model.Node) ([]uuid.UUID, error) {
	var removed []uuid.UUID
	for _, childID := range node.ChildIDs {
		child, err := s.local.FindNode(ctx, childID)
		if err != nil {
			if errorsIsNotFound(err) {
				continue
			}
			return removed, fmt.Errorf("loading node %s: %w", childID, err)
		}
		sub, err := s.deleteSubtree(ctx, child)
		removed = append(removed, sub...)
		if err != nil {
			return removed, err
		}
	}
	if err := s.local.DeleteNode(ctx, node.ID); err != nil {
		return removed, fmt.Errorf("deleting node %s: %w", node.ID, err)
	}
	return append(removed, node.ID), nil
}

// DeleteDocument removes a document and all of its nodes.
func (s *Service) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	if err := s.local.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	s.logger.Printf("deleted document %s", documentID)
	return nil
}

func findNode(nodes []*model.Node, id uuid.UUID) *model.Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
