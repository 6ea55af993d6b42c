package service

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/store"
)

func setupService(t *testing.T) (*store.DB, *Service) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db, New(db, log.New(os.Stderr, "[test] ", 0))
}

func assertFlagged(t *testing.T, db *store.DB, docID uuid.UUID) {
	t.Helper()
	flagged, err := db.ListSyncNeeded(context.Background())
	if err != nil {
		t.Fatalf("ListSyncNeeded failed: %v", err)
	}
	for _, id := range flagged {
		if id == docID {
			return
		}
	}
	t.Errorf("document %s should be flagged for sync", docID)
}

func TestCreateDocument(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Weekly review")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if doc.RootNodeID == nil {
		t.Fatal("new document should have a root node")
	}

	root, err := db.FindNode(ctx, *doc.RootNodeID)
	if err != nil {
		t.Fatalf("root node missing: %v", err)
	}
	if root.Text != "Weekly review" {
		t.Errorf("root text %q, want the document title", root.Text)
	}
	if root.ParentID != nil {
		t.Error("root node must not have a parent")
	}
	assertFlagged(t, db, doc.ID)
}

func TestCreateNodeDefaultsToRoot(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Ideas")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	node, err := svc.CreateNode(ctx, doc.ID, nil, "first idea")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if node.ParentID == nil || *node.ParentID != *doc.RootNodeID {
		t.Error("node without an explicit parent should attach to the root")
	}
	if node.Position.X == 0 && node.Position.Y == 0 {
		t.Error("new node should get a layout position")
	}

	root, err := db.FindNode(ctx, *doc.RootNodeID)
	if err != nil {
		t.Fatalf("FindNode failed: %v", err)
	}
	if !root.HasChild(node.ID) {
		t.Error("root's child list should include the new node")
	}
}

func TestCreateNodeUnderParent(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Ideas")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	parent, err := svc.CreateNode(ctx, doc.ID, nil, "theme")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	child, err := svc.CreateNode(ctx, doc.ID, &parent.ID, "detail")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Error("child not attached to the requested parent")
	}

	got, err := db.FindDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("FindDocument failed: %v", err)
	}
	if len(got.NodeIDs) != 3 {
		t.Errorf("document tracks %d nodes, want 3", len(got.NodeIDs))
	}
}

func TestCreateNodeMissingParent(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Ideas")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	bogus := uuid.New()
	if _, err := svc.CreateNode(ctx, doc.ID, &bogus, "orphan"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing parent, got %v", err)
	}
}

func TestUpdateNode(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Chores")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	node, err := svc.CreateNode(ctx, doc.ID, nil, "mow the lawn")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	before := node.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	updated, err := svc.UpdateNode(ctx, node.ID, func(n *model.Node) error {
		n.IsTask = true
		n.IsCompleted = true
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if !updated.IsTask || !updated.IsCompleted {
		t.Error("mutation not applied")
	}
	if !updated.UpdatedAt.After(before) {
		t.Error("update should bump the modification time")
	}

	got, err := db.FindNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("FindNode failed: %v", err)
	}
	if !got.IsTask {
		t.Error("mutation not persisted")
	}
}

func TestUpdateNodeGuardsIdentity(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Chores")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	node, err := svc.CreateNode(ctx, doc.ID, nil, "laundry")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	_, err = svc.UpdateNode(ctx, node.ID, func(n *model.Node) error {
		n.ID = uuid.New()
		return nil
	})
	if err == nil {
		t.Error("changing the node id should be rejected")
	}

	_, err = svc.UpdateNode(ctx, node.ID, func(n *model.Node) error {
		n.DocumentID = uuid.New()
		return nil
	})
	if err == nil {
		t.Error("changing the owning document should be rejected")
	}
}

func TestUpdateNodeRejectsInvalidState(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Chores")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	node, err := svc.CreateNode(ctx, doc.ID, nil, "dishes")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	// Completed without being a task is inconsistent.
	_, err = svc.UpdateNode(ctx, node.ID, func(n *model.Node) error {
		n.IsCompleted = true
		return nil
	})
	if err == nil {
		t.Error("completed non-task should fail validation")
	}
}

func TestDeleteNodeRemovesSubtree(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Project")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	branch, err := svc.CreateNode(ctx, doc.ID, nil, "phase 1")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	leaf1, err := svc.CreateNode(ctx, doc.ID, &branch.ID, "task a")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	leaf2, err := svc.CreateNode(ctx, doc.ID, &branch.ID, "task b")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	keep, err := svc.CreateNode(ctx, doc.ID, nil, "phase 2")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := svc.DeleteNode(ctx, branch.ID); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}

	for _, id := range []uuid.UUID{branch.ID, leaf1.ID, leaf2.ID} {
		if _, err := db.FindNode(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("node %s should be gone, got %v", id, err)
		}
	}
	if _, err := db.FindNode(ctx, keep.ID); err != nil {
		t.Errorf("sibling subtree should survive: %v", err)
	}

	got, err := db.FindDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("FindDocument failed: %v", err)
	}
	if len(got.NodeIDs) != 2 {
		t.Errorf("document tracks %d nodes after deletion, want 2", len(got.NodeIDs))
	}

	root, err := db.FindNode(ctx, *doc.RootNodeID)
	if err != nil {
		t.Fatalf("FindNode failed: %v", err)
	}
	if root.HasChild(branch.ID) {
		t.Error("parent should no longer list the deleted node")
	}
}

func TestDeleteRootEmptiesDocument(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Scratch")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if _, err := svc.CreateNode(ctx, doc.ID, nil, "child"); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := svc.DeleteNode(ctx, *doc.RootNodeID); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}

	got, err := db.FindDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("FindDocument failed: %v", err)
	}
	if got.RootNodeID != nil {
		t.Error("deleting the root should clear the document's root reference")
	}
	if len(got.NodeIDs) != 0 {
		t.Errorf("document still tracks %d nodes", len(got.NodeIDs))
	}

	nodes, err := db.ListNodes(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("%d nodes left in the store", len(nodes))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, "Ephemeral")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if _, err := svc.CreateNode(ctx, doc.ID, nil, "child"); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := db.FindDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("document should be gone, got %v", err)
	}
	nodes, err := db.ListNodes(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("%d orphaned nodes left behind", len(nodes))
	}
}
