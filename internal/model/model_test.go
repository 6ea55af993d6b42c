package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewDocument(t *testing.T) {
	doc := NewDocument("Trip planning")

	if doc.ID == uuid.Nil {
		t.Error("expected non-nil document id")
	}
	if doc.Title != "Trip planning" {
		t.Errorf("expected title %q, got %q", "Trip planning", doc.Title)
	}
	if doc.Version != 1 {
		t.Errorf("expected version 1, got %d", doc.Version)
	}
	if doc.RootNodeID != nil {
		t.Error("new document should have no root")
	}
	if !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Error("created and updated timestamps should match on a fresh document")
	}
}

func TestTouchBumpsVersionAndTimestamp(t *testing.T) {
	doc := NewDocument("doc")
	before := doc.UpdatedAt
	time.Sleep(time.Millisecond)

	doc.Touch()

	if doc.Version != 2 {
		t.Errorf("expected version 2 after touch, got %d", doc.Version)
	}
	if !doc.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance after touch")
	}

	node := NewNode(doc.ID, "node")
	node.Touch()
	if node.Version != 2 {
		t.Errorf("expected node version 2 after touch, got %d", node.Version)
	}
}

func TestNodeValidate(t *testing.T) {
	docID := uuid.New()

	node := NewNode(docID, "a task")
	node.IsTask = true
	node.IsCompleted = true
	if err := node.Validate(); err != nil {
		t.Errorf("completed task should be valid: %v", err)
	}

	node.IsTask = false
	if err := node.Validate(); err == nil {
		t.Error("completed non-task should be invalid")
	}

	dup := NewNode(docID, "dup children")
	child := uuid.New()
	dup.ChildIDs = []uuid.UUID{child, child}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate child ids should be invalid")
	}
}

func TestDocumentValidateRootMembership(t *testing.T) {
	doc := NewDocument("doc")
	rootID := uuid.New()
	doc.RootNodeID = &rootID

	if err := doc.Validate(); err == nil {
		t.Error("root outside node set should be invalid")
	}

	doc.AddNode(rootID)
	if err := doc.Validate(); err != nil {
		t.Errorf("root inside node set should be valid: %v", err)
	}
}

func TestRemoveNodeClearsRoot(t *testing.T) {
	doc := NewDocument("doc")
	rootID := uuid.New()
	doc.RootNodeID = &rootID
	doc.AddNode(rootID)

	doc.RemoveNode(rootID)

	if doc.RootNodeID != nil {
		t.Error("removing the root node should clear RootNodeID")
	}
	if len(doc.NodeIDs) != 0 {
		t.Errorf("expected empty node set, got %d entries", len(doc.NodeIDs))
	}
}

func TestAddChildIsIdempotent(t *testing.T) {
	node := NewNode(uuid.New(), "parent")
	child := uuid.New()

	node.AddChild(child)
	node.AddChild(child)

	if len(node.ChildIDs) != 1 {
		t.Errorf("expected 1 child after double add, got %d", len(node.ChildIDs))
	}
	if !node.HasChild(child) {
		t.Error("expected HasChild to report the added child")
	}

	node.RemoveChild(child)
	if node.HasChild(child) {
		t.Error("expected child gone after remove")
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := NewDocument("doc")
	doc.AddNode(uuid.New())
	clone := doc.Clone()

	clone.NodeIDs[0] = uuid.New()
	clone.Title = "changed"

	if doc.Title == "changed" {
		t.Error("clone shares Title with original")
	}
	if doc.NodeIDs[0] == clone.NodeIDs[0] {
		t.Error("clone shares NodeIDs backing array with original")
	}

	node := NewNode(doc.ID, "node")
	node.AddChild(uuid.New())
	nodeClone := node.Clone()
	nodeClone.ChildIDs[0] = uuid.New()
	if node.ChildIDs[0] == nodeClone.ChildIDs[0] {
		t.Error("node clone shares ChildIDs backing array with original")
	}
}

func TestDocumentEqual(t *testing.T) {
	doc := NewDocument("doc")
	a, b := uuid.New(), uuid.New()
	doc.TagIDs = []uuid.UUID{a, b}

	other := doc.Clone()
	// Tag membership is a set; order must not matter.
	other.TagIDs = []uuid.UUID{b, a}
	if !doc.Equal(other) {
		t.Error("documents differing only in tag order should be equal")
	}

	other.Title = "renamed"
	if doc.Equal(other) {
		t.Error("documents with different titles should not be equal")
	}
}

func TestDocumentEqualDuplicateTags(t *testing.T) {
	doc := NewDocument("doc")
	a, b := uuid.New(), uuid.New()
	doc.TagIDs = []uuid.UUID{a, b}

	other := doc.Clone()
	// Same length, but a duplicate replacing a distinct member.
	other.TagIDs = []uuid.UUID{a, a}
	if doc.Equal(other) {
		t.Error("documents with different tag multisets should not be equal")
	}
	if other.Equal(doc) {
		t.Error("tag multiset comparison should be symmetric")
	}
}

func TestNodeEqualChildOrderSignificant(t *testing.T) {
	node := NewNode(uuid.New(), "n")
	a, b := uuid.New(), uuid.New()
	node.ChildIDs = []uuid.UUID{a, b}

	other := node.Clone()
	other.ChildIDs = []uuid.UUID{b, a}

	if node.Equal(other) {
		t.Error("nodes with reordered children should not be equal")
	}
}

func TestSyncErrorMatching(t *testing.T) {
	wrapped := NewSyncError(CodeNetworkUnavailable, "dial tcp: timeout", nil)

	if !errors.Is(wrapped, ErrNetworkUnavailable) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(wrapped, ErrPermissionDenied) {
		t.Error("expected mismatched codes not to match")
	}
	if got := CodeOf(wrapped); got != CodeNetworkUnavailable {
		t.Errorf("expected code %s, got %s", CodeNetworkUnavailable, got)
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Error("expected plain errors to map to unknown")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeNetworkUnavailable, true},
		{CodeQuotaExceeded, true},
		{CodePermissionDenied, false},
		{CodeDataCorrupted, false},
	}
	for _, tc := range cases {
		err := NewSyncError(tc.code, "x", nil)
		if got := Retryable(err); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
