// Package migrate moves whole mind-map corpora between devices as JSONL
// backups: one JSON object per line, documents first, then their nodes.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/validate"
)

// DocumentLine is the JSONL representation of a document.
type DocumentLine struct {
	Kind       string      `json:"kind"` // always "document"
	ID         uuid.UUID   `json:"id"`
	Title      string      `json:"title"`
	RootNodeID *uuid.UUID  `json:"rootNodeID,omitempty"`
	NodeIDs    []uuid.UUID `json:"nodeIDs,omitempty"`
	TagIDs     []uuid.UUID `json:"tagIDs,omitempty"`
	MediaIDs   []uuid.UUID `json:"mediaIDs,omitempty"`
	IsShared   bool        `json:"isShared"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Version    int64       `json:"version"`
}

// NodeLine is the JSONL representation of a node.
type NodeLine struct {
	Kind        string      `json:"kind"` // always "node"
	ID          uuid.UUID   `json:"id"`
	DocumentID  uuid.UUID   `json:"documentID"`
	Text        string      `json:"text"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	ParentID    *uuid.UUID  `json:"parentID,omitempty"`
	ChildIDs    []uuid.UUID `json:"childIDs,omitempty"`
	IsTask      bool        `json:"isTask"`
	IsCompleted bool        `json:"isCompleted"`
	MediaIDs    []uuid.UUID `json:"mediaIDs,omitempty"`
	TagIDs      []uuid.UUID `json:"tagIDs,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Version     int64       `json:"version"`
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Documents int
	Nodes     int
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	// DryRun parses and validates without writing to the store.
	DryRun bool

	// MarkSyncNeeded flags every imported document for the next sync
	// run. Enable when importing onto a device with a remote configured.
	MarkSyncNeeded bool
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Documents int
	Nodes     int
	Errors    []string
}

// Export writes every document and node in the store as JSONL.
func Export(ctx context.Context, local store.LocalStore, w io.Writer) (*ExportResult, error) {
	docs, err := local.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	res := &ExportResult{}
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(documentLine(doc)); err != nil {
			return res, fmt.Errorf("writing document %s: %w", doc.ID, err)
		}
		res.Documents++

		nodes, err := local.ListNodes(ctx, doc.ID)
		if err != nil {
			return res, fmt.Errorf("listing nodes for %s: %w", doc.ID, err)
		}
		for _, n := range nodes {
			if err := enc.Encode(nodeLine(n)); err != nil {
				return res, fmt.Errorf("writing node %s: %w", n.ID, err)
			}
			res.Nodes++
		}
	}
	return res, nil
}

// ExportFile exports to a file path, creating or truncating it.
func ExportFile(ctx context.Context, local store.LocalStore, path string) (*ExportResult, error) {
	f, err := os.Create(path) // #nosec G304 - controlled path from CLI
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	res, err := Export(ctx, local, f)
	if err != nil {
		return res, err
	}
	if err := f.Sync(); err != nil {
		return res, fmt.Errorf("flushing export file: %w", err)
	}
	return res, nil
}

// Import reads a JSONL backup into the store. Documents are validated
// against their nodes after all lines are read; an invalid document is
// reported and skipped without aborting the rest of the import.
func Import(ctx context.Context, local store.LocalStore, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	docs, nodesByDoc, res, err := parse(r)
	if err != nil {
		return res, err
	}

	for _, doc := range docs {
		nodes := nodesByDoc[doc.ID]
		if err := validate.Validate(doc, nodes); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("document %s: %v", doc.ID, err))
			continue
		}
		if opts.DryRun {
			res.Documents++
			res.Nodes += len(nodes)
			continue
		}
		if err := local.SaveDocument(ctx, doc); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("document %s: %v", doc.ID, err))
			continue
		}
		saved := 0
		for _, n := range nodes {
			if err := local.SaveNode(ctx, n); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("node %s: %v", n.ID, err))
				continue
			}
			saved++
		}
		if opts.MarkSyncNeeded {
			if err := local.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("document %s: %v", doc.ID, err))
			}
		}
		res.Documents++
		res.Nodes += saved
	}
	return res, nil
}

// ImportFile imports from a file path.
func ImportFile(ctx context.Context, local store.LocalStore, path string, opts ImportOptions) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - controlled path from CLI
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()
	return Import(ctx, local, f, opts)
}

// parse reads all lines, splitting them into documents and their nodes.
func parse(r io.Reader) ([]*model.Document, map[uuid.UUID][]*model.Node, *ImportResult, error) {
	res := &ImportResult{}
	var docs []*model.Document
	nodesByDoc := make(map[uuid.UUID][]*model.Node)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, nil, res, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch probe.Kind {
		case "document":
			var dl DocumentLine
			if err := json.Unmarshal(line, &dl); err != nil {
				return nil, nil, res, fmt.Errorf("invalid document at line %d: %w", lineNum, err)
			}
			docs = append(docs, dl.toDocument())
		case "node":
			var nl NodeLine
			if err := json.Unmarshal(line, &nl); err != nil {
				return nil, nil, res, fmt.Errorf("invalid node at line %d: %w", lineNum, err)
			}
			n := nl.toNode()
			nodesByDoc[n.DocumentID] = append(nodesByDoc[n.DocumentID], n)
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: unknown kind %q", lineNum, probe.Kind))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, res, fmt.Errorf("reading backup: %w", err)
	}
	return docs, nodesByDoc, res, nil
}

func documentLine(d *model.Document) *DocumentLine {
	return &DocumentLine{
		Kind:       "document",
		ID:         d.ID,
		Title:      d.Title,
		RootNodeID: d.RootNodeID,
		NodeIDs:    d.NodeIDs,
		TagIDs:     d.TagIDs,
		MediaIDs:   d.MediaIDs,
		IsShared:   d.IsShared,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		Version:    d.Version,
	}
}

func (dl *DocumentLine) toDocument() *model.Document {
	return &model.Document{
		ID:         dl.ID,
		Title:      dl.Title,
		RootNodeID: dl.RootNodeID,
		NodeIDs:    dl.NodeIDs,
		TagIDs:     dl.TagIDs,
		MediaIDs:   dl.MediaIDs,
		IsShared:   dl.IsShared,
		CreatedAt:  dl.CreatedAt,
		UpdatedAt:  dl.UpdatedAt,
		Version:    dl.Version,
	}
}

func nodeLine(n *model.Node) *NodeLine {
	return &NodeLine{
		Kind:        "node",
		ID:          n.ID,
		DocumentID:  n.DocumentID,
		Text:        n.Text,
		X:           n.Position.X,
		Y:           n.Position.Y,
		ParentID:    n.ParentID,
		ChildIDs:    n.ChildIDs,
		IsTask:      n.IsTask,
		IsCompleted: n.IsCompleted,
		MediaIDs:    n.MediaIDs,
		TagIDs:      n.TagIDs,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		Version:     n.Version,
	}
}

func (nl *NodeLine) toNode() *model.Node {
	return &model.Node{
		ID:          nl.ID,
		DocumentID:  nl.DocumentID,
		Text:        nl.Text,
		Position:    model.Point{X: nl.X, Y: nl.Y},
		ParentID:    nl.ParentID,
		ChildIDs:    nl.ChildIDs,
		IsTask:      nl.IsTask,
		IsCompleted: nl.IsCompleted,
		MediaIDs:    nl.MediaIDs,
		TagIDs:      nl.TagIDs,
		CreatedAt:   nl.CreatedAt,
		UpdatedAt:   nl.UpdatedAt,
		Version:     nl.Version,
	}
}
