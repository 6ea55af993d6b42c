package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mindwell/mapsync/internal/model"
)

// DB is the SQLite-backed LocalStore. The database runs embedded with WAL
// mode so the daemon and CLI can read while the app writes.
type DB struct {
	conn *sql.DB
	path string
}

var _ LocalStore = (*DB)(nil)

// Open creates or opens the local database at the given path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open(".mapsync/local.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string { return db.path }

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the documents and nodes tables if they don't exist.
// Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		root_node_id TEXT,
		node_ids TEXT NOT NULL,   -- JSON array of uuids
		tag_ids TEXT NOT NULL,    -- JSON array
		media_ids TEXT NOT NULL,  -- JSON array
		is_shared INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		sync_needed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		pos_x REAL NOT NULL DEFAULT 0,
		pos_y REAL NOT NULL DEFAULT 0,
		parent_id TEXT,
		child_ids TEXT NOT NULL,  -- JSON array of uuids, ordered
		is_task INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		media_ids TEXT NOT NULL,
		tag_ids TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_document ON nodes(document_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_documents_sync ON documents(sync_needed);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveDocument implements LocalStore. The sync_needed flag is managed by
// MarkSyncNeeded and is not touched on update.
func (db *DB) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	nodeIDs, err := idsToJSON(doc.NodeIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal node ids: %w", err)
	}
	tagIDs, err := idsToJSON(doc.TagIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal tag ids: %w", err)
	}
	mediaIDs, err := idsToJSON(doc.MediaIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal media ids: %w", err)
	}

	query := `
	INSERT INTO documents (
		id, title, root_node_id, node_ids, tag_ids, media_ids,
		is_shared, created_at, updated_at, version, sync_needed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		root_node_id = excluded.root_node_id,
		node_ids = excluded.node_ids,
		tag_ids = excluded.tag_ids,
		media_ids = excluded.media_ids,
		is_shared = excluded.is_shared,
		updated_at = excluded.updated_at,
		version = excluded.version
	`

	_, err = db.conn.ExecContext(ctx, query,
		doc.ID.String(),
		doc.Title,
		uuidPtrToNullString(doc.RootNodeID),
		nodeIDs,
		tagIDs,
		mediaIDs,
		boolToInt(doc.IsShared),
		doc.CreatedAt.Format(time.RFC3339Nano),
		doc.UpdatedAt.Format(time.RFC3339Nano),
		doc.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// FindDocument implements LocalStore.
func (db *DB) FindDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, title, root_node_id, node_ids, tag_ids, media_ids,
	       is_shared, created_at, updated_at, version
	FROM documents WHERE id = ?
	`, id.String())

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// ListDocuments implements LocalStore.
func (db *DB) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, title, root_node_id, node_ids, tag_ids, media_ids,
	       is_shared, created_at, updated_at, version
	FROM documents ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument implements LocalStore. Nodes cascade via foreign key.
func (db *DB) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// SaveNode implements LocalStore.
func (db *DB) SaveNode(ctx context.Context, node *model.Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	childIDs, err := idsToJSON(node.ChildIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal child ids: %w", err)
	}
	mediaIDs, err := idsToJSON(node.MediaIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal media ids: %w", err)
	}
	tagIDs, err := idsToJSON(node.TagIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal tag ids: %w", err)
	}

	query := `
	INSERT INTO nodes (
		id, document_id, text, pos_x, pos_y, parent_id, child_ids,
		is_task, is_completed, media_ids, tag_ids,
		created_at, updated_at, version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		pos_x = excluded.pos_x,
		pos_y = excluded.pos_y,
		parent_id = excluded.parent_id,
		child_ids = excluded.child_ids,
		is_task = excluded.is_task,
		is_completed = excluded.is_completed,
		media_ids = excluded.media_ids,
		tag_ids = excluded.tag_ids,
		updated_at = excluded.updated_at,
		version = excluded.version
	`

	_, err = db.conn.ExecContext(ctx, query,
		node.ID.String(),
		node.DocumentID.String(),
		node.Text,
		node.Position.X,
		node.Position.Y,
		uuidPtrToNullString(node.ParentID),
		childIDs,
		boolToInt(node.IsTask),
		boolToInt(node.IsCompleted),
		mediaIDs,
		tagIDs,
		node.CreatedAt.Format(time.RFC3339Nano),
		node.UpdatedAt.Format(time.RFC3339Nano),
		node.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}
	return nil
}

// FindNode implements LocalStore.
func (db *DB) FindNode(ctx context.Context, id uuid.UUID) (*model.Node, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, document_id, text, pos_x, pos_y, parent_id, child_ids,
	       is_task, is_completed, media_ids, tag_ids,
	       created_at, updated_at, version
	FROM nodes WHERE id = ?
	`, id.String())

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return node, err
}

// ListNodes implements LocalStore.
func (db *DB) ListNodes(ctx context.Context, documentID uuid.UUID) ([]*model.Node, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, document_id, text, pos_x, pos_y, parent_id, child_ids,
	       is_task, is_completed, media_ids, tag_ids,
	       created_at, updated_at, version
	FROM nodes WHERE document_id = ? ORDER BY created_at ASC
	`, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

// DeleteNode implements LocalStore.
func (db *DB) DeleteNode(ctx context.Context, id uuid.UUID) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	return nil
}

// MarkSyncNeeded implements LocalStore.
func (db *DB) MarkSyncNeeded(ctx context.Context, documentID uuid.UUID, needed bool) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE documents SET sync_needed = ? WHERE id = ?`,
		boolToInt(needed), documentID.String())
	if err != nil {
		return fmt.Errorf("failed to mark document %s: %w", documentID, err)
	}
	return nil
}

// ListSyncNeeded implements LocalStore.
func (db *DB) ListSyncNeeded(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM documents WHERE sync_needed = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync-needed documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("malformed document id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document ids: %w", err)
	}
	return ids, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		doc                       model.Document
		id                        string
		rootNodeID                sql.NullString
		nodeIDs, tagIDs, mediaIDs string
		isShared                  int
		createdAt, updatedAt      string
	)

	err := s.Scan(&id, &doc.Title, &rootNodeID, &nodeIDs, &tagIDs, &mediaIDs,
		&isShared, &createdAt, &updatedAt, &doc.Version)
	if err != nil {
		return nil, err
	}

	if doc.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed document id %q: %w", id, err)
	}
	if doc.RootNodeID, err = nullStringToUUIDPtr(rootNodeID); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if doc.NodeIDs, err = idsFromJSON(nodeIDs); err != nil {
		return nil, fmt.Errorf("document %s node_ids: %w", id, err)
	}
	if doc.TagIDs, err = idsFromJSON(tagIDs); err != nil {
		return nil, fmt.Errorf("document %s tag_ids: %w", id, err)
	}
	if doc.MediaIDs, err = idsFromJSON(mediaIDs); err != nil {
		return nil, fmt.Errorf("document %s media_ids: %w", id, err)
	}
	doc.IsShared = isShared != 0
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("document %s created_at: %w", id, err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("document %s updated_at: %w", id, err)
	}
	return &doc, nil
}

func scanNode(s scanner) (*model.Node, error) {
	var (
		node                       model.Node
		id, documentID             string
		parentID                   sql.NullString
		childIDs, mediaIDs, tagIDs string
		isTask, isCompleted        int
		createdAt, updatedAt       string
	)

	err := s.Scan(&id, &documentID, &node.Text, &node.Position.X, &node.Position.Y,
		&parentID, &childIDs, &isTask, &isCompleted, &mediaIDs, &tagIDs,
		&createdAt, &updatedAt, &node.Version)
	if err != nil {
		return nil, err
	}

	if node.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed node id %q: %w", id, err)
	}
	if node.DocumentID, err = uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("node %s document_id: %w", id, err)
	}
	if node.ParentID, err = nullStringToUUIDPtr(parentID); err != nil {
		return nil, fmt.Errorf("node %s parent_id: %w", id, err)
	}
	if node.ChildIDs, err = idsFromJSON(childIDs); err != nil {
		return nil, fmt.Errorf("node %s child_ids: %w", id, err)
	}
	node.IsTask = isTask != 0
	node.IsCompleted = isCompleted != 0
	if node.MediaIDs, err = idsFromJSON(mediaIDs); err != nil {
		return nil, fmt.Errorf("node %s media_ids: %w", id, err)
	}
	if node.TagIDs, err = idsFromJSON(tagIDs); err != nil {
		return nil, fmt.Errorf("node %s tag_ids: %w", id, err)
	}
	if node.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("node %s created_at: %w", id, err)
	}
	if node.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("node %s updated_at: %w", id, err)
	}
	return &node, nil
}

func idsToJSON(ids []uuid.UUID) (string, error) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	data, err := json.Marshal(strs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func idsFromJSON(data string) ([]uuid.UUID, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(data), &strs); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(strs))
	for i, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("malformed id %q: %w", s, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func uuidPtrToNullString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullStringToUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("malformed id %q: %w", ns.String, err)
	}
	return &id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
