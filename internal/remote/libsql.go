package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/record"
)

// LibSQL is a Store backed by a hosted libSQL (Turso) database. Records
// live in a single table keyed by record name; last-write-wins semantics
// fall out of the upsert stamping modification_date on every save.
type LibSQL struct {
	conn *sql.DB
}

var _ Store = (*LibSQL)(nil)

// OpenLibSQL connects to a hosted libSQL database.
//
// Example:
//
//	rs, err := remote.OpenLibSQL("libsql://mindmaps-acme.turso.io", token)
//	if err != nil {
//	    return err
//	}
//	defer rs.Close()
func OpenLibSQL(url, authToken string) (*LibSQL, error) {
	dsn := url
	if authToken != "" {
		dsn = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, classify("ping remote database", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &LibSQL{conn: conn}, nil
}

// Close closes the remote connection.
func (s *LibSQL) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close remote database: %w", err)
	}
	return nil
}

// InitSchema creates the records table if it doesn't exist. Idempotent.
func (s *LibSQL) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		name TEXT PRIMARY KEY,
		record_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		fields TEXT NOT NULL,             -- JSON field map
		modification_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_type ON records(record_type);
	CREATE INDEX IF NOT EXISTS idx_records_document ON records(record_type, document_id);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return classify("initialize remote schema", err)
	}
	return nil
}

// Save implements Store.
func (s *LibSQL) Save(ctx context.Context, rec *record.Record) (*record.Record, error) {
	docID, err := rec.DocumentID()
	if err != nil {
		return nil, err
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, model.NewSyncError(model.CodeDataCorrupted,
			fmt.Sprintf("record %s: fields not encodable", rec.Name), err)
	}

	modDate := time.Now().UTC()
	query := `
	INSERT INTO records (name, record_type, document_id, fields, modification_date)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		record_type = excluded.record_type,
		document_id = excluded.document_id,
		fields = excluded.fields,
		modification_date = excluded.modification_date
	`
	_, err = s.conn.ExecContext(ctx, query,
		rec.Name, string(rec.Type), docID.String(), string(fields),
		modDate.Format(time.RFC3339Nano))
	if err != nil {
		return nil, classify(fmt.Sprintf("save record %s", rec.Name), err)
	}

	stored := cloneRecord(rec)
	stored.ModificationDate = modDate
	return stored, nil
}

// Fetch implements Store.
func (s *LibSQL) Fetch(ctx context.Context, name string) (*record.Record, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT name, record_type, fields, modification_date
	FROM records WHERE name = ?
	`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("fetch record %s", name), err)
	}
	return rec, nil
}

// Query implements Store.
func (s *LibSQL) Query(ctx context.Context, typ record.Type, documentID uuid.UUID) ([]*record.Record, error) {
	query := `SELECT name, record_type, fields, modification_date FROM records WHERE record_type = ?`
	args := []any{string(typ)}
	if documentID != uuid.Nil {
		query += ` AND document_id = ?`
		args = append(args, documentID.String())
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query records", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate records", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *LibSQL) Delete(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name); err != nil {
		return classify(fmt.Sprintf("delete record %s", name), err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*record.Record, error) {
	var (
		rec     record.Record
		typ     string
		fields  string
		modDate string
	)
	if err := s.Scan(&rec.Name, &typ, &fields, &modDate); err != nil {
		return nil, err
	}
	rec.Type = record.Type(typ)

	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, model.NewSyncError(model.CodeDataCorrupted,
			fmt.Sprintf("record %s: fields not decodable", rec.Name), err)
	}
	t, err := time.Parse(time.RFC3339Nano, modDate)
	if err != nil {
		return nil, model.NewSyncError(model.CodeDataCorrupted,
			fmt.Sprintf("record %s: bad modification date", rec.Name), err)
	}
	rec.ModificationDate = t
	return &rec, nil
}

// classify maps transport failures onto the sync error taxonomy so the
// controller can tell retryable outages from real faults.
func classify(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return model.NewSyncError(model.CodeNetworkUnavailable, "failed to "+op, err)
	}
	var se *model.SyncError
	if errors.As(err, &se) {
		return err
	}
	return model.NewSyncError(model.CodeUnknown, "failed to "+op, err)
}
