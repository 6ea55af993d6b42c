package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/record"
)

// Memory is an in-memory Store. It backs tests and the "memory" remote
// backend for local development; semantics match the hosted store:
// last-write-wins per record, store-assigned modification dates.
type Memory struct {
	mu      sync.Mutex
	records map[string]*record.Record

	// Now supplies modification dates; tests override it to control
	// last-write-wins outcomes.
	Now func() time.Time

	// SaveHook, when set, runs before every save and can inject a
	// failure for a specific record name.
	SaveHook func(name string) error
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*record.Record),
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, rec *record.Record) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.SaveHook != nil {
		if err := m.SaveHook(rec.Name); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneRecord(rec)
	stored.ModificationDate = m.Now()
	m.records[rec.Name] = stored
	return cloneRecord(stored), nil
}

// Put seeds a record keeping its modification date, defaulting a zero
// date to Now. Test and loadtest fixture helper; real saves go through
// Save.
func (m *Memory) Put(rec *record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneRecord(rec)
	if stored.ModificationDate.IsZero() {
		stored.ModificationDate = m.Now()
	}
	m.records[rec.Name] = stored
}

// Fetch implements Store.
func (m *Memory) Fetch(ctx context.Context, name string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, typ record.Type, documentID uuid.UUID) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*record.Record
	for _, rec := range m.records {
		if rec.Type != typ {
			continue
		}
		if documentID != uuid.Nil {
			docID, err := rec.DocumentID()
			if err != nil || docID != documentID {
				continue
			}
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
