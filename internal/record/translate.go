package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
)

// FromDocument projects a document into its wire record.
func FromDocument(d *model.Document) *Record {
	fields := map[string]any{
		FieldTitle:     d.Title,
		FieldNodeIDs:   idStrings(d.NodeIDs),
		FieldTagIDs:    idStrings(d.TagIDs),
		FieldMediaIDs:  idStrings(d.MediaIDs),
		FieldIsShared:  d.IsShared,
		FieldCreatedAt: d.CreatedAt,
		FieldUpdatedAt: d.UpdatedAt,
		FieldVersion:   d.Version,
	}
	if d.RootNodeID != nil {
		fields[FieldRootNodeID] = d.RootNodeID.String()
	}
	return &Record{
		Name:   d.ID.String(),
		Type:   TypeMindMap,
		Fields: fields,
	}
}

// FromNode projects a node into its wire record.
func FromNode(n *model.Node) *Record {
	fields := map[string]any{
		FieldText:        n.Text,
		FieldPosition:    encodePoint(n.Position),
		FieldMindMapID:   n.DocumentID.String(),
		FieldMediaIDs:    idStrings(n.MediaIDs),
		FieldTagIDs:      idStrings(n.TagIDs),
		FieldIsTask:      n.IsTask,
		FieldIsCompleted: n.IsCompleted,
		FieldCreatedAt:   n.CreatedAt,
		FieldUpdatedAt:   n.UpdatedAt,
		FieldVersion:     n.Version,
	}
	if n.ParentID != nil {
		fields[FieldParentID] = n.ParentID.String()
	}
	return &Record{
		Name:   n.ID.String(),
		Type:   TypeNode,
		Fields: fields,
	}
}

// ToDocument decodes a MindMap record. Decoding is strict: a missing or
// unparsable required field yields a dataCorrupted error that aborts this
// record only, never the whole sync pass.
func (r *Record) ToDocument() (*model.Document, error) {
	if r.Type != TypeMindMap {
		return nil, model.SyncErrorf(model.CodeDataCorrupted, "record %s: expected %s, got %s", r.Name, TypeMindMap, r.Type)
	}
	id, err := r.EntityID()
	if err != nil {
		return nil, err
	}

	d := &model.Document{ID: id}
	if d.Title, err = r.stringField(FieldTitle); err != nil {
		return nil, err
	}
	if d.RootNodeID, err = r.optionalIDField(FieldRootNodeID); err != nil {
		return nil, err
	}
	if d.NodeIDs, err = r.idListField(FieldNodeIDs); err != nil {
		return nil, err
	}
	if d.TagIDs, err = r.idListField(FieldTagIDs); err != nil {
		return nil, err
	}
	if d.MediaIDs, err = r.idListField(FieldMediaIDs); err != nil {
		return nil, err
	}
	if d.IsShared, err = r.boolField(FieldIsShared); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = r.timeField(FieldCreatedAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = r.timeField(FieldUpdatedAt); err != nil {
		return nil, err
	}
	if d.Version, err = r.intField(FieldVersion); err != nil {
		return nil, err
	}
	return d, nil
}

// ToNode decodes a Node record with the same strictness as ToDocument.
// ChildIDs are not on the wire; the reconciler rebuilds them from parent
// links after applying downloads.
func (r *Record) ToNode() (*model.Node, error) {
	if r.Type != TypeNode {
		return nil, model.SyncErrorf(model.CodeDataCorrupted, "record %s: expected %s, got %s", r.Name, TypeNode, r.Type)
	}
	id, err := r.EntityID()
	if err != nil {
		return nil, err
	}

	n := &model.Node{ID: id}
	if n.Text, err = r.stringField(FieldText); err != nil {
		return nil, err
	}
	if n.Position, err = r.pointField(FieldPosition); err != nil {
		return nil, err
	}
	if n.ParentID, err = r.optionalIDField(FieldParentID); err != nil {
		return nil, err
	}
	if n.DocumentID, err = r.idField(FieldMindMapID); err != nil {
		return nil, err
	}
	if n.MediaIDs, err = r.idListField(FieldMediaIDs); err != nil {
		return nil, err
	}
	if n.TagIDs, err = r.idListField(FieldTagIDs); err != nil {
		return nil, err
	}
	if n.IsTask, err = r.boolField(FieldIsTask); err != nil {
		return nil, err
	}
	if n.IsCompleted, err = r.boolField(FieldIsCompleted); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = r.timeField(FieldCreatedAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = r.timeField(FieldUpdatedAt); err != nil {
		return nil, err
	}
	if n.Version, err = r.intField(FieldVersion); err != nil {
		return nil, err
	}
	return n, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func encodePoint(p model.Point) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

func corrupted(name, field, reason string) error {
	return model.SyncErrorf(model.CodeDataCorrupted, "record %s: field %s %s", name, field, reason)
}

// Field accessors below tolerate the type erasure of a JSON round trip
// (records travel through encoding/json in both the libsql backend and
// the export format): times may arrive as RFC 3339 strings, integers as
// float64, string lists as []any. Anything else is corruption.

func (r *Record) stringField(field string) (string, error) {
	v, ok := r.Fields[field]
	if !ok {
		return "", corrupted(r.Name, field, "is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", corrupted(r.Name, field, fmt.Sprintf("has type %T, want string", v))
	}
	return s, nil
}

func (r *Record) boolField(field string) (bool, error) {
	v, ok := r.Fields[field]
	if !ok {
		return false, corrupted(r.Name, field, "is missing")
	}
	b, ok := v.(bool)
	if !ok {
		return false, corrupted(r.Name, field, fmt.Sprintf("has type %T, want bool", v))
	}
	return b, nil
}

func (r *Record) intField(field string) (int64, error) {
	v, ok := r.Fields[field]
	if !ok {
		return 0, corrupted(r.Name, field, "is missing")
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, corrupted(r.Name, field, fmt.Sprintf("has type %T, want integer", v))
}

func (r *Record) timeField(field string) (time.Time, error) {
	v, ok := r.Fields[field]
	if !ok {
		return time.Time{}, corrupted(r.Name, field, "is missing")
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, corrupted(r.Name, field, fmt.Sprintf("is not a timestamp: %v", err))
		}
		return parsed, nil
	}
	return time.Time{}, corrupted(r.Name, field, fmt.Sprintf("has type %T, want timestamp", v))
}

func (r *Record) idField(field string) (uuid.UUID, error) {
	s, err := r.stringField(field)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, corrupted(r.Name, field, fmt.Sprintf("is not a uuid: %v", err))
	}
	return id, nil
}

// optionalIDField returns nil when the field is absent; presence with a
// malformed value is still corruption.
func (r *Record) optionalIDField(field string) (*uuid.UUID, error) {
	if _, ok := r.Fields[field]; !ok {
		return nil, nil
	}
	id, err := r.idField(field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// idListField returns an empty list for an absent field: encoders always
// write list fields, but legacy records omit empty sets.
func (r *Record) idListField(field string) ([]uuid.UUID, error) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return nil, nil
	}

	var raw []string
	switch list := v.(type) {
	case []string:
		raw = list
	case []any:
		raw = make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, corrupted(r.Name, field, fmt.Sprintf("element %d has type %T, want string", i, item))
			}
			raw[i] = s
		}
	default:
		return nil, corrupted(r.Name, field, fmt.Sprintf("has type %T, want string list", v))
	}

	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, corrupted(r.Name, field, fmt.Sprintf("element %d is not a uuid: %v", i, err))
		}
		out[i] = id
	}
	return out, nil
}

func (r *Record) pointField(field string) (model.Point, error) {
	s, err := r.stringField(field)
	if err != nil {
		return model.Point{}, err
	}
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return model.Point{}, corrupted(r.Name, field, fmt.Sprintf("is not an x,y pair: %q", s))
	}
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return model.Point{}, corrupted(r.Name, field, fmt.Sprintf("has unparsable x: %v", err))
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return model.Point{}, corrupted(r.Name, field, fmt.Sprintf("has unparsable y: %v", err))
	}
	return model.Point{X: x, Y: y}, nil
}
