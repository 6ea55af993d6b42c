package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/record"
	"github.com/mindwell/mapsync/internal/remote"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/validate"
)

// applyConcurrency bounds parallel record transfers within one pass.
const applyConcurrency = 4

// EntityError records a failure scoped to a single entity. One bad record
// never aborts the rest of the pass.
type EntityError struct {
	Name string
	Err  error
}

func (e EntityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e EntityError) Unwrap() error { return e.Err }

// Result summarizes one per-document sync pass.
type Result struct {
	DocumentID uuid.UUID
	Uploads    int
	Downloads  int
	Skipped    int

	// Nodes counts how many of the transfers above were node entities.
	Nodes     int
	Conflicts []model.ConflictResolution
	Errors    []EntityError

	// RolledBack is set when the merged state failed structural
	// validation and the pre-pass snapshot was restored.
	RolledBack bool
	Reason     string
}

// Failed reports whether the pass left the document in need of another
// attempt, either because entities errored or the merge was rolled back.
func (r *Result) Failed() bool {
	return r.RolledBack || len(r.Errors) > 0
}

// Reconciler runs sync passes for individual documents. It is safe for
// concurrent use as long as no two passes target the same document.
type Reconciler struct {
	local  store.LocalStore
	remote remote.Store
	logger *log.Logger
}

// New creates a Reconciler. A nil logger defaults to stderr.
func New(local store.LocalStore, rem remote.Store, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Reconciler{local: local, remote: rem, logger: logger}
}

// SyncDocument runs one full pass for the given document: snapshot local
// state, fetch the remote records, diff by modification time, apply the
// transfers, rebuild structural links, and validate. On a validation
// failure the snapshot is restored and the result reports the rollback.
//
// Returned errors are pass-level (the document could not be loaded or the
// remote store was unreachable); per-entity failures are collected in
// Result.Errors instead.
func (r *Reconciler) SyncDocument(ctx context.Context, docID uuid.UUID) (*Result, error) {
	res := &Result{DocumentID: docID}

	snapDoc, snapNodes, err := r.snapshot(ctx, docID)
	if err != nil {
		return nil, err
	}

	docRec, nodeRecs, err := r.fetch(ctx, docID)
	if err != nil {
		return nil, err
	}
	if snapDoc == nil && docRec == nil {
		return nil, fmt.Errorf("document %s: %w", docID, store.ErrNotFound)
	}

	decisions := r.plan(res, snapDoc, snapNodes, docRec, nodeRecs)
	r.apply(ctx, res, decisions)

	if res.Downloads > 0 {
		if err := r.rebuildLinks(ctx, docID); err != nil {
			res.Errors = append(res.Errors, EntityError{Name: docID.String(), Err: err})
		}
	}

	if verr := r.verify(ctx, docID); verr != nil {
		r.logger.Printf("document %s failed validation, rolling back: %v", docID, verr)
		if rerr := r.rollback(ctx, docID, snapDoc, snapNodes); rerr != nil {
			return res, fmt.Errorf("rolling back document %s: %w", docID, rerr)
		}
		res.RolledBack = true
		res.Reason = verr.Error()
		return res, nil
	}

	// Per-entity failures leave the flag set so the next pass retries.
	if len(res.Errors) == 0 {
		if err := r.local.MarkSyncNeeded(ctx, docID, false); err != nil {
			return res, fmt.Errorf("clearing sync flag for %s: %w", docID, err)
		}
	}

	r.logger.Printf("synced document %s: %d up, %d down, %d skipped, %d conflicts, %d errors",
		docID, res.Uploads, res.Downloads, res.Skipped, len(res.Conflicts), len(res.Errors))
	return res, nil
}

// snapshot loads the document and its nodes as they stood before the
// pass. These values are what a rollback restores.
func (r *Reconciler) snapshot(ctx context.Context, docID uuid.UUID) (*model.Document, []*model.Node, error) {
	doc, err := r.local.FindDocument(ctx, docID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("loading document %s: %w", docID, err)
	}
	if doc == nil {
		return nil, nil, nil
	}
	nodes, err := r.local.ListNodes(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading nodes for %s: %w", docID, err)
	}
	return doc, nodes, nil
}

// fetch pulls the document record and every node record scoped to it.
func (r *Reconciler) fetch(ctx context.Context, docID uuid.UUID) (*record.Record, []*record.Record, error) {
	docRec, err := r.remote.Fetch(ctx, docID.String())
	if err != nil && !errors.Is(err, remote.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("fetching document record %s: %w", docID, err)
	}
	nodeRecs, err := r.remote.Query(ctx, record.TypeNode, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying node records for %s: %w", docID, err)
	}
	return docRec, nodeRecs, nil
}

// plan diffs local entities against remote records and produces the list
// of transfers to apply. Corrupted records are reported per-entity and
// excluded from the plan.
func (r *Reconciler) plan(res *Result, snapDoc *model.Document, snapNodes []*model.Node, docRec *record.Record, nodeRecs []*record.Record) []decision {
	var decisions []decision

	docOK := true
	var remoteDoc model.Entity
	if docRec != nil {
		d, err := docRec.ToDocument()
		if err != nil {
			res.Errors = append(res.Errors, EntityError{Name: docRec.Name, Err: err})
			docOK = false
		} else {
			remoteDoc = d
		}
	}
	if docOK {
		var localDoc model.Entity
		if snapDoc != nil {
			localDoc = snapDoc.Clone()
		}
		act := decide(localDoc, remoteDoc, docRec)
		if act != ActionSkip && localDoc != nil && remoteDoc != nil {
			res.Conflicts = append(res.Conflicts, conflictFor(act, localDoc, remoteDoc))
		}
		var name string
		if snapDoc != nil {
			name = snapDoc.ID.String()
		} else {
			name = docRec.Name
		}
		decisions = append(decisions, decision{
			name: name, typ: record.TypeMindMap, action: act,
			local: localDoc, remoteEnt: remoteDoc, rec: docRec,
		})
	}

	recByID := make(map[uuid.UUID]*record.Record, len(nodeRecs))
	for _, rec := range nodeRecs {
		id, err := rec.EntityID()
		if err != nil {
			res.Errors = append(res.Errors, EntityError{Name: rec.Name, Err: err})
			continue
		}
		recByID[id] = rec
	}

	local := make(map[uuid.UUID]bool, len(snapNodes))
	for _, n := range snapNodes {
		local[n.ID] = true
		rec := recByID[n.ID]
		var remoteEnt model.Entity
		if rec != nil {
			rn, err := rec.ToNode()
			if err != nil {
				res.Errors = append(res.Errors, EntityError{Name: rec.Name, Err: err})
				continue
			}
			remoteEnt = rn
		}
		localEnt := n.Clone()
		act := decide(localEnt, remoteEnt, rec)
		if act != ActionSkip && remoteEnt != nil {
			res.Conflicts = append(res.Conflicts, conflictFor(act, localEnt, remoteEnt))
		}
		decisions = append(decisions, decision{
			name: n.ID.String(), typ: record.TypeNode, action: act,
			local: localEnt, remoteEnt: remoteEnt, rec: rec,
		})
	}

	// Remote-only nodes are created locally.
	for _, rec := range nodeRecs {
		id, err := rec.EntityID()
		if err != nil || local[id] {
			continue
		}
		rn, err := rec.ToNode()
		if err != nil {
			res.Errors = append(res.Errors, EntityError{Name: rec.Name, Err: err})
			continue
		}
		decisions = append(decisions, decision{
			name: rec.Name, typ: record.TypeNode, action: ActionDownload,
			remoteEnt: rn, rec: rec,
		})
	}
	return decisions
}

// apply executes the planned transfers. The document decision runs first
// as a barrier: node rows reference their document through a foreign key,
// so a downloaded document must exist before its nodes can be stored.
// Node transfers then fan out with bounded concurrency. Failures are
// collected per entity; a failed upload or download never stops the
// remaining transfers.
func (r *Reconciler) apply(ctx context.Context, res *Result, decisions []decision) {
	var mu sync.Mutex
	report := func(d decision, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors = append(res.Errors, EntityError{Name: d.name, Err: err})
			return
		}
		if d.action == ActionUpload {
			res.Uploads++
		} else {
			res.Downloads++
		}
		if d.typ == record.TypeNode {
			res.Nodes++
		}
	}

	var nodes []decision
	for _, d := range decisions {
		if d.action == ActionSkip {
			res.Skipped++
			continue
		}
		if d.typ == record.TypeMindMap {
			report(d, r.transfer(ctx, d))
			continue
		}
		nodes = append(nodes, d)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(applyConcurrency)
	for _, d := range nodes {
		g.Go(func() error {
			report(d, r.transfer(gctx, d))
			return nil
		})
	}
	// Workers collect failures under the mutex and never return errors.
	_ = g.Wait()
}

func (r *Reconciler) transfer(ctx context.Context, d decision) error {
	if d.action == ActionUpload {
		return r.upload(ctx, d)
	}
	return r.download(ctx, d)
}

// upload pushes the local entity and converges the local modification
// time with the store-assigned date so the next pass sees an equal pair.
func (r *Reconciler) upload(ctx context.Context, d decision) error {
	var rec *record.Record
	switch ent := d.local.(type) {
	case *model.Document:
		rec = record.FromDocument(ent)
	case *model.Node:
		rec = record.FromNode(ent)
	default:
		return fmt.Errorf("unsupported entity type %T", d.local)
	}
	stored, err := r.remote.Save(ctx, rec)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	switch ent := d.local.(type) {
	case *model.Document:
		ent.UpdatedAt = stored.ModificationDate
		return r.local.SaveDocument(ctx, ent)
	case *model.Node:
		ent.UpdatedAt = stored.ModificationDate
		return r.local.SaveNode(ctx, ent)
	}
	return nil
}

// download writes the decoded remote entity into the local store, stamping
// it with the record's modification date.
func (r *Reconciler) download(ctx context.Context, d decision) error {
	switch ent := d.remoteEnt.(type) {
	case *model.Document:
		if !d.rec.ModificationDate.IsZero() {
			ent.UpdatedAt = d.rec.ModificationDate
		}
		if err := r.local.SaveDocument(ctx, ent); err != nil {
			return fmt.Errorf("storing document: %w", err)
		}
		return nil
	case *model.Node:
		// Records don't carry child lists; keep the local order until
		// rebuildLinks recomputes it from parent links.
		if ln, ok := d.local.(*model.Node); ok && ln != nil {
			ent.ChildIDs = slices.Clone(ln.ChildIDs)
		}
		if !d.rec.ModificationDate.IsZero() {
			ent.UpdatedAt = d.rec.ModificationDate
		}
		if err := r.local.SaveNode(ctx, ent); err != nil {
			return fmt.Errorf("storing node: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported entity type %T", d.remoteEnt)
	}
}

// rebuildLinks restores the derived structure after downloads: every
// parent's child list is recomputed from the nodes claiming it (existing
// order preserved, new children appended), and the document's node set is
// extended to cover every stored node. Bookkeeping writes don't bump
// modification times.
func (r *Reconciler) rebuildLinks(ctx context.Context, docID uuid.UUID) error {
	doc, err := r.local.FindDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reloading document: %w", err)
	}
	nodes, err := r.local.ListNodes(ctx, docID)
	if err != nil {
		return fmt.Errorf("reloading nodes: %w", err)
	}

	claims := make(map[uuid.UUID][]uuid.UUID)
	for _, n := range nodes {
		if n.ParentID != nil {
			claims[*n.ParentID] = append(claims[*n.ParentID], n.ID)
		}
	}
	for _, n := range nodes {
		claimed := make(map[uuid.UUID]bool, len(claims[n.ID]))
		for _, c := range claims[n.ID] {
			claimed[c] = true
		}
		want := make([]uuid.UUID, 0, len(claims[n.ID]))
		for _, c := range n.ChildIDs {
			if claimed[c] {
				want = append(want, c)
				delete(claimed, c)
			}
		}
		for _, c := range claims[n.ID] {
			if claimed[c] {
				want = append(want, c)
			}
		}
		if !slices.Equal(n.ChildIDs, want) {
			n.ChildIDs = want
			if err := r.local.SaveNode(ctx, n); err != nil {
				return fmt.Errorf("relinking node %s: %w", n.ID, err)
			}
		}
	}

	changed := false
	for _, n := range nodes {
		if !slices.Contains(doc.NodeIDs, n.ID) {
			doc.NodeIDs = append(doc.NodeIDs, n.ID)
			changed = true
		}
	}
	if changed {
		if err := r.local.SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("updating node set: %w", err)
		}
	}
	return nil
}

// verify reloads the merged state and runs the structural validator.
func (r *Reconciler) verify(ctx context.Context, docID uuid.UUID) error {
	doc, err := r.local.FindDocument(ctx, docID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("reloading document: %w", err)
		}
		nodes, lerr := r.local.ListNodes(ctx, docID)
		if lerr != nil {
			return fmt.Errorf("reloading nodes: %w", lerr)
		}
		if len(nodes) > 0 {
			return model.SyncErrorf(model.CodeDataCorrupted, "%d nodes stored without a document", len(nodes))
		}
		return nil
	}
	nodes, err := r.local.ListNodes(ctx, docID)
	if err != nil {
		return fmt.Errorf("reloading nodes: %w", err)
	}
	return validate.Validate(doc, nodes)
}

// rollback restores the pre-pass snapshot: nodes created during the pass
// are deleted, surviving entities are rewritten with their old values,
// and a document that didn't exist before the pass is removed entirely.
func (r *Reconciler) rollback(ctx context.Context, docID uuid.UUID, snapDoc *model.Document, snapNodes []*model.Node) error {
	if snapDoc == nil {
		if err := r.local.DeleteDocument(ctx, docID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}
	if err := r.local.SaveDocument(ctx, snapDoc); err != nil {
		return fmt.Errorf("restoring document: %w", err)
	}
	keep := make(map[uuid.UUID]bool, len(snapNodes))
	for _, n := range snapNodes {
		keep[n.ID] = true
	}
	current, err := r.local.ListNodes(ctx, docID)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}
	for _, n := range current {
		if !keep[n.ID] {
			if err := r.local.DeleteNode(ctx, n.ID); err != nil {
				return fmt.Errorf("removing node %s: %w", n.ID, err)
			}
		}
	}
	for _, n := range snapNodes {
		if err := r.local.SaveNode(ctx, n); err != nil {
			return fmt.Errorf("restoring node %s: %w", n.ID, err)
		}
	}
	return nil
}
