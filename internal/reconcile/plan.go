// Package reconcile implements the per-document sync pass: fetch remote
// records, diff against local state by modification time, apply uploads
// and downloads, then gate the result through the structural validator.
package reconcile

import (
	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/record"
)

// Action is the outcome of diffing one entity against its remote record.
type Action int

const (
	// ActionSkip means local and remote already agree.
	ActionSkip Action = iota

	// ActionUpload overwrites the remote record with the local entity.
	ActionUpload

	// ActionDownload overwrites the local entity with the remote record,
	// creating it locally if it doesn't exist yet.
	ActionDownload
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// decision captures the diff outcome for a single entity. Exactly one of
// local/remoteEnt may be nil (entity exists on one side only).
type decision struct {
	name      string
	typ       record.Type
	action    Action
	local     model.Entity
	remoteEnt model.Entity
	rec       *record.Record
}

// decide compares a local entity against its decoded remote counterpart.
// This is a pure decision function; the caller performs all I/O.
//
// Rules:
//   - no remote record: upload
//   - no local entity: download (create)
//   - local strictly newer than the record's modification date: upload
//   - remote strictly newer: download
//   - equal timestamps: remote wins, but an equivalent pair is a skip so
//     that back-to-back passes with no intervening mutation are no-ops
func decide(local, remoteEnt model.Entity, rec *record.Record) Action {
	if rec == nil {
		return ActionUpload
	}
	if local == nil {
		return ActionDownload
	}
	switch {
	case local.ModifiedAt().After(rec.ModificationDate):
		return ActionUpload
	case rec.ModificationDate.After(local.ModifiedAt()):
		return ActionDownload
	case equivalent(local, remoteEnt):
		return ActionSkip
	default:
		return ActionDownload
	}
}

// equivalent compares two entities ignoring UpdatedAt. After an upload the
// local modification time is patched to the store-assigned date, which the
// record's own updatedAt field doesn't carry; everything else must match
// for the pair to count as converged.
func equivalent(a, b model.Entity) bool {
	switch local := a.(type) {
	case *model.Document:
		remote, ok := b.(*model.Document)
		if !ok {
			return false
		}
		lc, rc := local.Clone(), remote.Clone()
		lc.UpdatedAt = rc.UpdatedAt
		// Node membership is rebuilt locally from the stored nodes, so
		// the two sides drift without either being newer.
		lc.NodeIDs, rc.NodeIDs = nil, nil
		return lc.Equal(rc)
	case *model.Node:
		remote, ok := b.(*model.Node)
		if !ok {
			return false
		}
		lc, rc := local.Clone(), remote.Clone()
		lc.UpdatedAt = rc.UpdatedAt
		// Child order is local-only; the wire carries parent links.
		lc.ChildIDs, rc.ChildIDs = nil, nil
		return lc.Equal(rc)
	}
	return false
}

// conflictFor builds the resolution record for a decision where both
// sides exist and disagree.
func conflictFor(action Action, local, remoteEnt model.Entity) model.ConflictResolution {
	cr := model.ConflictResolution{Local: local, Remote: remoteEnt}
	if action == ActionUpload {
		cr.Strategy = model.StrategyLocalWins
		cr.Resolved = local
	} else {
		cr.Strategy = model.StrategyRemoteWins
		cr.Resolved = remoteEnt
	}
	return cr
}
