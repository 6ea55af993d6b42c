package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mindwell/mapsync/internal/reconcile"
	"github.com/mindwell/mapsync/internal/syncer"
)

// Handler bridges sync results to dashboard broadcasts. Wire its
// OnSyncResult method into the daemon's OnResult callback.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnSyncResult broadcasts the outcome of a sync run: one pass_complete
// message per document, one conflict message per resolution, then
// refreshed stats.
func (h *Handler) OnSyncResult(res *syncer.Result) {
	for _, pass := range res.Passes {
		h.onPass(pass)
	}

	h.mu.Lock()
	h.stats.Documents += res.SyncedDocuments
	h.stats.Nodes += res.SyncedNodes
	h.stats.Conflicts += res.Conflicts
	h.stats.FailedRuns += len(res.Errors)
	stats := h.stats
	h.mu.Unlock()

	h.broadcastStats(stats)
}

// OnOfflineMode broadcasts an offline-mode transition.
func (h *Handler) OnOfflineMode(offline bool) {
	h.logger.Printf("Offline mode: %v", offline)
	h.send(MessageTypeOfflineMode, OfflineModeData{Offline: offline})
}

func (h *Handler) onPass(pass *reconcile.Result) {
	if pass.RolledBack {
		h.mu.Lock()
		h.stats.Rollbacks++
		h.mu.Unlock()
	}

	h.send(MessageTypePassComplete, PassCompleteData{
		DocumentID: pass.DocumentID.String(),
		Uploads:    pass.Uploads,
		Downloads:  pass.Downloads,
		Conflicts:  len(pass.Conflicts),
		Errors:     len(pass.Errors),
		RolledBack: pass.RolledBack,
		Reason:     pass.Reason,
	})

	for _, c := range pass.Conflicts {
		var entityID string
		if c.Resolved != nil {
			entityID = c.Resolved.EntityID().String()
		}
		h.send(MessageTypeConflict, ConflictData{
			DocumentID: pass.DocumentID.String(),
			EntityID:   entityID,
			Strategy:   string(c.Strategy),
		})
	}
}

func (h *Handler) broadcastStats(stats StatsData) {
	h.send(MessageTypeStats, stats)
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
