package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/reconcile"
	"github.com/mindwell/mapsync/internal/syncer"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	config := &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}
	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// Read welcome message
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal welcome message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t)

	addr := server.GetAddr()
	if addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialTestClient(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dialTestClient(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	testData := PassCompleteData{
		DocumentID: uuid.NewString(),
		Uploads:    3,
		Downloads:  1,
	}
	dataJSON, _ := json.Marshal(testData)
	server.Broadcast(Message{
		Type:      MessageTypePassComplete,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}

	var received Message
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if received.Type != MessageTypePassComplete {
		t.Errorf("Expected message type %s, got %s", MessageTypePassComplete, received.Type)
	}

	var receivedData PassCompleteData
	if err := json.Unmarshal(received.Data, &receivedData); err != nil {
		t.Fatalf("Failed to unmarshal pass data: %v", err)
	}
	if receivedData.DocumentID != testData.DocumentID {
		t.Errorf("Expected document ID %s, got %s", testData.DocumentID, receivedData.DocumentID)
	}
	if receivedData.Uploads != 3 || receivedData.Downloads != 1 {
		t.Errorf("Transfer counts mismatch: got %+v", receivedData)
	}
}

func TestHandlerSyncResult(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	docID := uuid.New()
	entity := model.NewNode(docID, "contested")
	res := &syncer.Result{
		SyncedDocuments: 1,
		SyncedNodes:     4,
		Conflicts:       1,
		Passes: []*reconcile.Result{{
			DocumentID: docID,
			Uploads:    2,
			Downloads:  2,
			Conflicts: []model.ConflictResolution{{
				Strategy: model.StrategyRemoteWins,
				Resolved: entity,
			}},
		}},
	}

	handler.OnSyncResult(res)

	// First message: pass_complete for the single pass
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read pass message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypePassComplete {
		t.Errorf("Expected message type %s, got %s", MessageTypePassComplete, msg.Type)
	}
	var passData PassCompleteData
	if err := json.Unmarshal(msg.Data, &passData); err != nil {
		t.Fatalf("Failed to unmarshal pass data: %v", err)
	}
	if passData.DocumentID != docID.String() {
		t.Errorf("Expected document %s, got %s", docID, passData.DocumentID)
	}

	// Second: the conflict resolution
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read conflict message: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeConflict {
		t.Errorf("Expected message type %s, got %s", MessageTypeConflict, msg.Type)
	}
	var conflictData ConflictData
	if err := json.Unmarshal(msg.Data, &conflictData); err != nil {
		t.Fatalf("Failed to unmarshal conflict data: %v", err)
	}
	if conflictData.EntityID != entity.ID.String() {
		t.Errorf("Expected entity %s, got %s", entity.ID, conflictData.EntityID)
	}
	if conflictData.Strategy != string(model.StrategyRemoteWins) {
		t.Errorf("Expected strategy %s, got %s", model.StrategyRemoteWins, conflictData.Strategy)
	}

	// Third: refreshed stats
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats message: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal stats message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats data: %v", err)
	}
	if stats.Documents != 1 || stats.Nodes != 4 || stats.Conflicts != 1 {
		t.Errorf("Stats mismatch: got %+v", stats)
	}
}

func TestHandlerOfflineMode(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnOfflineMode(true)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read offline message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeOfflineMode {
		t.Errorf("Expected message type %s, got %s", MessageTypeOfflineMode, msg.Type)
	}
	var offlineData OfflineModeData
	if err := json.Unmarshal(msg.Data, &offlineData); err != nil {
		t.Fatalf("Failed to unmarshal offline data: %v", err)
	}
	if !offlineData.Offline {
		t.Error("Expected offline=true")
	}
}

func TestHandlerRollbackCountsTowardStats(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnSyncResult(&syncer.Result{
		FailedDocuments: 1,
		Passes: []*reconcile.Result{{
			DocumentID: uuid.New(),
			RolledBack: true,
			Reason:     "cycle detected",
		}},
	})

	// pass_complete carries the rollback
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read pass message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	var passData PassCompleteData
	if err := json.Unmarshal(msg.Data, &passData); err != nil {
		t.Fatalf("Failed to unmarshal pass data: %v", err)
	}
	if !passData.RolledBack || passData.Reason == "" {
		t.Errorf("Expected a rollback with a reason, got %+v", passData)
	}

	// stats reflect the rollback
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats message: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal stats message: %v", err)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats data: %v", err)
	}
	if stats.Rollbacks != 1 {
		t.Errorf("Expected 1 rollback in stats, got %d", stats.Rollbacks)
	}
}
