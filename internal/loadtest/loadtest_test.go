package loadtest

import (
	"path/filepath"
	"testing"
)

func TestCreateCorpus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	corpus, err := CreateCorpus(dbPath, 3, 10)
	if err != nil {
		t.Fatalf("CreateCorpus failed: %v", err)
	}
	defer corpus.Close()

	if len(corpus.DocumentIDs) != 3 {
		t.Errorf("generated %d documents, want 3", len(corpus.DocumentIDs))
	}
	stats := corpus.Stats()
	if stats["total_nodes"] != 30 {
		t.Errorf("total_nodes %v, want 30", stats["total_nodes"])
	}
}

func TestRunSyncPasses(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	corpus, err := CreateCorpus(dbPath, 4, 8)
	if err != nil {
		t.Fatalf("CreateCorpus failed: %v", err)
	}
	defer corpus.Close()

	stats, err := corpus.RunSyncPasses(2, 2)
	if err != nil {
		t.Fatalf("RunSyncPasses failed: %v", err)
	}
	if stats.Errors != 0 {
		t.Errorf("%d passes errored", stats.Errors)
	}
	if stats.TotalPasses != 8 {
		t.Errorf("ran %d passes, want 8 (4 maps x 2 rounds)", stats.TotalPasses)
	}
	if stats.Min > stats.Max {
		t.Errorf("min %v exceeds max %v", stats.Min, stats.Max)
	}

	// After the first round uploads everything, the corpus converges.
	if corpus.Remote.Len() != 4*(8+1) {
		t.Errorf("remote holds %d records, want %d", corpus.Remote.Len(), 4*9)
	}
}
