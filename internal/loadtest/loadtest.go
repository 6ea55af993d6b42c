// Package loadtest provides load testing utilities for the sync engine.
//
// It builds synthetic corpora (N mind maps of M nodes each) and runs
// repeated timed sync passes against them to measure pass latency under
// concurrent load.
package loadtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/reconcile"
	"github.com/mindwell/mapsync/internal/remote"
	"github.com/mindwell/mapsync/internal/store"
	"github.com/mindwell/mapsync/internal/validate"
)

// branching is the fan-out of generated trees.
const branching = 4

// Corpus is a populated local store plus in-memory remote for load runs.
type Corpus struct {
	Store       *store.DB
	Remote      *remote.Memory
	DocumentIDs []uuid.UUID
	NodesPerMap int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
	P50         time.Duration // Median
	P95         time.Duration
	P99         time.Duration
	TotalPasses int
	Errors      int
	Durations   []time.Duration
}

// CreateCorpus creates and populates a test corpus.
//
// Each generated document is a balanced tree: a root plus nodes attached
// with a fixed fan-out, positioned by the radial layout, flagged for
// sync so a full run covers every map.
func CreateCorpus(dbPath string, numMaps, nodesPerMap int) (*Corpus, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &Corpus{
		Store:       db,
		Remote:      remote.NewMemory(),
		DocumentIDs: make([]uuid.UUID, 0, numMaps),
		NodesPerMap: nodesPerMap,
	}

	for i := 0; i < numMaps; i++ {
		doc, nodes := generateMap(i, nodesPerMap)
		if err := db.SaveDocument(ctx, doc); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
		for _, n := range nodes {
			if err := db.SaveNode(ctx, n); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to insert node %s: %w", n.ID, err)
			}
		}
		if err := db.MarkSyncNeeded(ctx, doc.ID, true); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to flag document %s: %w", doc.ID, err)
		}
		c.DocumentIDs = append(c.DocumentIDs, doc.ID)
	}
	return c, nil
}

// Close closes the corpus database.
func (c *Corpus) Close() error {
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// RunSyncPasses runs repeated sync passes with numWorkers concurrent
// workers. Documents are partitioned across workers so no two passes
// ever target the same document at once. Returns aggregated latency
// statistics.
func (c *Corpus) RunSyncPasses(numWorkers, passesPerDocument int) (*LatencyStats, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(c.DocumentIDs) {
		numWorkers = len(c.DocumentIDs)
	}

	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numWorkers)
	errorsChan := make(chan error, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			rec := reconcile.New(c.Store, c.Remote, nil)
			ctx := context.Background()
			var durations []time.Duration

			for pass := 0; pass < passesPerDocument; pass++ {
				for i := workerID; i < len(c.DocumentIDs); i += numWorkers {
					id := c.DocumentIDs[i]
					start := time.Now()
					_, err := rec.SyncDocument(ctx, id)
					durations = append(durations, time.Since(start))
					if err != nil {
						errorsChan <- fmt.Errorf("worker %d pass %d on %s failed: %w", workerID, pass, id, err)
						return
					}
				}
			}
			resultsChan <- durations
		}(w)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for err := range errorsChan {
		if err != nil {
			errorCount++
			fmt.Printf("Error: %v\n", err)
		}
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful passes completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// generateMap builds one synthetic document and its node tree.
func generateMap(index, nodesPerMap int) (*model.Document, []*model.Node) {
	doc := model.NewDocument(fmt.Sprintf("Load map %04d", index))

	nodes := make([]*model.Node, 0, nodesPerMap)
	root := model.NewNode(doc.ID, fmt.Sprintf("Map %04d root", index))
	doc.RootNodeID = &root.ID
	doc.AddNode(root.ID)
	nodes = append(nodes, root)

	for i := 1; i < nodesPerMap; i++ {
		n := model.NewNode(doc.ID, fmt.Sprintf("Node %04d-%04d", index, i))
		parent := nodes[(i-1)/branching]
		n.ParentID = &parent.ID
		parent.AddChild(n.ID)
		if i%7 == 0 {
			n.IsTask = true
		}
		doc.AddNode(n.ID)
		nodes = append(nodes, n)
	}

	positions := validate.CalculatePositions(doc, nodes)
	for _, n := range nodes {
		n.Position = positions[n.ID]
	}
	return doc, nodes
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	return &LatencyStats{
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        mean,
		P50:         sorted[len(sorted)*50/100],
		P95:         sorted[len(sorted)*95/100],
		P99:         sorted[len(sorted)*99/100],
		TotalPasses: len(durations),
		Durations:   sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Pass Latency Statistics:\n")
	fmt.Printf("  Total Passes: %d\n", s.TotalPasses)
	fmt.Printf("  Errors:       %d\n", s.Errors)
	fmt.Printf("  Min:          %v\n", s.Min)
	fmt.Printf("  P50 (Median): %v\n", s.P50)
	fmt.Printf("  Mean:         %v\n", s.Mean)
	fmt.Printf("  P95:          %v\n", s.P95)
	fmt.Printf("  P99:          %v\n", s.P99)
	fmt.Printf("  Max:          %v\n", s.Max)
}

// Stats returns statistics about the corpus.
func (c *Corpus) Stats() map[string]interface{} {
	return map[string]interface{}{
		"documents":     len(c.DocumentIDs),
		"nodes_per_map": c.NodesPerMap,
		"total_nodes":   len(c.DocumentIDs) * c.NodesPerMap,
		"remote_size":   c.Remote.Len(),
	}
}
