package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/loadtest"
	"github.com/mindwell/mapsync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Benchmark sync passes against a synthetic corpus",
	Long: `Generate a synthetic corpus and measure sync pass latency.

Builds N maps of M nodes each in a throwaway database, syncs them
against an in-memory record store with W concurrent workers, and prints
latency percentiles. The first round of passes uploads the whole
corpus; later rounds measure the steady state where passes are no-ops.`,
	Run: func(cmd *cobra.Command, args []string) {
		maps, _ := cmd.Flags().GetInt("maps")
		nodes, _ := cmd.Flags().GetInt("nodes")
		workers, _ := cmd.Flags().GetInt("workers")
		passes, _ := cmd.Flags().GetInt("passes")

		tmpDir, err := os.MkdirTemp("", "mapsync-bench-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmpDir)

		fmt.Printf("%s Building corpus: %d maps × %d nodes...\n", ui.RenderAccent("🔄"), maps, nodes)
		start := time.Now()
		corpus, err := loadtest.CreateCorpus(filepath.Join(tmpDir, "bench.db"), maps, nodes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building corpus: %v\n", err)
			os.Exit(1)
		}
		defer corpus.Close()
		fmt.Printf("%s Corpus ready in %v\n\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))

		stats, err := corpus.RunSyncPasses(workers, passes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running passes: %v\n", err)
			os.Exit(1)
		}

		stats.PrintStats()
		if stats.Errors > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	benchCmd.Flags().Int("maps", 50, "Number of maps to generate")
	benchCmd.Flags().Int("nodes", 100, "Nodes per map")
	benchCmd.Flags().Int("workers", 4, "Concurrent sync workers")
	benchCmd.Flags().Int("passes", 3, "Passes per map")
	rootCmd.AddCommand(benchCmd)
}
