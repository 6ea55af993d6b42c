package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [map-id]",
	GroupID: "sync",
	Short:   "Synchronize maps with the remote store",
	Long: `Run a sync pass.

Without arguments every flagged map is synced, plus maps that exist only
on the remote. With a map id only that map is synced.

Each document's pass fetches remote records, resolves divergence
last-write-wins by modification date (remote wins ties), applies the
transfers, and validates the merged tree. A pass that would corrupt a
map is rolled back and retried on the next run.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		ctrl, db := newController(cmd, cfg)
		defer db.Close()

		if len(args) == 1 {
			docID, err := uuid.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid map id %q: %v\n", args[0], err)
				os.Exit(1)
			}
			res, err := ctrl.SyncDocument(cmd.Context(), docID)
			if err != nil {
				reportSyncError(err)
				os.Exit(1)
			}
			if res.RolledBack {
				warnf("Map %s rolled back: %s", docID, res.Reason)
				os.Exit(1)
			}
			fmt.Printf("%s Synced map %s: %d up, %d down, %d conflicts\n",
				ui.RenderPass("✓"), docID, res.Uploads, res.Downloads, len(res.Conflicts))
			return
		}

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		res, err := ctrl.Sync(cmd.Context())
		if err != nil {
			reportSyncError(err)
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Maps synced: %d\n", res.SyncedDocuments)
		fmt.Printf("   Nodes moved: %d\n", res.SyncedNodes)
		fmt.Printf("   Conflicts:   %d\n", res.Conflicts)
		if res.FailedDocuments > 0 {
			warnf("%d maps failed and will be retried", res.FailedDocuments)
			for _, err := range res.Errors {
				fmt.Printf("   %s %v\n", ui.RenderErr("✗"), err)
			}
			os.Exit(1)
		}
	},
}

func reportSyncError(err error) {
	var serr *model.SyncError
	if errors.As(err, &serr) && serr.Code == model.CodeNetworkUnavailable {
		fmt.Fprintf(os.Stderr, "%s Sync unavailable: %v\n", ui.RenderWarn("⚠"), err)
		fmt.Fprintln(os.Stderr, "   Check connectivity, or disable offline mode with 'ms offline off'.")
		return
	}
	fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderErr("✗"), err)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
