package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/migrate"
	"github.com/mindwell/mapsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "advanced",
	Short:   "Export all maps to a JSONL backup",
	Long: `Export every map and node to a JSONL file, one JSON object per
line. The backup can be imported on another device with 'ms import'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		res, err := migrate.ExportFile(cmd.Context(), db, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d maps, %d nodes to %s\n",
			ui.RenderPass("✓"), res.Documents, res.Nodes, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import maps from a JSONL backup",
	Long: `Import maps and nodes from a JSONL backup.

Each map is structurally validated before being written; invalid maps
are reported and skipped. Imported maps are flagged for sync unless
--no-sync is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		res, err := migrate.ImportFile(cmd.Context(), db, args[0], migrate.ImportOptions{
			DryRun:         dryRun,
			MarkSyncNeeded: !noSync,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d maps, %d nodes\n", ui.RenderPass("✓"), verb, res.Documents, res.Nodes)
		if len(res.Errors) > 0 {
			warnf("%d entries skipped:", len(res.Errors))
			for _, msg := range res.Errors {
				fmt.Printf("   %s %s\n", ui.RenderErr("✗"), msg)
			}
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Validate without writing")
	importCmd.Flags().Bool("no-sync", false, "Don't flag imported maps for sync")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
