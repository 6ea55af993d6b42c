package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show workspace and sync status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		docs, err := db.ListDocuments(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing maps: %v\n", err)
			os.Exit(1)
		}
		flagged, err := db.ListSyncNeeded(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing flagged maps: %v\n", err)
			os.Exit(1)
		}

		nodes := 0
		for _, doc := range docs {
			nodes += len(doc.NodeIDs)
		}

		fmt.Printf("\n%s MapSync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Workspace:    %s\n", cfg.Dir)
		fmt.Printf("   Database:     %s\n", cfg.DatabasePath)
		if cfg.RemoteURL != "" {
			fmt.Printf("   Remote:       %s\n", cfg.RemoteURL)
		} else {
			fmt.Printf("   Remote:       %s\n", ui.RenderDim("not configured"))
		}
		fmt.Printf("   Maps:         %d\n", len(docs))
		fmt.Printf("   Nodes:        %d\n", nodes)
		fmt.Printf("   Need sync:    %d\n", len(flagged))

		if _, err := os.Stat(offlineMarker(cfg)); err == nil {
			fmt.Printf("   Mode:         %s\n", ui.RenderWarn("offline"))
		} else {
			fmt.Printf("   Mode:         online\n")
		}
		if len(flagged) > 0 {
			fmt.Printf("\n%s %d maps awaiting sync (run 'ms sync')\n", ui.RenderWarn("⚠"), len(flagged))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
