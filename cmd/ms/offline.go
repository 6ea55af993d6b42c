package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/ui"
)

var offlineCmd = &cobra.Command{
	Use:     "offline on|off",
	GroupID: "sync",
	Short:   "Toggle offline mode",
	Long: `Toggle offline mode.

While offline, every sync attempt fails fast without touching the
network. Local edits keep accumulating sync flags and are replayed by
the first sync run after offline mode is disabled.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		marker := offlineMarker(cfg)

		switch args[0] {
		case "on":
			if err := os.WriteFile(marker, nil, 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "Error enabling offline mode: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Offline mode enabled\n", ui.RenderWarn("⚠"))
		case "off":
			if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Error disabling offline mode: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Offline mode disabled\n", ui.RenderPass("✓"))
		default:
			fmt.Fprintf(os.Stderr, "Error: expected 'on' or 'off', got %q\n", args[0])
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(offlineCmd)
}
