package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/daemon"
	"github.com/mindwell/mapsync/internal/dashboard"
	"github.com/mindwell/mapsync/internal/syncer"
	"github.com/mindwell/mapsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the background sync daemon.

The daemon watches the workspace for local mutations and syncs flagged
maps once changes settle. It also re-runs sync periodically so maps
whose previous pass failed or was rolled back get retried.

With --dashboard a WebSocket server broadcasts pass completions,
conflict resolutions, and statistics to connected clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		ctrl, db := newController(cmd, cfg)
		defer db.Close()

		dcfg := &daemon.Config{
			SyncInterval:     cfg.SyncInterval,
			DebounceInterval: cfg.DebounceInterval,
			Logger:           cfg.Logger("[daemon] "),
		}

		var dash *dashboard.Server
		if enabled, _ := cmd.Flags().GetBool("dashboard"); enabled {
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: cfg.Logger("[dashboard] "),
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			handler := dashboard.NewHandler(dash, dcfg.Logger)
			dcfg.OnResult = func(res *syncer.Result) {
				handler.OnSyncResult(res)
			}
			fmt.Printf("%s Dashboard at ws://localhost:%d/ws\n", ui.RenderAccent("📊"), cfg.DashboardPort)
		}

		d, err := daemon.NewWithConfig(ctrl, db, cfg.Dir, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
			os.Exit(1)
		}
		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket dashboard")
	rootCmd.AddCommand(daemonCmd)
}
