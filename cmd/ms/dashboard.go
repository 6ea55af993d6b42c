package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time sync dashboard server",
	Long: `Start a WebSocket dashboard server for monitoring sync activity.

WebSocket messages include:
- pass_complete: A per-map sync pass finished
- conflict: A divergent record was resolved by timestamp
- offline_mode: Offline mode was toggled
- stats: Running totals for synced maps, nodes, and conflicts

Example usage:
  ms dashboard                   # Start on the configured port
  ms dashboard --port 9000       # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws

Typically run together with the daemon: 'ms daemon --dashboard'.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		port := cfg.DashboardPort
		if flag, _ := cmd.Flags().GetInt("port"); flag != 0 {
			port = flag
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: cfg.Logger("[dashboard] "),
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (defaults to config)")
	rootCmd.AddCommand(dashboardCmd)
}
