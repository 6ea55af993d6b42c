package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/config"
	"github.com/mindwell/mapsync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .mapsync workspace in the current directory",
	Long: `Initialize a mapsync workspace.

Creates a .mapsync directory holding the local database and an example
config.yaml. Settings can also be supplied through MAPSYNC_-prefixed
environment variables.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := filepath.Join(".", config.DirName)
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("%s Workspace already exists at %s\n", ui.RenderWarn("⚠"), dir)
			return
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating workspace: %v\n", err)
			os.Exit(1)
		}

		configPath := filepath.Join(dir, "config.yaml")
		example := `# mapsync configuration
#
# database: local.db
# remote:
#   url: libsql://your-db.turso.io
#   auth_token: ""
# daemon:
#   sync_interval: 30s
#   debounce_interval: 500ms
# dashboard:
#   port: 8080
# log:
#   file: daemon.log
`
		if err := os.WriteFile(configPath, []byte(example), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Initialized workspace at %s\n", ui.RenderPass("✓"), dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
