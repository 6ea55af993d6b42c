package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mindwell/mapsync/internal/model"
	"github.com/mindwell/mapsync/internal/service"
	"github.com/mindwell/mapsync/internal/ui"
)

var mapCmd = &cobra.Command{
	Use:     "map",
	GroupID: "maps",
	Short:   "Create and edit mind maps",
}

var mapCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new mind map",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		svc := service.New(db, cfg.Logger("[service] "))
		doc, err := svc.CreateDocument(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating map: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Created map %s (%q)\n", ui.RenderPass("✓"), doc.ID, doc.Title)
	},
}

var mapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mind maps",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		docs, err := db.ListDocuments(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing maps: %v\n", err)
			os.Exit(1)
		}
		if len(docs) == 0 {
			fmt.Println("No maps yet. Create one with 'ms map create <title>'.")
			return
		}
		for _, doc := range docs {
			fmt.Printf("%s  %-30q %3d nodes  v%d  %s\n",
				doc.ID, doc.Title, len(doc.NodeIDs), doc.Version,
				ui.RenderDim(doc.UpdatedAt.Local().Format("2006-01-02 15:04:05")))
		}
	},
}

var mapAddCmd = &cobra.Command{
	Use:   "add <map-id> <text>",
	Short: "Add a node to a map",
	Long: `Add a node to a mind map.

Without --parent the node attaches to the map's root (or becomes the
root of an empty map). The node's position is derived from the radial
layout.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		docID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid map id %q: %v\n", args[0], err)
			os.Exit(1)
		}
		var parentID *uuid.UUID
		if flag, _ := cmd.Flags().GetString("parent"); flag != "" {
			id, err := uuid.Parse(flag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid parent id %q: %v\n", flag, err)
				os.Exit(1)
			}
			parentID = &id
		}

		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		svc := service.New(db, cfg.Logger("[service] "))
		node, err := svc.CreateNode(cmd.Context(), docID, parentID, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding node: %v\n", err)
			os.Exit(1)
		}
		isTask, _ := cmd.Flags().GetBool("task")
		if isTask {
			node, err = svc.UpdateNode(cmd.Context(), node.ID, func(n *model.Node) error {
				n.IsTask = true
				return nil
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marking node as task: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("%s Added node %s (%q) at (%.0f, %.0f)\n",
			ui.RenderPass("✓"), node.ID, node.Text, node.Position.X, node.Position.Y)
	},
}

var mapDeleteCmd = &cobra.Command{
	Use:   "delete <map-id>",
	Short: "Delete a map and all of its nodes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		docID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid map id %q: %v\n", args[0], err)
			os.Exit(1)
		}

		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		svc := service.New(db, cfg.Logger("[service] "))
		if err := svc.DeleteDocument(cmd.Context(), docID); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting map: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted map %s\n", ui.RenderPass("✓"), docID)
	},
}

var mapRemoveNodeCmd = &cobra.Command{
	Use:   "remove <node-id>",
	Short: "Remove a node and its subtree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nodeID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid node id %q: %v\n", args[0], err)
			os.Exit(1)
		}

		cfg := mustConfig()
		db := openLocal(cmd, cfg)
		defer db.Close()

		svc := service.New(db, cfg.Logger("[service] "))
		if err := svc.DeleteNode(cmd.Context(), nodeID); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing node: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed node %s\n", ui.RenderPass("✓"), nodeID)
	},
}

func init() {
	mapAddCmd.Flags().StringP("parent", "p", "", "Parent node id (defaults to the root)")
	mapAddCmd.Flags().BoolP("task", "t", false, "Mark the node as a task")

	mapCmd.AddCommand(mapCreateCmd)
	mapCmd.AddCommand(mapListCmd)
	mapCmd.AddCommand(mapAddCmd)
	mapCmd.AddCommand(mapDeleteCmd)
	mapCmd.AddCommand(mapRemoveNodeCmd)
	rootCmd.AddCommand(mapCmd)
}
