package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shardcore/engine/pkg/store"
	"github.com/shardcore/engine/pkg/types"
)

var sindexCmd = &cobra.Command{
	Use:   "sindex",
	Short: "Inspect and manage a shard's secondary-index catalog",
}

func openStoreForInspection(cmd *cobra.Command) (*store.Store, error) {
	dataDir := dataDirFlag(cmd)
	return store.NewStore(store.Options{DataDir: dataDir, Create: false})
}

var sindexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every secondary index and its lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		statuses := s.Catalog.List()
		if len(statuses) == 0 {
			fmt.Println("No secondary indexes")
			return nil
		}

		fmt.Printf("%-30s %-36s %-8s %s\n", "NAME", "ID", "READY", "STATE")
		for _, st := range statuses {
			state := "building"
			if st.BeingDeleted {
				state = "tombstoned"
			} else if st.Ready {
				state = "ready"
			}
			fmt.Printf("%-30s %-36s %-8v %s\n", st.Name, st.ID, st.Ready, state)
		}
		return nil
	},
}

var sindexStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Show one secondary index's lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := s.Catalog.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name: %s\n", st.Name)
		fmt.Printf("ID: %s\n", st.ID)
		fmt.Printf("Post-construction complete: %v\n", st.PostConstructionComplete)
		fmt.Printf("Being deleted: %v\n", st.BeingDeleted)
		fmt.Printf("Ready: %v\n", st.Ready)
		return nil
	},
}

var sindexAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a secondary index (not ready until marked up to date)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		multi, _ := cmd.Flags().GetBool("multi")
		geo, _ := cmd.Flags().GetBool("geo")

		created, err := s.Catalog.Add(args[0], types.SindexDefinition{Multi: multi, Geo: geo})
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("Index `%s` already exists\n", args[0])
			return nil
		}
		fmt.Printf("✓ Index `%s` created; it is not ready for queries until it is marked up to date\n", args[0])
		return nil
	},
}

var sindexDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Mark a secondary index deleted and background-clear its storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Catalog.Drop(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Index `%s` marked deleted; clearing in the background\n", args[0])
		return nil
	},
}

var sindexRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Atomically rename a secondary index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Catalog.Rename(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Index `%s` renamed to `%s`\n", args[0], args[1])
		return nil
	},
}

func init() {
	sindexCmd.AddCommand(sindexListCmd)
	sindexCmd.AddCommand(sindexStatusCmd)
	sindexCmd.AddCommand(sindexAddCmd)
	sindexCmd.AddCommand(sindexDropCmd)
	sindexCmd.AddCommand(sindexRenameCmd)

	for _, cmd := range []*cobra.Command{sindexListCmd, sindexStatusCmd, sindexAddCmd, sindexDropCmd, sindexRenameCmd} {
		cmd.Flags().String("data-dir", "", "Shard data directory (defaults to --data-dir on the root command)")
	}

	sindexAddCmd.Flags().Bool("multi", false, "Index produces multiple entries per row")
	sindexAddCmd.Flags().Bool("geo", false, "Index is geospatial")
}
