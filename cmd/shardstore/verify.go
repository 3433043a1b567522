package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shardcore/engine/pkg/store"
)

// verifyCmd inspects a shard's invariants (spec §8): every visible
// sindex status is internally consistent (ready iff post-construction
// complete and not being deleted; invariant 3 of §3). The check itself
// writes nothing, but opening the shard resumes the background clear of
// every tombstoned index, and those clears run to completion before the
// command exits.
// Grounded on the teacher's backup-then-inspect shape for its own
// database tooling.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a shard's on-disk invariants (resumes pending index clears)",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := dataDirFlag(cmd)
		backupPath, _ := cmd.Flags().GetString("backup")

		dbPath := filepath.Join(dataDir, "shard.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("shard database not found at %s", dbPath)
		}

		if backupPath != "" {
			if err := copyFile(dbPath, backupPath); err != nil {
				return fmt.Errorf("failed to back up shard before verification: %w", err)
			}
			fmt.Printf("✓ Backed up shard to %s\n", backupPath)
		}

		s, err := store.NewStore(store.Options{DataDir: dataDir, Create: false})
		if err != nil {
			return fmt.Errorf("failed to open shard: %w", err)
		}
		defer s.Close()

		var problems []string

		metainfo, err := s.GetMetainfo()
		if err != nil {
			return fmt.Errorf("failed to read metainfo: %w", err)
		}
		fmt.Printf("Metainfo regions: %d\n", len(metainfo.Entries()))

		statuses := s.Catalog.List()
		fmt.Printf("Secondary indexes: %d\n", len(statuses))
		for _, st := range statuses {
			wantReady := st.PostConstructionComplete && !st.BeingDeleted
			if st.Ready != wantReady {
				problems = append(problems, fmt.Sprintf("index `%s`: ready=%v inconsistent with post_construction_complete=%v being_deleted=%v",
					st.Name, st.Ready, st.PostConstructionComplete, st.BeingDeleted))
			}
		}

		if len(problems) == 0 {
			fmt.Println("✓ Shard invariants hold")
			return nil
		}

		fmt.Println("Invariant violations found:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d invariant violation(s)", len(problems))
	},
}

func init() {
	verifyCmd.Flags().String("data-dir", "", "Shard data directory (defaults to --data-dir on the root command)")
	verifyCmd.Flags().String("backup", "", "If set, copy the shard database here before verifying")
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
