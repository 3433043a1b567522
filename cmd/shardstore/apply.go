package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shardcore/engine/pkg/types"
)

// applyCmd reconciles a shard's secondary-index catalog against a
// declared desired state, the same "declarative manifest" shape as the
// teacher's own `apply -f`, retargeted at spec §4.4's set_sindexes
// bulk-reconcile operation instead of cluster resources.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile the sindex catalog against a YAML manifest",
	Long: `apply reads a sindex manifest and reconciles the shard's
catalog to match it: indexes absent from the manifest are dropped,
indexes whose definition changed are dropped and recreated, and new
entries are added. This is set_sindexes (spec §4.4), not a per-index
command.

Example manifest:

  indexes:
    by_email:
      multi: false
      geo: false
    by_tag:
      multi: true
      geo: false
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}

		var manifest sindexManifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("failed to parse manifest: %w", err)
		}

		desired := make(map[string]types.SindexDefinition, len(manifest.Indexes))
		for name, def := range manifest.Indexes {
			desired[name] = types.SindexDefinition{Multi: def.Multi, Geo: def.Geo}
		}

		s, err := openStoreForInspection(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		created, err := s.Catalog.SetSindexes(desired)
		if err != nil {
			return fmt.Errorf("failed to reconcile sindexes: %w", err)
		}

		fmt.Printf("✓ Reconciled %d desired index(es)\n", len(desired))
		for _, name := range created {
			fmt.Printf("  + created %s\n", name)
		}
		return nil
	},
}

type sindexManifest struct {
	Indexes map[string]sindexManifestEntry `yaml:"indexes"`
}

type sindexManifestEntry struct {
	Multi bool `yaml:"multi"`
	Geo   bool `yaml:"geo"`
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().String("data-dir", "", "Shard data directory (defaults to --data-dir on the root command)")
	_ = applyCmd.MarkFlagRequired("file")

	sindexCmd.AddCommand(applyCmd)
}
