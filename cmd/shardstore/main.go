package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shardcore/engine/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shardstore",
	Short: "shardstore operates a single document-store shard",
	Long: `shardstore runs and inspects one shard of the document store:
the bbolt-backed primary B-tree slice, its secondary-index catalog,
and the backfill producer/consumer paths between shards.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./shard-data", "Shard data directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sindexCmd)
	rootCmd.AddCommand(verifyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func dataDirFlag(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("data-dir")
	if dir == "" {
		dir, _ = cmd.Root().PersistentFlags().GetString("data-dir")
	}
	return dir
}
