package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var archiveRelation string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move old partitions from the recent tier to the archive tier",
	Long: `Archive moves every partition of a relation older than the
configured hot_days window from the recent shard tier into the
archive tier, repartitioned by year/week instead of by date. It is a
no-op in single-writer mode.`,
	Example: `  irs archive --relation attempts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rel, err := parseRelation(archiveRelation)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		result, err := s.Archive(context.Background(), rel)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		fmt.Printf("archive: moved %d partitions (%d shards, %d blobs migrated)\n", result.PartitionsMoved, result.ShardsMoved, result.BlobsMigrated)
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&archiveRelation, "relation", "attempts", "relation: attempts, outcomes, outputs or events")
	rootCmd.AddCommand(archiveCmd)
}
