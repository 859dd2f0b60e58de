package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/analyze"
	"github.com/scbrown/irs/internal/shard"
)

var relationNames = []string{
	string(shard.RelationAttempts), string(shard.RelationOutcomes),
	string(shard.RelationOutputs), string(shard.RelationEvents),
}

var (
	compactRelation string
	compactDate     string
	compactSession  string
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Merge a session's small shards for one partition",
	Long: `Compact merges a session's eligible shard files for one relation's
date partition into a single new shard, once the shard count crosses
the configured threshold. It is a no-op in single-writer mode, where
there are no shard files to merge.`,
	Example: `  irs compact --relation attempts --date 2026-08-01 --session s1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rel, err := parseRelation(compactRelation)
		if err != nil {
			return err
		}
		if compactDate == "" {
			return fmt.Errorf("--date is required")
		}
		if compactSession == "" {
			return fmt.Errorf("--session is required")
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		result, err := s.Compact(rel, compactDate, compactSession)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}

		if result.Skipped {
			fmt.Println("compact: skipped (single-writer mode or threshold not reached)")
			return nil
		}
		fmt.Printf("compact: merged %d shards (%d rows) into %s\n",
			result.SourceShards, result.RowsMerged, result.NewShard)
		return nil
	},
}

func init() {
	compactCmd.Flags().StringVar(&compactRelation, "relation", "attempts", "relation: attempts, outcomes, outputs or events")
	compactCmd.Flags().StringVar(&compactDate, "date", "", "partition date, YYYY-MM-DD (required)")
	compactCmd.Flags().StringVar(&compactSession, "session", "", "session id to compact (required)")
	rootCmd.AddCommand(compactCmd)
}

func parseRelation(s string) (shard.Relation, error) {
	switch shard.Relation(s) {
	case shard.RelationAttempts, shard.RelationOutcomes, shard.RelationOutputs, shard.RelationEvents:
		return shard.Relation(s), nil
	default:
		hint := analyze.Hint(analyze.Suggest(s, relationNames))
		return "", fmt.Errorf("invalid --relation %q, want attempts, outcomes, outputs or events%s", s, hint)
	}
}
