package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/query"
)

var (
	statsSince     string
	statsSessionID string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics about recorded invocations",
	Long: `Stats displays aggregate counts by derived status: pending
(no outcome row yet), orphaned (outcome exists but has no exit code),
and completed.`,
	Example: `  irs stats
  irs stats --since 2026-08-01
  irs stats --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		filter := query.Filter{SessionID: statsSessionID, Since: statsSince}
		st, err := s.Query.Stats(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		printStatsText(st)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "", "limit to invocations on or after this date (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsSessionID, "session-id", "", "limit to a single session")
	rootCmd.AddCommand(statsCmd)
}

func printStatsText(st query.Stats) {
	color := isTTY(os.Stdout)
	fmt.Printf("%s %d\n", bold("Total:", color), st.Total)
	fmt.Printf("%s %d\n", bold("Pending:", color), st.Pending)
	fmt.Printf("%s %d\n", bold("Orphaned:", color), st.Orphaned)
	fmt.Printf("%s %d\n", bold("Completed:", color), st.Completed)
}
