package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Sweep pending attempts for ones that died without an outcome",
	Long: `Recover scans every attempt with no outcome row yet and probes
whether its owning process is still alive. An attempt whose process
is known to be gone is marked orphaned at any age; one whose liveness
cannot be probed is marked orphaned once it is older than the
configured max_age_hours. Either way it stops counting as pending.`,
	Example: `  irs recover`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		result, err := s.RunRecovery(context.Background())
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		fmt.Printf("recover: scanned %d, marked %d orphaned\n", result.Scanned, result.Orphaned)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
