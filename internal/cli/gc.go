package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim unreferenced blob storage",
	Long: `GC deletes blob content that has been unreferenced by any output
row for at least the configured grace_period_days, then removes the
corresponding registry entries.`,
	Example: `  irs gc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		reclaimed, bytes, err := s.GC(context.Background())
		if err != nil {
			return fmt.Errorf("gc: %w", err)
		}
		fmt.Printf("gc: reclaimed %d blobs (%s)\n", reclaimed, humanize.Bytes(uint64(bytes)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
