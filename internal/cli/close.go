package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/capture"
)

var (
	closeAttempt    string
	closeExitCode   int
	closeHasExit    bool
	closeDurationMs int64
	closeSignal     int
	closeHasSignal  bool
	closeTimeout    bool
	closeMetadata   []string
)

var closeAttemptCmd = &cobra.Command{
	Use:   "close",
	Short: "Record an attempt's outcome",
	Long: `Close writes the outcome row for an attempt: exit code, duration,
signal and timeout flag. The store's best-effort heuristic event pass
covers only stdout/stderr finished in the same process as the close;
irs append runs as a process of its own, so irs close synthesizes no
events for output captured through it.`,
	Example: `  irs close --attempt "$id" --exit-code 0 --duration-ms 1500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveAttempt(closeAttempt)
		if err != nil {
			return err
		}
		meta, err := parseMetadata(closeMetadata)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		params := capture.CloseAttemptParams{
			DurationMs: closeDurationMs,
			Timeout:    closeTimeout,
			Metadata:   meta,
		}
		if closeHasExit {
			params.ExitCode = &closeExitCode
		}
		if closeHasSignal {
			params.Signal = &closeSignal
		}

		if err := s.Capture.CloseAttempt(context.Background(), id, params); err != nil {
			return fmt.Errorf("close attempt: %w", err)
		}
		return nil
	},
}

func init() {
	closeAttemptCmd.Flags().StringVar(&closeAttempt, "attempt", "", "attempt id (defaults to $INVOCATION_ID)")
	closeAttemptCmd.Flags().IntVar(&closeExitCode, "exit-code", 0, "process exit code")
	closeAttemptCmd.Flags().Int64Var(&closeDurationMs, "duration-ms", 0, "wall-clock duration in milliseconds")
	closeAttemptCmd.Flags().IntVar(&closeSignal, "signal", 0, "terminating signal number, if any")
	closeAttemptCmd.Flags().BoolVar(&closeTimeout, "timeout", false, "mark the attempt as having timed out")
	closeAttemptCmd.Flags().StringArrayVar(&closeMetadata, "metadata", nil, "key=value metadata pair; repeatable")
	rootCmd.AddCommand(closeAttemptCmd)

	closeAttemptCmd.PreRun = func(cmd *cobra.Command, args []string) {
		closeHasExit = cmd.Flags().Changed("exit-code")
		closeHasSignal = cmd.Flags().Changed("signal")
	}
}
