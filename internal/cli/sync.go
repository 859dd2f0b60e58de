package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/sync"
)

var (
	syncRemoteURL string
	syncSince     string
	syncClient    string
	syncTag       string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate rows against a remote store",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy rows present locally but absent on the remote",
	Example: `  irs sync push --remote-url http://peer:7273
  irs sync push --since 2026-08-01 --tag ci`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		sel := sync.Selection{Since: syncSince, Client: syncClient, Tag: syncTag}
		var result sync.Result
		if syncRemoteURL != "" {
			result, err = s.SyncEngine(syncRemoteURL, "").Push(context.Background(), sel)
		} else {
			result, err = s.Push(context.Background(), sel)
		}
		if err != nil {
			return fmt.Errorf("sync push: %w", err)
		}
		printSyncResult("push", result)
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Copy rows present on the remote but absent locally",
	Example: `  irs sync pull --remote-url http://peer:7273
  irs sync pull --since 2026-08-01 --tag ci`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		sel := sync.Selection{Since: syncSince, Client: syncClient, Tag: syncTag}
		var result sync.Result
		if syncRemoteURL != "" {
			result, err = s.SyncEngine(syncRemoteURL, "").Pull(context.Background(), sel)
		} else {
			result, err = s.Pull(context.Background(), sel)
		}
		if err != nil {
			return fmt.Errorf("sync pull: %w", err)
		}
		printSyncResult("pull", result)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{syncPushCmd, syncPullCmd} {
		c.Flags().StringVar(&syncRemoteURL, "remote-url", "", "remote store base URL (defaults to the configured remote_url)")
		c.Flags().StringVar(&syncSince, "since", "", "only rows whose partition date is on or after this date (YYYY-MM-DD)")
		c.Flags().StringVar(&syncClient, "client", "", "only rows from this source client")
		c.Flags().StringVar(&syncTag, "tag", "", "only rows with this tag")
	}
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}

func printSyncResult(direction string, result sync.Result) {
	fmt.Printf("sync %s:\n", direction)
	for _, table := range []string{"sessions", "attempts", "outcomes", "outputs", "events"} {
		fmt.Printf("  %-10s %d\n", table, result.Transferred[table])
	}
}
