package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/analyze"
	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/query"
)

var statusNames = []string{"pending", "orphaned", "completed"}

var (
	listSince     string
	listSessionID string
	listStatus    string
	listTag       string
	listLimit     int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent invocations",
	Long: `List displays a table of recorded invocations, newest first,
joining each attempt with its outcome when one has been recorded.`,
	Example: `  irs list
  irs list --since 2026-08-01
  irs list --session-id s1 --status pending
  irs list --tag ci --limit 20
  irs list --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		filter := query.Filter{
			SessionID: listSessionID,
			Tag:       listTag,
			Since:     listSince,
			Limit:     listLimit,
		}
		if listStatus != "" {
			norm := statusFromFlag(listStatus)
			if norm == "" {
				hint := analyze.Hint(analyze.Suggest(listStatus, statusNames))
				return fmt.Errorf("invalid --status %q, want pending, orphaned or completed%s", listStatus, hint)
			}
			filter.Status = model.Status(norm)
		}

		invs, err := s.Query.ListInvocations(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("list invocations: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(invs)
		}

		if len(invs) == 0 {
			fmt.Println("No invocations found.")
			return nil
		}

		t := NewTable(os.Stdout, "TIMESTAMP", "SESSION", "STATUS", "EXIT", "CMD")
		for _, inv := range invs {
			exit := "-"
			if inv.ExitCode != nil {
				exit = strconv.Itoa(*inv.ExitCode)
			}
			t.Row(
				inv.Timestamp.Format(time.DateTime),
				inv.SessionID,
				string(inv.Status),
				exit,
				truncate(inv.Cmd, 60),
			)
		}
		return t.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "show invocations on or after this date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listSessionID, "session-id", "", "filter by session id")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status: pending, orphaned or completed")
	listCmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of results")
	rootCmd.AddCommand(listCmd)
}

// statusFromFlag normalizes a --status value, returning "" if it
// doesn't match a known status.
func statusFromFlag(s string) string {
	switch strings.ToLower(s) {
	case "pending", "orphaned", "completed":
		return strings.ToLower(s)
	default:
		return ""
	}
}
