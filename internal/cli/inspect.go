package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/query"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <attempt-id>",
	Short: "Show full detail for one invocation",
	Long: `Inspect prints every recorded field for a single invocation,
resolved from the attempt id. Gateway has no single-row accessor, so
inspect lists every invocation and picks the matching one client-side
— acceptable for a one-off CLI lookup.`,
	Example: `  irs inspect 018f3b2a-0000-7000-8000-000000000000`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid attempt id %q: %w", args[0], err)
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		invs, err := s.Query.ListInvocations(context.Background(), query.Filter{})
		if err != nil {
			return fmt.Errorf("list invocations: %w", err)
		}

		var found *model.Invocation
		for i := range invs {
			if invs[i].ID == id {
				found = &invs[i]
				break
			}
		}
		if found == nil {
			return fmt.Errorf("no invocation found with id %s", id)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(found)
		}

		printInvocationText(*found)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func printInvocationText(inv model.Invocation) {
	color := isTTY(os.Stdout)
	fmt.Printf("%s %s\n", bold("id:", color), inv.ID)
	fmt.Printf("%s %s\n", bold("cmd:", color), inv.Cmd)
	fmt.Printf("%s %s\n", bold("cwd:", color), inv.CWD)
	fmt.Printf("%s %s\n", bold("session:", color), inv.SessionID)
	if inv.Tag != "" {
		fmt.Printf("%s %s\n", bold("tag:", color), inv.Tag)
	}
	if inv.SourceClient != "" {
		fmt.Printf("%s %s\n", bold("source:", color), inv.SourceClient)
	}
	if inv.FormatHint != "" {
		fmt.Printf("%s %s\n", bold("format hint:", color), inv.FormatHint)
	}
	fmt.Printf("%s %s (%s)\n", bold("timestamp:", color), inv.Timestamp.Format(time.RFC3339), humanize.Time(inv.Timestamp))
	fmt.Printf("%s %s\n", bold("status:", color), inv.Status)

	if inv.Status != model.StatusPending {
		fmt.Println()
		if inv.ExitCode != nil {
			fmt.Printf("%s %d\n", bold("exit code:", color), *inv.ExitCode)
		} else {
			fmt.Printf("%s (none)\n", bold("exit code:", color))
		}
		durationText := strings.TrimSpace(humanize.RelTime(time.Time{}, time.Time{}.Add(time.Duration(inv.DurationMs)*time.Millisecond), "", ""))
		fmt.Printf("%s %s (%dms)\n", bold("duration:", color), durationText, inv.DurationMs)
		if inv.Signal != nil {
			fmt.Printf("%s %d\n", bold("signal:", color), *inv.Signal)
		}
		if inv.Timeout {
			fmt.Printf("%s yes\n", bold("timed out:", color))
		}
		fmt.Printf("%s %s (%s)\n", bold("completed at:", color), inv.CompletedAt.Format(time.RFC3339), humanize.Time(inv.CompletedAt))
	}

	if len(inv.Metadata) > 0 {
		fmt.Println()
		fmt.Println(bold("metadata:", color))
		for k, v := range inv.Metadata {
			fmt.Printf("  %s = %s\n", k, v)
		}
	}
}
