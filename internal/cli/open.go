package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/capture"
	"github.com/scbrown/irs/internal/model"
)

var (
	openCmd          string
	openCWD          string
	openSessionID    string
	openSourceClient string
	openTag          string
	openFormatHint   string
	openMetadata     []string
)

var openAttemptCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new attempt and print its id",
	Long: `Open records the start of a command invocation and prints the new
attempt id to stdout. A hook script exports it as INVOCATION_ID so that
irs append/close/events and any nested invocation can find it.

If INVOCATION_ID is already set in the environment, open prints that id
unchanged instead of allocating a new one — a nested producer reuses its
parent's attempt identity rather than recording a second attempt.`,
	Example: `  id=$(irs open --cmd "go test ./..." --session-id s1 --cwd "$PWD")
  export INVOCATION_ID="$id"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if id, ok := capture.ResolveAttemptID(); ok {
			fmt.Println(id)
			return nil
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		meta, err := parseMetadata(openMetadata)
		if err != nil {
			return err
		}

		id, err := s.Capture.OpenAttempt(context.Background(), capture.OpenAttemptParams{
			Cmd:          openCmd,
			CWD:          openCWD,
			SessionID:    openSessionID,
			SourceClient: openSourceClient,
			FormatHint:   openFormatHint,
			Tag:          openTag,
			Metadata:     meta,
		})
		if err != nil {
			return fmt.Errorf("open attempt: %w", err)
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	openAttemptCmd.Flags().StringVar(&openCmd, "cmd", "", "the command line being invoked")
	openAttemptCmd.Flags().StringVar(&openCWD, "cwd", "", "working directory the command runs in")
	openAttemptCmd.Flags().StringVar(&openSessionID, "session-id", "", "grouping session id")
	openAttemptCmd.Flags().StringVar(&openSourceClient, "source-client", "", "identifier of the producer (e.g. claude-code)")
	openAttemptCmd.Flags().StringVar(&openTag, "tag", "", "free-form tag for later filtering")
	openAttemptCmd.Flags().StringVar(&openFormatHint, "format-hint", "", "override format_hint instead of auto-detecting from --cmd")
	openAttemptCmd.Flags().StringArrayVar(&openMetadata, "metadata", nil, "key=value metadata pair; repeatable")
	rootCmd.AddCommand(openAttemptCmd)
}

// parseMetadata converts "key=value" pairs into model.Metadata,
// storing each value as a JSON string.
func parseMetadata(pairs []string) (model.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(model.Metadata, len(pairs))
	for _, p := range pairs {
		key, value, ok := splitKV(p)
		if !ok {
			return nil, fmt.Errorf("invalid --metadata %q, want key=value", p)
		}
		if err := meta.Set(key, value); err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", key, err)
		}
	}
	return meta, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := range s {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
