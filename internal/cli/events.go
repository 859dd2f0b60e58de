package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/model"
)

var (
	eventsAttempt     string
	eventsSeverity    string
	eventsType        string
	eventsMessage     string
	eventsRefFile     string
	eventsRefLine     int
	eventsRefColumn   int
	eventsFormatUsed  string
	eventsErrorCode   string
	eventsToolName    string
	eventsCategory    string
	eventsFingerprint string
	eventsTestName    string
	eventsTestStatus  string
	eventsMetadata    []string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Record one diagnostic event for an attempt",
	Long: `Events lets a producer attach a single structured diagnostic
finding to an attempt. Findings are recorded only through this
command: irs close runs in a process of its own and holds no buffered
output to synthesize events from. Call it once per finding; a format parser wrapping a build or test tool typically
invokes it once for every error or test failure it extracts.`,
	Example: `  irs events --attempt "$id" --severity error --type compile-error \
    --message "undefined: foo" --ref-file main.go --ref-line 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveAttempt(eventsAttempt)
		if err != nil {
			return err
		}
		if eventsMessage == "" {
			return fmt.Errorf("--message is required")
		}
		meta, err := parseMetadata(eventsMetadata)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		event := model.Event{
			Severity:    model.Severity(eventsSeverity),
			EventType:   eventsType,
			RefFile:     eventsRefFile,
			RefLine:     eventsRefLine,
			RefColumn:   eventsRefColumn,
			Message:     eventsMessage,
			FormatUsed:  eventsFormatUsed,
			ErrorCode:   eventsErrorCode,
			ToolName:    eventsToolName,
			Category:    eventsCategory,
			Fingerprint: eventsFingerprint,
			TestName:    eventsTestName,
			TestStatus:  eventsTestStatus,
			Metadata:    meta,
		}

		if err := s.Capture.RecordEvents(context.Background(), id, []model.Event{event}); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsAttempt, "attempt", "", "attempt id (defaults to $INVOCATION_ID)")
	eventsCmd.Flags().StringVar(&eventsSeverity, "severity", string(model.SeverityError), "error, warning, info or note")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "short event type, e.g. compile-error or test-failure")
	eventsCmd.Flags().StringVar(&eventsMessage, "message", "", "human-readable event message (required)")
	eventsCmd.Flags().StringVar(&eventsRefFile, "ref-file", "", "source file the event refers to")
	eventsCmd.Flags().IntVar(&eventsRefLine, "ref-line", 0, "source line the event refers to")
	eventsCmd.Flags().IntVar(&eventsRefColumn, "ref-column", 0, "source column the event refers to")
	eventsCmd.Flags().StringVar(&eventsFormatUsed, "format-used", "", "name of the format parser that produced this event")
	eventsCmd.Flags().StringVar(&eventsErrorCode, "error-code", "", "tool-specific error code, e.g. a compiler diagnostic id")
	eventsCmd.Flags().StringVar(&eventsToolName, "tool-name", "", "name of the underlying tool, e.g. golangci-lint")
	eventsCmd.Flags().StringVar(&eventsCategory, "category", "", "free-form grouping category")
	eventsCmd.Flags().StringVar(&eventsFingerprint, "fingerprint", "", "stable dedup key for this finding")
	eventsCmd.Flags().StringVar(&eventsTestName, "test-name", "", "name of the test this event belongs to")
	eventsCmd.Flags().StringVar(&eventsTestStatus, "test-status", "", "pass, fail or skip, for test-shaped events")
	eventsCmd.Flags().StringArrayVar(&eventsMetadata, "metadata", nil, "key=value metadata pair; repeatable")
	rootCmd.AddCommand(eventsCmd)
}
