package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/capture"
	"github.com/scbrown/irs/internal/model"
)

var (
	appendAttempt        string
	appendStream         string
	appendExecutableHint string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Store stdin as one stream's output for an attempt",
	Long: `Append reads stdin to EOF and records it as the named stream's
output for an attempt in a single call: there is no running facade
process across separate irs invocations, so append combines what would
otherwise be separate append_output/finish_output calls into one.`,
	Example: `  go test ./... 2>&1 | irs append --attempt "$id" --stream stdout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveAttempt(appendAttempt)
		if err != nil {
			return err
		}
		stream, err := parseStream(appendStream)
		if err != nil {
			return err
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		if err := s.Capture.AppendOutput(id, stream, data); err != nil {
			return fmt.Errorf("append output: %w", err)
		}
		outputID, err := s.Capture.FinishOutput(context.Background(), id, stream, appendExecutableHint)
		if err != nil {
			return fmt.Errorf("finish output: %w", err)
		}
		if jsonOutput {
			fmt.Println(outputID)
		}
		return nil
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendAttempt, "attempt", "", "attempt id (defaults to $INVOCATION_ID)")
	appendCmd.Flags().StringVar(&appendStream, "stream", string(model.StreamStdout), "stream: stdout, stderr or combined")
	appendCmd.Flags().StringVar(&appendExecutableHint, "executable-hint", "", "executable name, used as a hint in the blob file name")
	rootCmd.AddCommand(appendCmd)
}

// resolveAttempt parses an explicit --attempt flag value, falling back
// to the inherited INVOCATION_ID environment variable.
func resolveAttempt(flag string) (uuid.UUID, error) {
	if flag != "" {
		id, err := uuid.Parse(flag)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --attempt %q: %w", flag, err)
		}
		return id, nil
	}
	if id, ok := capture.ResolveAttemptID(); ok {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("no attempt id: pass --attempt or set %s", capture.InvocationIDEnvVar)
}

func parseStream(s string) (model.Stream, error) {
	switch model.Stream(s) {
	case model.StreamStdout, model.StreamStderr, model.StreamCombined:
		return model.Stream(s), nil
	default:
		return "", fmt.Errorf("invalid --stream %q, want stdout, stderr or combined", s)
	}
}
