package cli

import (
	"strings"
	"testing"
)

func TestStatsCmdCountsPending(t *testing.T) {
	withTempStore(t)
	openTestAttempt(t, "go test ./...")
	openTestAttempt(t, "go build ./...")

	rootCmd.SetArgs([]string{"stats"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "Total:") || !strings.Contains(output, "2") {
		t.Errorf("expected total of 2, got: %s", output)
	}
	if !strings.Contains(output, "Pending:") {
		t.Errorf("expected pending count, got: %s", output)
	}
}
