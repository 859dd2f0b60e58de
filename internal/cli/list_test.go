package cli

import (
	"strings"
	"testing"
)

func TestListCmdEmpty(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"list"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "No invocations found") {
		t.Errorf("expected empty-state message, got: %s", output)
	}
}

func TestListCmdShowsOpenedAttempt(t *testing.T) {
	withTempStore(t)
	openTestAttempt(t, "go test ./...")

	rootCmd.SetArgs([]string{"list"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "go test ./...") {
		t.Errorf("expected cmd in listing, got: %s", output)
	}
	if !strings.Contains(output, "pending") {
		t.Errorf("expected pending status, got: %s", output)
	}
}

func TestListCmdInvalidStatus(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"list", "--status", "bogus"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for invalid --status")
	}
}
