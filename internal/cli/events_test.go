package cli

import (
	"testing"
)

func TestEventsCmdRequiresMessage(t *testing.T) {
	withTempStore(t)
	id := openTestAttempt(t, "go vet ./...")

	rootCmd.SetArgs([]string{"events", "--attempt", id, "--type", "compile-error"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error without --message")
	}
}

func TestEventsCmdRecordsEvent(t *testing.T) {
	withTempStore(t)
	id := openTestAttempt(t, "go vet ./...")

	rootCmd.SetArgs([]string{
		"events", "--attempt", id,
		"--severity", "error", "--type", "compile-error",
		"--message", "undefined: foo", "--ref-file", "main.go", "--ref-line", "12",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}
