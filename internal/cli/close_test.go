package cli

import (
	"context"
	"testing"

	"github.com/scbrown/irs/internal/query"
)

func TestCloseAttemptCmdRecordsOutcome(t *testing.T) {
	withTempStore(t)
	id := openTestAttempt(t, "go build ./...")

	rootCmd.SetArgs([]string{"close", "--attempt", id, "--exit-code", "1", "--duration-ms", "250"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	s, err := openStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	invs, err := s.Query.ListInvocations(context.Background(), query.Filter{})
	if err != nil {
		t.Fatalf("list invocations: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(invs))
	}
	if invs[0].ExitCode == nil || *invs[0].ExitCode != 1 {
		t.Errorf("exit code: got %v, want 1", invs[0].ExitCode)
	}
	if invs[0].DurationMs != 250 {
		t.Errorf("duration: got %d, want 250", invs[0].DurationMs)
	}
}

func TestCloseAttemptCmdMissingAttempt(t *testing.T) {
	withTempStore(t)
	t.Setenv("INVOCATION_ID", "")

	rootCmd.SetArgs([]string{"close", "--exit-code", "0"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error with no attempt id")
	}
}
