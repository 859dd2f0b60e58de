package cli

import (
	"strings"
	"testing"
)

func TestCompactCmdSingleWriterSkips(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"compact", "--date", "2026-08-01", "--session", "s1"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "skipped") {
		t.Errorf("expected skip message in single-writer mode, got: %s", output)
	}
}

func TestCompactCmdRequiresDateAndSession(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"compact"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error without --date/--session")
	}
}

func TestCompactCmdInvalidRelation(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"compact", "--date", "2026-08-01", "--session", "s1", "--relation", "bogus"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for invalid --relation")
	}
}

func TestCompactCmdSuggestsCloseRelation(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"compact", "--date", "2026-08-01", "--session", "s1", "--relation", "attempt"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for near-miss --relation")
	}
	if !strings.Contains(err.Error(), "attempts") {
		t.Errorf("expected suggestion mentioning attempts, got: %v", err)
	}
}

func TestArchiveCmdRuns(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"archive"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "archive:") {
		t.Errorf("expected archive summary, got: %s", output)
	}
}

func TestGCCmdRuns(t *testing.T) {
	withTempStore(t)

	rootCmd.SetArgs([]string{"gc"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "gc:") {
		t.Errorf("expected gc summary, got: %s", output)
	}
}

func TestRecoverCmdRuns(t *testing.T) {
	withTempStore(t)
	openTestAttempt(t, "go test ./...")

	rootCmd.SetArgs([]string{"recover"})
	output := captureStdout(t, func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	if !strings.Contains(output, "recover:") {
		t.Errorf("expected recover summary, got: %s", output)
	}
}
