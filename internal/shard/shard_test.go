package shard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/model"
)

func TestWriteRowAndReadPartition(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	a := model.Attempt{ID: uuid.New(), Cmd: "echo hi", SessionID: "s1", Date: "2026-06-01"}
	path, err := w.WriteRow(context.Background(), RelationAttempts, a.Date, a.SessionID, "", a)
	if err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("shard file missing: %v", err)
	}

	var got []model.Attempt
	err = ReadPartition(RelationAttempts, root, a.Date, func() any { return new(model.Attempt) },
		func(row any) error {
			got = append(got, *row.(*model.Attempt))
			return nil
		})
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("got %+v, want one row with ID %v", got, a.ID)
	}
}

func TestReadPartitionSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, string(RelationAttempts), "date=2026-06-01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".tmp.abc123"), []byte(`{"id":"bad"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []model.Attempt
	err := ReadPartition(RelationAttempts, root, "2026-06-01", func() any { return new(model.Attempt) },
		func(row any) error {
			got = append(got, *row.(*model.Attempt))
			return nil
		})
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d rows, want 0 (temp file should be skipped)", len(got))
	}
}

func TestParseShardName(t *testing.T) {
	cases := []struct {
		name       string
		wantOK     bool
		compacted  bool
		generation int
	}{
		{"sess1--json--" + uuid.New().String() + ".shard", true, false, 0},
		{"sess1----" + uuid.New().String() + ".shard", true, false, 0},
		{"sess1--json--__compacted-3__--" + uuid.New().String() + ".shard", true, true, 3},
		{".tmp.deadbeef", true, false, 0},
		{"not-a-shard.txt", false, false, 0},
	}
	for _, c := range cases {
		p, ok := ParseShardName(c.name)
		if ok != c.wantOK {
			t.Errorf("ParseShardName(%q) ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if p.Compacted != c.compacted || p.Generation != c.generation {
			t.Errorf("ParseShardName(%q) = %+v, want compacted=%v gen=%d", c.name, p, c.compacted, c.generation)
		}
	}
}

func TestRowWriterPendingAttempts(t *testing.T) {
	root := t.TempDir()
	rw := NewRowWriter(root)
	ctx := context.Background()

	pendingAttempt := model.Attempt{ID: uuid.New(), Cmd: "sleep 1", SessionID: "s1", Date: "2026-06-01"}
	doneAttempt := model.Attempt{ID: uuid.New(), Cmd: "echo done", SessionID: "s1", Date: "2026-06-01"}

	if err := rw.InsertAttempt(ctx, pendingAttempt); err != nil {
		t.Fatalf("InsertAttempt (pending): %v", err)
	}
	if err := rw.InsertAttempt(ctx, doneAttempt); err != nil {
		t.Fatalf("InsertAttempt (done): %v", err)
	}
	exitCode := 0
	if err := rw.InsertOutcome(ctx, model.Outcome{AttemptID: doneAttempt.ID, ExitCode: &exitCode, Date: "2026-06-01"}); err != nil {
		t.Fatalf("InsertOutcome: %v", err)
	}

	pending, err := rw.PendingAttempts(ctx, []string{"2026-06-01"})
	if err != nil {
		t.Fatalf("PendingAttempts: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != pendingAttempt.ID {
		t.Fatalf("got %+v, want only %v pending", pending, pendingAttempt.ID)
	}
}
