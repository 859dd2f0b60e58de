package capture

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/blobstore"
	"github.com/scbrown/irs/internal/embedded"
	"github.com/scbrown/irs/internal/model"
)

func newTestFacade(t *testing.T) (*Facade, *embedded.DB) {
	t.Helper()
	db, err := embedded.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("embedded.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	reg := embedded.NewRegistry(db)
	blobs := blobstore.New(t.TempDir(), reg, 4096, model.CompressionNone)
	return New(embedded.NewWriter(db), blobs), db
}

func TestOpenAppendFinishClose(t *testing.T) {
	f, db := newTestFacade(t)
	ctx := context.Background()

	id, err := f.OpenAttempt(ctx, OpenAttemptParams{Cmd: "echo hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	if err := f.AppendOutput(id, model.StreamStdout, []byte("hello ")); err != nil {
		t.Fatalf("AppendOutput: %v", err)
	}
	if err := f.AppendOutput(id, model.StreamStdout, []byte("world\n")); err != nil {
		t.Fatalf("AppendOutput 2: %v", err)
	}
	outputID, err := f.FinishOutput(ctx, id, model.StreamStdout, "echo")
	if err != nil {
		t.Fatalf("FinishOutput: %v", err)
	}
	if outputID == uuid.Nil {
		t.Fatal("FinishOutput returned nil id")
	}

	exitCode := 0
	if err := f.CloseAttempt(ctx, id, CloseAttemptParams{ExitCode: &exitCode}); err != nil {
		t.Fatalf("CloseAttempt: %v", err)
	}

	invs, err := db.QueryInvocations(ctx)
	if err != nil {
		t.Fatalf("QueryInvocations: %v", err)
	}
	if len(invs) != 1 || invs[0].Status != model.StatusCompleted {
		t.Fatalf("invs = %+v, want one completed invocation", invs)
	}
}

func TestCloseAttemptTwiceIsDuplicateOutcome(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	id, err := f.OpenAttempt(ctx, OpenAttemptParams{Cmd: "echo hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	exitCode := 0
	if err := f.CloseAttempt(ctx, id, CloseAttemptParams{ExitCode: &exitCode}); err != nil {
		t.Fatalf("first CloseAttempt: %v", err)
	}
	err = f.CloseAttempt(ctx, id, CloseAttemptParams{ExitCode: &exitCode})
	if !model.IsKind(err, model.KindDuplicateOutcome) {
		t.Fatalf("second CloseAttempt error = %v, want KindDuplicateOutcome", err)
	}
}

func TestFinishOutputWithNoAppendIsZeroLength(t *testing.T) {
	f, db := newTestFacade(t)
	ctx := context.Background()

	id, err := f.OpenAttempt(ctx, OpenAttemptParams{Cmd: "true", SessionID: "s1"})
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	outputID, err := f.FinishOutput(ctx, id, model.StreamStdout, "")
	if err != nil {
		t.Fatalf("FinishOutput: %v", err)
	}
	raw, err := db.FetchRows(ctx, "outputs", []string{outputID.String()})
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	var outs []model.Output
	if err := json.Unmarshal(raw, &outs); err != nil {
		t.Fatalf("decode outputs: %v", err)
	}
	if len(outs) != 1 || outs[0].ByteLength != 0 {
		t.Fatalf("outputs = %+v, want one zero-length output", outs)
	}
}

func TestResolveAttemptIDEnv(t *testing.T) {
	if _, ok := ResolveAttemptID(); ok {
		t.Fatal("ResolveAttemptID should report false with no env var set")
	}
	id := uuid.New()
	t.Setenv(InvocationIDEnvVar, id.String())
	got, ok := ResolveAttemptID()
	if !ok || got != id {
		t.Fatalf("ResolveAttemptID = %v, %v, want %v, true", got, ok, id)
	}
}
