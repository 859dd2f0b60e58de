// Package capture implements the Capture Facade (C9): the producer's
// view of the store, routing rows to whichever physical backend
// (internal/embedded or internal/shard) is selected and streaming
// output bytes through internal/blobstore.
package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/blobstore"
	"github.com/scbrown/irs/internal/diagnostics"
	"github.com/scbrown/irs/internal/formathint"
	"github.com/scbrown/irs/internal/idgen"
	"github.com/scbrown/irs/internal/model"
)

// diagnosticTextCap bounds how much of an attempt's stdout/stderr this
// facade retains in memory for the heuristic event-synthesis fallback.
const diagnosticTextCap = 64 * 1024

// Backend is the row-insert capability a physical backend provides.
// internal/embedded.Writer and internal/shard.RowWriter both satisfy
// it.
type Backend interface {
	InsertAttempt(ctx context.Context, a model.Attempt) error
	InsertOutcome(ctx context.Context, o model.Outcome) error
	InsertOutput(ctx context.Context, o model.Output) error
	InsertEvent(ctx context.Context, e model.Event) error
}

// Facade is the producer-facing entry point. mu guards only the
// in-memory spill-file, diagnostic-text and recorded-events maps;
// backend writes are made outside it, so any serialization of writes
// is the backend's own (the embedded engine's single connection in
// single-writer mode).
type Facade struct {
	backend Backend
	blobs   *blobstore.Store
	hints   *formathint.Set

	mu        sync.Mutex
	pending   map[uuid.UUID]map[model.Stream]*os.File // spill files per attempt/stream
	diagText  map[uuid.UUID]string                     // stdout+stderr retained for heuristic synthesis
	hasEvents map[uuid.UUID]bool                       // true once the producer has called RecordEvents
}

// New builds a Facade over backend and blobs.
func New(backend Backend, blobs *blobstore.Store) *Facade {
	return &Facade{
		backend:   backend,
		blobs:     blobs,
		pending:   make(map[uuid.UUID]map[model.Stream]*os.File),
		diagText:  make(map[uuid.UUID]string),
		hasEvents: make(map[uuid.UUID]bool),
	}
}

// SetFormatHints installs the pattern set OpenAttempt consults to fill
// in Attempt.FormatHint when the caller leaves it blank.
func (f *Facade) SetFormatHints(hints *formathint.Set) {
	f.hints = hints
}

// OpenAttemptParams mirrors open_attempt's argument list.
type OpenAttemptParams struct {
	Cmd          string
	CWD          string
	SessionID    string
	SourceClient string
	MachineID    string
	Hostname     string
	RunnerID     string
	FormatHint   string
	Tag          string
	Metadata     model.Metadata
}

// OpenAttempt allocates a new time-ordered id, writes the attempt row,
// and returns the id immediately. It does not consult INVOCATION_ID: a
// caller that inherits an attempt id (see ResolveAttemptID) uses that
// id directly and does not call OpenAttempt for it.
func (f *Facade) OpenAttempt(ctx context.Context, p OpenAttemptParams) (uuid.UUID, error) {
	id := idgen.New()
	now := time.Now().UTC()
	formatHint := p.FormatHint
	if formatHint == "" && f.hints != nil {
		formatHint = f.hints.Detect(p.Cmd)
	}
	a := model.Attempt{
		ID:           id,
		Timestamp:    now,
		Cmd:          p.Cmd,
		CWD:          p.CWD,
		SessionID:    p.SessionID,
		SourceClient: p.SourceClient,
		MachineID:    p.MachineID,
		Hostname:     p.Hostname,
		RunnerID:     p.RunnerID,
		FormatHint:   formatHint,
		Tag:          p.Tag,
		Metadata:     p.Metadata,
		Date:         model.PartitionDate(now),
	}
	if err := f.backend.InsertAttempt(ctx, a); err != nil {
		return uuid.Nil, fmt.Errorf("capture: open attempt: %w", err)
	}
	return id, nil
}

// AppendOutput accumulates bytes for attemptID's stream in a spill
// file, deferring the content-addressed write to FinishOutput so that
// a long-running command's output is hashed exactly once, in full.
func (f *Facade) AppendOutput(attemptID uuid.UUID, stream model.Stream, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	streams, ok := f.pending[attemptID]
	if !ok {
		streams = make(map[model.Stream]*os.File)
		f.pending[attemptID] = streams
	}
	file, ok := streams[stream]
	if !ok {
		tmp, err := os.CreateTemp("", "irs-output-*.spill")
		if err != nil {
			return fmt.Errorf("capture: create spill file: %w", err)
		}
		streams[stream] = tmp
		file = tmp
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("capture: write spill file: %w", err)
	}
	return nil
}

// FinishOutput finalizes attemptID's stream: hashes and stores the
// accumulated bytes via the blob store, inserts an output row, and
// returns its id. Calling FinishOutput for a stream with no prior
// AppendOutput call records a zero-length output.
func (f *Facade) FinishOutput(ctx context.Context, attemptID uuid.UUID, stream model.Stream, executableHint string) (uuid.UUID, error) {
	f.mu.Lock()
	file := f.takeSpillFile(attemptID, stream)
	f.mu.Unlock()

	var data []byte
	if file != nil {
		defer os.Remove(file.Name())
		defer file.Close()
		if _, err := file.Seek(0, 0); err != nil {
			return uuid.Nil, fmt.Errorf("capture: seek spill file: %w", err)
		}
		buf := make([]byte, 0, 4096)
		tmp := make([]byte, 4096)
		for {
			n, err := file.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
			}
			if err != nil {
				break
			}
		}
		data = buf
	}

	if stream == model.StreamStdout || stream == model.StreamStderr {
		f.retainDiagText(attemptID, data)
	}

	ref, err := f.blobs.Put(ctx, data, executableHint)
	if err != nil {
		return uuid.Nil, fmt.Errorf("capture: store output bytes: %w", err)
	}

	now := time.Now().UTC()
	outputID := idgen.New()
	out := model.Output{
		ID:           outputID,
		InvocationID: attemptID,
		Stream:       stream,
		ContentHash:  ref.Hash,
		ByteLength:   int64(len(data)),
		StorageType:  ref.StorageType,
		StorageRef:   ref.StorageRef,
		Date:         model.PartitionDate(now),
	}
	if err := f.backend.InsertOutput(ctx, out); err != nil {
		return uuid.Nil, fmt.Errorf("capture: insert output row: %w", err)
	}
	return outputID, nil
}

// retainDiagText appends data to the bounded stdout/stderr buffer kept
// for CloseAttempt's heuristic event-synthesis fallback.
func (f *Facade) retainDiagText(attemptID uuid.UUID, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.diagText[attemptID]
	if len(cur) >= diagnosticTextCap {
		return
	}
	room := diagnosticTextCap - len(cur)
	if len(data) > room {
		data = data[:room]
	}
	f.diagText[attemptID] = cur + string(data)
}

func (f *Facade) takeSpillFile(attemptID uuid.UUID, stream model.Stream) *os.File {
	streams, ok := f.pending[attemptID]
	if !ok {
		return nil
	}
	file := streams[stream]
	delete(streams, stream)
	if len(streams) == 0 {
		delete(f.pending, attemptID)
	}
	return file
}

// CloseAttemptParams mirrors close_attempt's argument list.
type CloseAttemptParams struct {
	ExitCode   *int
	DurationMs int64
	Signal     *int
	Timeout    bool
	Metadata   model.Metadata
}

// CloseAttempt writes the attempt's outcome row. A duplicate close
// (the attempt already has an outcome — including one written by a
// concurrent recovery sweep) surfaces as a DuplicateOutcome error,
// unchanged, for the caller to inspect.
func (f *Facade) CloseAttempt(ctx context.Context, attemptID uuid.UUID, p CloseAttemptParams) error {
	now := time.Now().UTC()
	o := model.Outcome{
		AttemptID:   attemptID,
		CompletedAt: now,
		ExitCode:    p.ExitCode,
		DurationMs:  p.DurationMs,
		Signal:      p.Signal,
		Timeout:     p.Timeout,
		Metadata:    p.Metadata,
		Date:        model.PartitionDate(now),
	}
	if err := f.backend.InsertOutcome(ctx, o); err != nil {
		return fmt.Errorf("capture: close attempt: %w", err)
	}
	if err := f.synthesizeIfNeeded(ctx, attemptID); err != nil {
		return fmt.Errorf("capture: synthesize events: %w", err)
	}
	return nil
}

// synthesizeIfNeeded runs the heuristic event fallback for attemptID
// when the producer never called RecordEvents itself, consuming the
// buffered stdout/stderr text collected by FinishOutput.
func (f *Facade) synthesizeIfNeeded(ctx context.Context, attemptID uuid.UUID) error {
	f.mu.Lock()
	alreadyRecorded := f.hasEvents[attemptID]
	text := f.diagText[attemptID]
	delete(f.diagText, attemptID)
	delete(f.hasEvents, attemptID)
	f.mu.Unlock()

	if alreadyRecorded || text == "" {
		return nil
	}
	events := diagnostics.Synthesize(text)
	for i := range events {
		events[i].FormatUsed = "heuristic"
	}
	return f.RecordEvents(ctx, attemptID, events)
}

// RecordEvents inserts one row per event, stamping InvocationID, a
// fresh id, and a partition date on any event missing one. Once
// called for an attempt, the heuristic fallback in CloseAttempt is
// suppressed for it.
func (f *Facade) RecordEvents(ctx context.Context, attemptID uuid.UUID, events []model.Event) error {
	if len(events) > 0 {
		f.mu.Lock()
		f.hasEvents[attemptID] = true
		f.mu.Unlock()
	}
	now := time.Now().UTC()
	for _, e := range events {
		e.InvocationID = attemptID
		if e.ID == uuid.Nil {
			e.ID = idgen.New()
		}
		if e.Date == "" {
			e.Date = model.PartitionDate(now)
		}
		if err := f.backend.InsertEvent(ctx, e); err != nil {
			return fmt.Errorf("capture: record event: %w", err)
		}
	}
	return nil
}
