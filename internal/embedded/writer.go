package embedded

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/model"
)

// Writer inserts rows directly into the embedded engine's tables. It
// satisfies the capture facade's backend capability interface (insert
// attempt row, insert outcome row, insert output row, insert event
// row) — the single-writer analogue of internal/shard.Writer.
type Writer struct {
	db *DB
}

// NewWriter wraps db as a row writer.
func NewWriter(db *DB) *Writer { return &Writer{db: db} }

func marshalMeta(m model.Metadata) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMeta(s sql.NullString) (model.Metadata, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m model.Metadata
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// InsertAttempt writes an attempt row. Retries on engine contention
// with exponential backoff.
func (w *Writer) InsertAttempt(ctx context.Context, a model.Attempt) error {
	meta, err := marshalMeta(a.Metadata)
	if err != nil {
		return err
	}
	return withRetry(ctx, func() error {
		_, err := w.db.sqlDB.ExecContext(ctx, `
			INSERT INTO attempts (id, timestamp, cmd, executable, cwd, session_id, tag,
				source_client, machine_id, hostname, format_hint, runner_id, metadata, date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), a.Timestamp.UTC().Format(timeLayout), a.Cmd, a.Executable, a.CWD,
			a.SessionID, a.Tag, a.SourceClient, a.MachineID, a.Hostname, a.FormatHint,
			a.RunnerID, meta, a.Date)
		return err
	})
}

// InsertOutcome writes an outcome row. A conflict on attempt_id
// (DuplicateOutcome) is returned as a typed error so callers — the
// capture facade on a normal close, the recovery coordinator on a
// race — can apply their own policy.
func (w *Writer) InsertOutcome(ctx context.Context, o model.Outcome) error {
	meta, err := marshalMeta(o.Metadata)
	if err != nil {
		return err
	}
	return withRetry(ctx, func() error {
		_, err := w.db.sqlDB.ExecContext(ctx, `
			INSERT INTO outcomes (attempt_id, completed_at, exit_code, duration_ms, signal, timeout, metadata, date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.AttemptID.String(), o.CompletedAt.UTC().Format(timeLayout), nullableInt(o.ExitCode),
			o.DurationMs, nullableInt(o.Signal), boolToInt(o.Timeout), meta, o.Date)
		if isUniqueViolation(err) {
			return model.NewError(model.KindDuplicateOutcome, "embedded.InsertOutcome", err)
		}
		return err
	})
}

// InsertOutput writes an output row.
func (w *Writer) InsertOutput(ctx context.Context, o model.Output) error {
	return withRetry(ctx, func() error {
		_, err := w.db.sqlDB.ExecContext(ctx, `
			INSERT INTO outputs (id, invocation_id, stream, content_hash, byte_length, storage_type, storage_ref, date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID.String(), o.InvocationID.String(), string(o.Stream), o.ContentHash, o.ByteLength,
			string(o.StorageType), o.StorageRef, o.Date)
		return err
	})
}

// InsertEvent writes an event row.
func (w *Writer) InsertEvent(ctx context.Context, e model.Event) error {
	meta, err := marshalMeta(e.Metadata)
	if err != nil {
		return err
	}
	return withRetry(ctx, func() error {
		_, err := w.db.sqlDB.ExecContext(ctx, `
			INSERT INTO events (id, invocation_id, severity, event_type, ref_file, ref_line, ref_column,
				message, format_used, error_code, tool_name, category, fingerprint, test_name, test_status,
				log_line_start, log_line_end, metadata, date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.InvocationID.String(), string(e.Severity), e.EventType, e.RefFile,
			e.RefLine, e.RefColumn, e.Message, e.FormatUsed, e.ErrorCode, e.ToolName, e.Category,
			e.Fingerprint, e.TestName, e.TestStatus, e.LogLineStart, e.LogLineEnd, meta, e.Date)
		return err
	})
}

// InsertSession writes a session row, ignoring a conflict on an
// already-registered session_id (sessions are optional metadata,
// and may be (re-)registered idempotently).
func (w *Writer) InsertSession(ctx context.Context, s model.Session) error {
	return withRetry(ctx, func() error {
		_, err := w.db.sqlDB.ExecContext(ctx, `
			INSERT OR IGNORE INTO sessions (session_id, source_client, invoker, invoker_pid, invoker_type, registered_at, cwd, date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, s.SourceClient, s.Invoker, s.InvokerPID, s.InvokerType,
			s.RegisteredAt.UTC().Format(timeLayout), s.CWD, s.Date)
		return err
	})
}

// PendingAttempts returns attempts with no matching outcome row.
func (w *Writer) PendingAttempts(ctx context.Context) ([]model.Attempt, error) {
	rows, err := w.db.sqlDB.QueryContext(ctx, `
		SELECT a.id, a.timestamp, a.cmd, a.executable, a.cwd, a.session_id, a.tag,
		       a.source_client, a.machine_id, a.hostname, a.format_hint, a.runner_id, a.metadata, a.date
		FROM attempts a
		LEFT JOIN outcomes o ON a.id = o.attempt_id
		WHERE o.attempt_id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(rows *sql.Rows) (model.Attempt, error) {
	var (
		a         model.Attempt
		id        string
		ts        string
		metaStr   sql.NullString
	)
	if err := rows.Scan(&id, &ts, &a.Cmd, &a.Executable, &a.CWD, &a.SessionID, &a.Tag,
		&a.SourceClient, &a.MachineID, &a.Hostname, &a.FormatHint, &a.RunnerID, &metaStr, &a.Date); err != nil {
		return model.Attempt{}, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return model.Attempt{}, err
	}
	a.ID = parsedID
	t, err := parseTime(ts)
	if err != nil {
		return model.Attempt{}, err
	}
	a.Timestamp = t
	meta, err := unmarshalMeta(metaStr)
	if err != nil {
		return model.Attempt{}, err
	}
	a.Metadata = meta
	return a, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "UNIQUE constraint failed") || contains(msg, "constraint failed: UNIQUE")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
