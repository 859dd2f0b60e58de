package embedded

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/model"
)

func parseUUID(s string) (uuid.UUID, error) { return uuid.Parse(s) }

// syncTable describes how one logical table maps onto sync's
// generic id/since/fetch/upsert operations.
type syncTable struct {
	idColumn   string
	timeColumn string
	relation   string // the table itself, for "x IN (?)" fetches
}

var syncTables = map[string]syncTable{
	"sessions": {idColumn: "session_id", timeColumn: "registered_at", relation: "sessions"},
	"attempts": {idColumn: "id", timeColumn: "timestamp", relation: "attempts"},
	"outcomes": {idColumn: "attempt_id", timeColumn: "completed_at", relation: "outcomes"},
	"outputs":  {idColumn: "id", timeColumn: "date", relation: "outputs"},
	"events":   {idColumn: "id", timeColumn: "date", relation: "events"},
}

// IDsSince returns the ids of table's rows at or after since (a date
// or RFC3339 timestamp prefix), optionally narrowed by client
// (attempts.source_client / sessions.source_client) and tag
// (attempts.tag). Other tables carry neither column and ignore both
// filters, per the sync engine's per-table dependency-order walk.
func (db *DB) IDsSince(ctx context.Context, table, since, client, tag string) ([]string, error) {
	t, ok := syncTables[table]
	if !ok {
		return nil, fmt.Errorf("embedded: unknown sync table %q", table)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, t.idColumn, t.relation)
	var args []any
	if since != "" {
		query += fmt.Sprintf(` AND %s >= ?`, t.timeColumn)
		args = append(args, since)
	}
	if client != "" && table == "attempts" {
		query += ` AND source_client = ?`
		args = append(args, client)
	}
	if client != "" && table == "sessions" {
		query += ` AND source_client = ?`
		args = append(args, client)
	}
	if tag != "" && table == "attempts" {
		query += ` AND tag = ?`
		args = append(args, tag)
	}

	rows, err := db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("embedded: ids since for %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FetchRows returns table's rows for the given ids, JSON-encoded as a
// model.Attempt/Outcome/Output/Event/Session array matching table.
func (db *DB) FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error) {
	if len(ids) == 0 {
		return json.RawMessage("[]"), nil
	}
	switch table {
	case "attempts":
		return db.fetchAttempts(ctx, ids)
	case "outcomes":
		return db.fetchOutcomes(ctx, ids)
	case "outputs":
		return db.fetchOutputs(ctx, ids)
	case "events":
		return db.fetchEvents(ctx, ids)
	case "sessions":
		return db.fetchSessions(ctx, ids)
	default:
		return nil, fmt.Errorf("embedded: unknown sync table %q", table)
	}
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (db *DB) fetchAttempts(ctx context.Context, ids []string) (json.RawMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, timestamp, cmd, executable, cwd, session_id, tag,
		       source_client, machine_id, hostname, format_hint, runner_id, metadata, date
		FROM attempts WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := db.sqlDB.QueryContext(ctx, query, toArgs(ids)...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (db *DB) fetchOutcomes(ctx context.Context, ids []string) (json.RawMessage, error) {
	query := fmt.Sprintf(`
		SELECT attempt_id, completed_at, exit_code, duration_ms, signal, timeout, metadata, date
		FROM outcomes WHERE attempt_id IN (%s)`, placeholders(len(ids)))
	rows, err := db.sqlDB.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Outcome
	for rows.Next() {
		var (
			o          model.Outcome
			attemptID  string
			completed  string
			exitCode   *int
			signal     *int
			timeoutInt int
			metaStr    sql.NullString
		)
		if err := rows.Scan(&attemptID, &completed, &exitCode, &o.DurationMs, &signal, &timeoutInt, &metaStr, &o.Date); err != nil {
			return nil, err
		}
		id, err := parseUUID(attemptID)
		if err != nil {
			return nil, err
		}
		o.AttemptID = id
		t, err := parseTime(completed)
		if err != nil {
			return nil, err
		}
		o.CompletedAt = t
		o.ExitCode = exitCode
		o.Signal = signal
		o.Timeout = timeoutInt != 0
		meta, err := unmarshalMeta(metaStr)
		if err != nil {
			return nil, err
		}
		o.Metadata = meta
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (db *DB) fetchOutputs(ctx context.Context, ids []string) (json.RawMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, invocation_id, stream, content_hash, byte_length, storage_type, storage_ref, date
		FROM outputs WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := db.sqlDB.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Output
	for rows.Next() {
		var (
			o                        model.Output
			id, invID, stream, sType string
		)
		if err := rows.Scan(&id, &invID, &stream, &o.ContentHash, &o.ByteLength, &sType, &o.StorageRef, &o.Date); err != nil {
			return nil, err
		}
		parsedID, err := parseUUID(id)
		if err != nil {
			return nil, err
		}
		parsedInv, err := parseUUID(invID)
		if err != nil {
			return nil, err
		}
		o.ID = parsedID
		o.InvocationID = parsedInv
		o.Stream = model.Stream(stream)
		o.StorageType = model.StorageType(sType)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (db *DB) fetchEvents(ctx context.Context, ids []string) (json.RawMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, invocation_id, severity, event_type, ref_file, ref_line, ref_column,
		       message, format_used, error_code, tool_name, category, fingerprint, test_name,
		       test_status, log_line_start, log_line_end, metadata, date
		FROM events WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := db.sqlDB.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			e               model.Event
			id, invID       string
			severity, date  string
			metaStr         sql.NullString
		)
		if err := rows.Scan(&id, &invID, &severity, &e.EventType, &e.RefFile, &e.RefLine, &e.RefColumn,
			&e.Message, &e.FormatUsed, &e.ErrorCode, &e.ToolName, &e.Category, &e.Fingerprint,
			&e.TestName, &e.TestStatus, &e.LogLineStart, &e.LogLineEnd, &metaStr, &date); err != nil {
			return nil, err
		}
		parsedID, err := parseUUID(id)
		if err != nil {
			return nil, err
		}
		parsedInv, err := parseUUID(invID)
		if err != nil {
			return nil, err
		}
		e.ID = parsedID
		e.InvocationID = parsedInv
		e.Severity = model.Severity(severity)
		meta, err := unmarshalMeta(metaStr)
		if err != nil {
			return nil, err
		}
		e.Metadata = meta
		e.Date = date
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (db *DB) fetchSessions(ctx context.Context, ids []string) (json.RawMessage, error) {
	query := fmt.Sprintf(`
		SELECT session_id, source_client, invoker, invoker_pid, invoker_type, registered_at, cwd, date
		FROM sessions WHERE session_id IN (%s)`, placeholders(len(ids)))
	rows, err := db.sqlDB.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		var s model.Session
		var registered string
		if err := rows.Scan(&s.SessionID, &s.SourceClient, &s.Invoker, &s.InvokerPID, &s.InvokerType, &registered, &s.CWD, &s.Date); err != nil {
			return nil, err
		}
		t, err := parseTime(registered)
		if err != nil {
			return nil, err
		}
		s.RegisteredAt = t
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UpsertRows decodes rows as table's type and inserts each,
// tolerating rows that already exist locally (a row id denotes
// exactly one logical row under the append-only model, so a
// duplicate-key insert here simply means this peer already has it).
func (db *DB) UpsertRows(ctx context.Context, table string, rows json.RawMessage) error {
	w := NewWriter(db)
	switch table {
	case "attempts":
		var items []model.Attempt
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, a := range items {
			if err := w.InsertAttempt(ctx, a); err != nil && !isUniqueViolation(err) {
				return err
			}
		}
	case "outcomes":
		var items []model.Outcome
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, o := range items {
			if err := w.InsertOutcome(ctx, o); err != nil && !model.IsKind(err, model.KindDuplicateOutcome) {
				return err
			}
		}
	case "outputs":
		var items []model.Output
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, o := range items {
			if err := w.InsertOutput(ctx, o); err != nil && !isUniqueViolation(err) {
				return err
			}
		}
	case "events":
		var items []model.Event
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, e := range items {
			if err := w.InsertEvent(ctx, e); err != nil && !isUniqueViolation(err) {
				return err
			}
		}
	case "sessions":
		var items []model.Session
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, s := range items {
			if err := w.InsertSession(ctx, s); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("embedded: unknown sync table %q", table)
	}
	return nil
}
