package embedded

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/model"
)

// QueryInvocations reads the invocations view in full. Metadata is
// merged at this layer (outcome wins on key conflict), matching
// model.JoinInvocation's rule — the view itself projects
// attempt_metadata and outcome_metadata as separate columns rather
// than performing the merge in SQL, keeping the merge rule defined
// exactly once, in Go, for both backends.
func (db *DB) QueryInvocations(ctx context.Context) ([]model.Invocation, error) {
	rows, err := db.sqlDB.QueryContext(ctx, `
		SELECT id, timestamp, cmd, executable, cwd, session_id, tag, source_client,
		       machine_id, hostname, format_hint, runner_id, date,
		       completed_at, exit_code, duration_ms, signal, timeout, status,
		       attempt_metadata, outcome_metadata
		FROM invocations`)
	if err != nil {
		return nil, fmt.Errorf("embedded: query invocations: %w", err)
	}
	defer rows.Close()

	var out []model.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvocation(rows *sql.Rows) (model.Invocation, error) {
	var (
		inv          model.Invocation
		id           string
		ts           string
		completedAt  sql.NullString
		exitCode     sql.NullInt64
		durationMs   sql.NullInt64
		signal       sql.NullInt64
		timeout      sql.NullInt64
		status       string
		attemptMeta  sql.NullString
		outcomeMeta  sql.NullString
	)
	if err := rows.Scan(&id, &ts, &inv.Cmd, &inv.Executable, &inv.CWD, &inv.SessionID, &inv.Tag,
		&inv.SourceClient, &inv.MachineID, &inv.Hostname, &inv.FormatHint, &inv.RunnerID, &inv.Date,
		&completedAt, &exitCode, &durationMs, &signal, &timeout, &status,
		&attemptMeta, &outcomeMeta); err != nil {
		return model.Invocation{}, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return model.Invocation{}, err
	}
	inv.ID = parsedID

	t, err := parseTime(ts)
	if err != nil {
		return model.Invocation{}, err
	}
	inv.Timestamp = t

	inv.Status = model.Status(status)
	inv.Timeout = timeout.Valid && timeout.Int64 != 0

	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return model.Invocation{}, err
		}
		inv.CompletedAt = t
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		inv.ExitCode = &v
	}
	if durationMs.Valid {
		inv.DurationMs = durationMs.Int64
	}
	if signal.Valid {
		v := int(signal.Int64)
		inv.Signal = &v
	}

	aMeta, err := unmarshalMeta(attemptMeta)
	if err != nil {
		return model.Invocation{}, err
	}
	oMeta, err := unmarshalMeta(outcomeMeta)
	if err != nil {
		return model.Invocation{}, err
	}
	inv.Metadata = aMeta.Merge(oMeta)

	return inv, nil
}
