// Package schema defines the logical relations of the invocation record
// store independently of physical backend (C4): per-relation column
// lists and the invocations view definition.
package schema

// Column lists per relation, recording the logical columns.
// internal/embedded's CREATE TABLE statements and queries spell out
// their own columns and do not read these lists.
var (
	AttemptColumns = []string{
		"id", "timestamp", "cmd", "executable", "cwd", "session_id", "tag",
		"source_client", "machine_id", "hostname", "format_hint",
		"runner_id", "metadata", "date",
	}
	OutcomeColumns = []string{
		"attempt_id", "completed_at", "exit_code", "duration_ms", "signal",
		"timeout", "metadata", "date",
	}
	OutputColumns = []string{
		"id", "invocation_id", "stream", "content_hash", "byte_length",
		"storage_type", "storage_ref", "date",
	}
	EventColumns = []string{
		"id", "invocation_id", "severity", "event_type", "ref_file",
		"ref_line", "ref_column", "message", "format_used", "error_code",
		"tool_name", "category", "fingerprint", "test_name", "test_status",
		"log_line_start", "log_line_end", "metadata", "date",
	}
	SessionColumns = []string{
		"session_id", "source_client", "invoker", "invoker_pid",
		"invoker_type", "registered_at", "cwd", "date",
	}
	BlobRegistryColumns = []string{
		"content_hash", "byte_length", "compression", "ref_count",
		"first_seen", "last_accessed", "storage_tier", "storage_path",
		"verified_at", "corrupt",
	}
	StoreMetaColumns = []string{"key", "value"}
)

// InvocationsViewSQL is the invocations view definition, identical in
// single-writer and multi-writer mode: the left join of attempts onto
// outcomes, projecting attempt and outcome metadata as separate
// columns (attempt_metadata, outcome_metadata) and a derived status. SQLite
// (the embedded engine used by both modes here — see
// internal/embedded) computes status with a CASE expression mirroring
// model.DeriveStatus exactly.
const InvocationsViewSQL = `
CREATE VIEW IF NOT EXISTS invocations AS
SELECT
  a.id AS id,
  a.timestamp AS timestamp,
  a.cmd AS cmd,
  a.executable AS executable,
  a.cwd AS cwd,
  a.session_id AS session_id,
  a.tag AS tag,
  a.source_client AS source_client,
  a.machine_id AS machine_id,
  a.hostname AS hostname,
  a.format_hint AS format_hint,
  a.runner_id AS runner_id,
  a.date AS date,
  o.completed_at AS completed_at,
  o.exit_code AS exit_code,
  o.duration_ms AS duration_ms,
  o.signal AS signal,
  o.timeout AS timeout,
  CASE
    WHEN o.attempt_id IS NULL THEN 'pending'
    WHEN o.exit_code IS NULL THEN 'orphaned'
    ELSE 'completed'
  END AS status,
  a.metadata AS attempt_metadata,
  o.metadata AS outcome_metadata
FROM attempts a
LEFT JOIN outcomes o ON a.id = o.attempt_id
`

// PendingSQL is the pending-set query: attempts with no matching
// outcome row. Nothing in this module executes it;
// internal/embedded.Writer.PendingAttempts runs its own query.
const PendingSQL = `
SELECT a.id, a.timestamp, a.cmd, a.executable, a.cwd, a.session_id, a.tag,
       a.source_client, a.machine_id, a.hostname, a.format_hint,
       a.runner_id, a.metadata, a.date
FROM attempts a
LEFT JOIN outcomes o ON a.id = o.attempt_id
WHERE o.attempt_id IS NULL
`

// Version is the current logical schema version. Migrations in
// internal/embedded are additive only: new nullable columns, new
// tables, never a delete or rename, so that a reader opening an older
// schema never observes referenced-but-missing columns.
const Version = "5"
