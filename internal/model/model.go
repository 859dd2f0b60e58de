// Package model defines the logical relations of the invocation record
// store: attempts, outcomes, the derived invocation view, outputs,
// events, sessions, blob registry entries and store metadata.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the derived lifecycle state of an Invocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOrphaned  Status = "orphaned"
	StatusCompleted Status = "completed"
)

// Stream identifies which standard stream an Output captured.
type Stream string

const (
	StreamStdout   Stream = "stdout"
	StreamStderr   Stream = "stderr"
	StreamCombined Stream = "combined"
)

// StorageType says whether an Output's bytes live inline or in a blob.
type StorageType string

const (
	StorageInline StorageType = "inline"
	StorageBlob   StorageType = "blob"
)

// Severity classifies an Event.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityNote    Severity = "note"
)

// StorageTier is where a Blob's bytes currently live.
type StorageTier string

const (
	TierRecent  StorageTier = "recent"
	TierArchive StorageTier = "archive"
)

// Metadata is a namespaced mapping from string key to structured JSON
// value. Well-known namespaces (vcs, ci, env, resources, timing) have
// documented shapes; readers must tolerate absence and unknown keys.
type Metadata map[string]json.RawMessage

// Merge returns the union of m and other with other's keys winning on
// conflict. Either argument may be nil.
func (m Metadata) Merge(other Metadata) Metadata {
	if len(m) == 0 && len(other) == 0 {
		return nil
	}
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Set stores a JSON-marshalable value under key.
func (m *Metadata) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = raw
	return nil
}

// Get unmarshals the value stored under key into dst. It reports false
// if the key is absent.
func (m Metadata) Get(key string, dst any) (bool, error) {
	raw, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// Attempt is the intent to run one command. Created once, never
// mutated, never deleted by normal operation.
type Attempt struct {
	ID           uuid.UUID `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Cmd          string    `json:"cmd"`
	CWD          string    `json:"cwd"`
	Executable   string    `json:"executable"`
	SessionID    string    `json:"session_id"`
	Tag          string    `json:"tag,omitempty"`
	SourceClient string    `json:"source_client,omitempty"`
	MachineID    string    `json:"machine_id,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	FormatHint   string    `json:"format_hint,omitempty"`
	RunnerID     string    `json:"runner_id,omitempty"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	Date         string    `json:"date"` // partition key, YYYY-MM-DD
}

// Outcome is the result of exactly one attempt. Created at most once
// per attempt, when the command terminates; never mutated. May exist
// without a matching attempt (imported/legacy data).
type Outcome struct {
	AttemptID  uuid.UUID  `json:"attempt_id"`
	CompletedAt time.Time `json:"completed_at"`
	ExitCode   *int       `json:"exit_code"` // nil means crashed/unknown
	DurationMs int64      `json:"duration_ms"`
	Signal     *int       `json:"signal,omitempty"`
	Timeout    bool       `json:"timeout"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	Date       string     `json:"date"`
}

// Invocation is the derived left join of an Attempt onto its Outcome.
// Never stored; always computed.
type Invocation struct {
	Attempt
	CompletedAt time.Time `json:"completed_at,omitempty"`
	ExitCode    *int      `json:"exit_code"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Signal      *int      `json:"signal,omitempty"`
	Timeout     bool      `json:"timeout"`
	Status      Status    `json:"status"`
}

// DeriveStatus computes an Invocation's status from an attempt and its
// (possibly absent) outcome, per the rule: pending if no outcome row
// exists, orphaned if the outcome's exit code is null, completed
// otherwise.
func DeriveStatus(outcome *Outcome) Status {
	if outcome == nil {
		return StatusPending
	}
	if outcome.ExitCode == nil {
		return StatusOrphaned
	}
	return StatusCompleted
}

// JoinInvocation builds the derived Invocation for an attempt and its
// optional outcome, merging metadata with the outcome winning on key
// conflict.
func JoinInvocation(a Attempt, o *Outcome) Invocation {
	inv := Invocation{
		Attempt: a,
		Status:  DeriveStatus(o),
	}
	if o != nil {
		inv.CompletedAt = o.CompletedAt
		inv.ExitCode = o.ExitCode
		inv.DurationMs = o.DurationMs
		inv.Signal = o.Signal
		inv.Timeout = o.Timeout
		inv.Attempt.Metadata = a.Metadata.Merge(o.Metadata)
	}
	return inv
}

// Output is a captured byte stream for an attempt.
type Output struct {
	ID           uuid.UUID   `json:"id"`
	InvocationID uuid.UUID   `json:"invocation_id"` // soft FK into attempts
	Stream       Stream      `json:"stream"`
	ContentHash  string      `json:"content_hash"` // hex BLAKE3, 64 chars
	ByteLength   int64       `json:"byte_length"`
	StorageType  StorageType `json:"storage_type"`
	StorageRef   string      `json:"storage_ref"`
	Date         string      `json:"date"`
}

// Event is one parsed diagnostic produced from an output.
type Event struct {
	ID            uuid.UUID `json:"id"`
	InvocationID  uuid.UUID `json:"invocation_id"`
	Severity      Severity  `json:"severity"`
	EventType     string    `json:"event_type"`
	RefFile       string    `json:"ref_file,omitempty"`
	RefLine       int       `json:"ref_line,omitempty"`
	RefColumn     int       `json:"ref_column,omitempty"`
	Message       string    `json:"message"`
	FormatUsed    string    `json:"format_used"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ToolName      string    `json:"tool_name,omitempty"`
	Category      string    `json:"category,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	TestName      string    `json:"test_name,omitempty"`
	TestStatus    string    `json:"test_status,omitempty"`
	LogLineStart  int       `json:"log_line_start,omitempty"`
	LogLineEnd    int       `json:"log_line_end,omitempty"`
	Metadata      Metadata  `json:"metadata,omitempty"`
	Date          string    `json:"date"`
}

// Session is the grouping context for attempts.
type Session struct {
	SessionID    string    `json:"session_id"`
	SourceClient string    `json:"source_client,omitempty"`
	Invoker      string    `json:"invoker,omitempty"`
	InvokerPID   int       `json:"invoker_pid,omitempty"`
	InvokerType  string    `json:"invoker_type,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	CWD          string    `json:"cwd,omitempty"`
	Date         string    `json:"date"`
}

// Compression identifies the codec applied to a blob's on-disk bytes.
// The content hash is always of the uncompressed bytes.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// BlobRegistryEntry is a row in the content-addressed blob registry.
type BlobRegistryEntry struct {
	ContentHash  string      `json:"content_hash"`
	ByteLength   int64       `json:"byte_length"`
	Compression  Compression `json:"compression"`
	RefCount     int64       `json:"ref_count"`
	FirstSeen    time.Time   `json:"first_seen"`
	LastAccessed time.Time   `json:"last_accessed"`
	StorageTier  StorageTier `json:"storage_tier"`
	StoragePath  string      `json:"storage_path"` // tier-relative
	VerifiedAt   *time.Time  `json:"verified_at,omitempty"`
	Corrupt      bool        `json:"corrupt"`
}

// StoreMeta is a single key/value row in the store_meta relation.
type StoreMeta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyWriterClient  = "writer_client"
	MetaKeyWriterVersion = "writer_version"
	MetaKeyCreatedAt     = "created_at"
	MetaKeyMode          = "mode" // "single-writer" or "multi-writer"
)

// SchemaVersion is the current logical schema version recorded in
// store_meta. Migrations are additive only; see internal/schema.
const SchemaVersion = "5"

// PartitionDate formats t as the YYYY-MM-DD partition key used for
// recent-tier hive partitioning.
func PartitionDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
