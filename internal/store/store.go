// Package store wires the component store (C1-C9) together into a
// single open handle: it selects the single-writer or multi-writer
// physical backend per configuration, shares one blob registry and
// blob store between them, and exposes the capture, query, recovery,
// lifecycle and sync entry points a caller needs without requiring
// them to know which backend is underneath.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scbrown/irs/internal/blobstore"
	"github.com/scbrown/irs/internal/capture"
	"github.com/scbrown/irs/internal/config"
	"github.com/scbrown/irs/internal/embedded"
	"github.com/scbrown/irs/internal/errlog"
	"github.com/scbrown/irs/internal/formathint"
	"github.com/scbrown/irs/internal/lifecycle"
	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/query"
	"github.com/scbrown/irs/internal/recovery"
	"github.com/scbrown/irs/internal/shard"
)

const dbFileName = "registry.db"

// Store is one opened invocation record store: the capture facade
// producers write through, the query gateway readers read through,
// and the recovery/lifecycle/sync machinery administrative commands
// drive, all sharing one configuration and one blob registry.
type Store struct {
	cfg config.Config
	root string

	db    *embedded.DB
	blobs *blobstore.Store
	errs  *errlog.Sink
	hints *formathint.Set

	Capture *capture.Facade
	Query   *query.Gateway

	rowBackend rowBackend
	shardRoot  string // "" in single-writer mode
}

// rowBackend is the capability both internal/embedded.Writer and
// internal/shard.RowWriter provide; recovery and capture are built
// against it so Open need not branch again after construction.
type rowBackend interface {
	capture.Backend
	recovery.Backend
	PendingAttemptsFor(ctx context.Context) ([]model.Attempt, error)
}

// embeddedBackend adapts *embedded.Writer, whose PendingAttempts takes
// no date list (it has no partition directories to enumerate).
type embeddedBackend struct{ *embedded.Writer }

func (b embeddedBackend) PendingAttemptsFor(ctx context.Context) ([]model.Attempt, error) {
	return b.PendingAttempts(ctx)
}

// shardBackend adapts *shard.RowWriter, whose PendingAttempts needs
// the set of partition dates to scan; it scans every date directory
// currently present under the attempts relation.
type shardBackend struct {
	*shard.RowWriter
	root string
}

func (b shardBackend) PendingAttemptsFor(ctx context.Context) ([]model.Attempt, error) {
	dates, err := shard.ListPartitionDates(b.root, shard.RelationAttempts)
	if err != nil {
		return nil, err
	}
	return b.PendingAttempts(ctx, dates)
}

// Open opens (creating if needed) the store rooted at root, choosing
// the single-writer or multi-writer physical backend per cfg.Mode.
// root is the directory named store_root in configuration; the
// embedded registry database, blob content, shard partitions and
// errors.log all live under it.
func Open(root string, cfg config.Config) (*Store, error) {
	cfg = cfg.WithDefaults()

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", root, err)
	}

	db, err := embedded.Open(filepath.Join(root, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("store: open registry: %w", err)
	}

	errs, err := errlog.Open(root)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open error log: %w", err)
	}

	reg := embedded.NewRegistry(db)
	blobs := blobstore.New(filepath.Join(root, "blobs"), reg, cfg.InlineThresholdBytes, model.Compression(cfg.BlobCompression))
	blobs.ErrLog = errs.Func("blobstore")

	s := &Store{
		cfg:   cfg,
		root:  root,
		db:    db,
		blobs: blobs,
		errs:  errs,
		hints: formathint.DefaultHints(),
	}

	var backend rowBackend
	switch cfg.Mode {
	case "multi-writer":
		shardRoot := filepath.Join(root, "rows")
		s.shardRoot = shardRoot
		backend = shardBackend{RowWriter: shard.NewRowWriter(shardRoot), root: shardRoot}
		s.Query = query.Connect(db, shardRoot, blobs)
	default: // "single-writer"
		backend = embeddedBackend{Writer: embedded.NewWriter(db)}
		s.Query = query.Connect(db, "", blobs)
	}
	s.rowBackend = backend
	s.Capture = capture.New(backend, blobs)
	s.Capture.SetFormatHints(s.hints)

	return s, nil
}

// Close releases the store's open handles. Spooled output awaiting
// FinishOutput is not flushed; callers are responsible for closing
// every attempt they opened before calling Close.
func (s *Store) Close() error {
	return s.errLogThenDBClose()
}

func (s *Store) errLogThenDBClose() error {
	errClose := s.errs.Close()
	dbClose := s.db.Close()
	if dbClose != nil {
		return dbClose
	}
	return errClose
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Config returns the configuration this store was opened with.
func (s *Store) Config() config.Config { return s.cfg }

// FormatHints returns the format-hint set consulted to tag attempts
// with a reader format when the caller does not specify one.
func (s *Store) FormatHints() *formathint.Set { return s.hints }

// ErrLog returns a bound logging function for a component name, for
// callers (e.g. cmd/irs) that want to route their own best-effort
// failures through the same errors.log sink the store's internals
// use.
func (s *Store) ErrLog(component string) func(op string, err error) {
	return s.errs.Func(component)
}

// RegisterSession idempotently records a session. Sessions always
// live in the embedded registry database regardless of mode — see
// the rowSide dispatch rule in sync_adapter.go.
func (s *Store) RegisterSession(ctx context.Context, sess model.Session) error {
	return embedded.NewWriter(s.db).InsertSession(ctx, sess)
}

// PendingAttempts returns every attempt with no recorded outcome, for
// a recovery sweep to evaluate.
func (s *Store) PendingAttempts(ctx context.Context) ([]model.Attempt, error) {
	return s.rowBackend.PendingAttemptsFor(ctx)
}

// RunRecovery sweeps the pending set for orphaned attempts, using the
// configured max age and a bounded per-runner probe timeout.
func (s *Store) RunRecovery(ctx context.Context) (recovery.Result, error) {
	pending, err := s.PendingAttempts(ctx)
	if err != nil {
		return recovery.Result{}, fmt.Errorf("store: list pending attempts: %w", err)
	}
	coord := recovery.New(s.rowBackend, time.Duration(s.cfg.MaxAgeHours)*time.Hour, 2*time.Second)
	return coord.Sweep(ctx, pending, time.Now().UTC())
}

// Compact runs one compaction pass for session's shards in rel's
// partition for date. It is a no-op (returns Skipped) in
// single-writer mode, since compaction only applies to shard files.
func (s *Store) Compact(rel shard.Relation, date, session string) (lifecycle.CompactResult, error) {
	if s.shardRoot == "" {
		return lifecycle.CompactResult{Skipped: true}, nil
	}
	threshold := s.cfg.CompactionThreshold
	if threshold <= 0 {
		threshold = lifecycle.CompactionThreshold
	}
	return lifecycle.CompactPartition(s.shardRoot, rel, date, session, threshold)
}

// Archive moves every partition of rel older than hot_days from the
// recent tier to the archive tier. It is a no-op in single-writer
// mode. For the outputs relation, blobs referenced only by the
// archived rows migrate to the archive tier alongside them.
func (s *Store) Archive(ctx context.Context, rel shard.Relation) (lifecycle.ArchiveResult, error) {
	if s.shardRoot == "" {
		return lifecycle.ArchiveResult{}, nil
	}
	hotDays := s.cfg.HotDays
	if hotDays <= 0 {
		hotDays = lifecycle.HotDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -hotDays)
	archiveRoot := filepath.Join(s.root, "archive")
	return lifecycle.ArchivePartitions(ctx, s.shardRoot, archiveRoot, rel, cutoff, s.blobs)
}

// GC reclaims blob storage for registry entries that have been
// unreferenced for at least gracePeriod, per grace_period_days,
// reporting how many entries and how many bytes were reclaimed.
func (s *Store) GC(ctx context.Context) (count int, bytes int64, err error) {
	gracePeriod := s.cfg.GracePeriodDays
	if gracePeriod <= 0 {
		gracePeriod = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -gracePeriod)
	reg := embedded.NewRegistry(s.db)
	entries, err := reg.ListUnreferenced(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("store: list unreferenced blobs: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(s.root, "blobs", "content", e.StoragePath)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.errs.Log("store.GC", fmt.Errorf("remove blob %s: %w", e.ContentHash, err))
			continue
		}
		if err := reg.Delete(ctx, e.ContentHash); err != nil {
			s.errs.Log("store.GC", fmt.Errorf("delete registry row %s: %w", e.ContentHash, err))
			continue
		}
		count++
		bytes += e.ByteLength
	}
	return count, bytes, nil
}

// SchemaVersion reports the store's recorded schema version and
// whether this build is new enough to safely serve it.
func (s *Store) SchemaVersion(ctx context.Context) (stored string, supported bool, err error) {
	return s.Query.SchemaVersion(ctx)
}
