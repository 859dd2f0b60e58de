package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// Registry implements blobstore.Registry against the blob_registry
// table. It backs the content store's dedup lookups and ref-counting
// regardless of whether attempts/outcomes/outputs themselves live in
// this engine (single-writer mode) or in shard files (multi-writer
// mode) — the registry is always shared and always embedded, since
// dedup requires a single place every writer can see atomically.
type Registry struct {
	db *DB
}

// NewRegistry wraps db as a blob registry.
func NewRegistry(db *DB) *Registry { return &Registry{db: db} }

func (r *Registry) Lookup(ctx context.Context, hash string) (model.BlobRegistryEntry, bool, error) {
	row := r.db.sqlDB.QueryRowContext(ctx, `
		SELECT content_hash, byte_length, compression, ref_count, first_seen,
		       last_accessed, storage_tier, storage_path, verified_at, corrupt
		FROM blob_registry WHERE content_hash = ?`, hash)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return model.BlobRegistryEntry{}, false, nil
	}
	if err != nil {
		return model.BlobRegistryEntry{}, false, err
	}
	return e, true, nil
}

// IncrementRef bumps ref_count and last_accessed for an existing row.
func (r *Registry) IncrementRef(ctx context.Context, hash string) (model.BlobRegistryEntry, error) {
	var out model.BlobRegistryEntry
	err := withRetry(ctx, func() error {
		now := time.Now().UTC().Format(timeLayout)
		_, err := r.db.sqlDB.ExecContext(ctx, `
			UPDATE blob_registry SET ref_count = ref_count + 1, last_accessed = ?
			WHERE content_hash = ?`, now, hash)
		return err
	})
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}
	e, ok, err := r.Lookup(ctx, hash)
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}
	if !ok {
		return model.BlobRegistryEntry{}, fmt.Errorf("embedded.IncrementRef: no row for hash after update: %w", sql.ErrNoRows)
	}
	out = e
	return out, nil
}

// Insert writes a new registry row at ref_count 1. If a row already
// exists for this hash (a race against a concurrent first write), it
// falls through to an increment — insert is the caller's declared
// intent ("this hash is now referenced"), not a strict creation.
func (r *Registry) Insert(ctx context.Context, entry model.BlobRegistryEntry) (model.BlobRegistryEntry, error) {
	existed := false
	err := withRetry(ctx, func() error {
		var verifiedAt any
		if entry.VerifiedAt != nil {
			verifiedAt = entry.VerifiedAt.UTC().Format(timeLayout)
		}
		_, err := r.db.sqlDB.ExecContext(ctx, `
			INSERT INTO blob_registry (content_hash, byte_length, compression, ref_count,
				first_seen, last_accessed, storage_tier, storage_path, verified_at, corrupt)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ContentHash, entry.ByteLength, string(entry.Compression), entry.RefCount,
			entry.FirstSeen.UTC().Format(timeLayout), entry.LastAccessed.UTC().Format(timeLayout),
			string(entry.StorageTier), entry.StoragePath, verifiedAt, boolToInt(entry.Corrupt))
		if isUniqueViolation(err) {
			existed = true
			return nil
		}
		return err
	})
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}

	e, ok, err := r.Lookup(ctx, entry.ContentHash)
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}
	if ok && existed {
		// a racing writer's row already existed; this call's intent was
		// still "one more reference", so count it.
		return r.IncrementRef(ctx, entry.ContentHash)
	}
	return e, nil
}

func (r *Registry) DecrementRef(ctx context.Context, hash string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.sqlDB.ExecContext(ctx, `
			UPDATE blob_registry SET ref_count = MAX(ref_count - 1, 0), last_accessed = ?
			WHERE content_hash = ?`, time.Now().UTC().Format(timeLayout), hash)
		return err
	})
}

func (r *Registry) Delete(ctx context.Context, hash string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.sqlDB.ExecContext(ctx, `DELETE FROM blob_registry WHERE content_hash = ?`, hash)
		return err
	})
}

// ListUnreferenced returns registry rows at ref_count 0 whose
// last_accessed predates olderThan — the reclamation candidate set.
func (r *Registry) ListUnreferenced(ctx context.Context, olderThan time.Time) ([]model.BlobRegistryEntry, error) {
	rows, err := r.db.sqlDB.QueryContext(ctx, `
		SELECT content_hash, byte_length, compression, ref_count, first_seen,
		       last_accessed, storage_tier, storage_path, verified_at, corrupt
		FROM blob_registry WHERE ref_count = 0 AND last_accessed < ?`,
		olderThan.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlobRegistryEntry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateTier rewrites storage_tier and storage_path for hash, used
// when a blob's bytes migrate between tiers without any change to
// their content or reference count.
func (r *Registry) UpdateTier(ctx context.Context, hash string, tier model.StorageTier, storagePath string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.sqlDB.ExecContext(ctx, `
			UPDATE blob_registry SET storage_tier = ?, storage_path = ? WHERE content_hash = ?`,
			string(tier), storagePath, hash)
		return err
	})
}

func (r *Registry) MarkCorrupt(ctx context.Context, hash string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.sqlDB.ExecContext(ctx, `
			UPDATE blob_registry SET corrupt = 1, verified_at = ? WHERE content_hash = ?`,
			time.Now().UTC().Format(timeLayout), hash)
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (model.BlobRegistryEntry, error) {
	return scanEntryGeneric(s)
}

func scanEntryRows(rows *sql.Rows) (model.BlobRegistryEntry, error) {
	return scanEntryGeneric(rows)
}

func scanEntryGeneric(s scanner) (model.BlobRegistryEntry, error) {
	var (
		e            model.BlobRegistryEntry
		compression  string
		firstSeen    string
		lastAccessed string
		storageTier  string
		verifiedAt   sql.NullString
		corrupt      int
	)
	if err := s.Scan(&e.ContentHash, &e.ByteLength, &compression, &e.RefCount, &firstSeen,
		&lastAccessed, &storageTier, &e.StoragePath, &verifiedAt, &corrupt); err != nil {
		return model.BlobRegistryEntry{}, err
	}
	e.Compression = model.Compression(compression)
	e.StorageTier = model.StorageTier(storageTier)
	e.Corrupt = corrupt != 0

	t, err := parseTime(firstSeen)
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}
	e.FirstSeen = t

	t, err = parseTime(lastAccessed)
	if err != nil {
		return model.BlobRegistryEntry{}, err
	}
	e.LastAccessed = t

	if verifiedAt.Valid {
		t, err := parseTime(verifiedAt.String)
		if err != nil {
			return model.BlobRegistryEntry{}, err
		}
		e.VerifiedAt = &t
	}
	return e, nil
}
