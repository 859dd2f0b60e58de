package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// ReclaimStats summarizes one reclamation pass.
type ReclaimStats struct {
	Scanned int
	Deleted int
	Bytes   int64
}

// Reclaim runs the mark-and-sweep blob garbage collector: any registry
// entry with ref_count == 0 and last_accessed older than gracePeriod
// has its file deleted and registry row removed.
//
// Races with a concurrent dedup-hit are handled by re-checking the
// registry entry immediately before deleting each file: if a writer's
// Put has bumped ref_count or last_accessed in the interim, that hash
// is skipped for this pass rather than deleted out from under the
// new reference.
func (s *Store) Reclaim(ctx context.Context, gracePeriod time.Duration) (ReclaimStats, error) {
	cutoff := time.Now().UTC().Add(-gracePeriod)
	candidates, err := s.Registry.ListUnreferenced(ctx, cutoff)
	if err != nil {
		return ReclaimStats{}, err
	}

	var stats ReclaimStats
	for _, entry := range candidates {
		stats.Scanned++

		current, ok, err := s.Registry.Lookup(ctx, entry.ContentHash)
		if err != nil || !ok {
			continue
		}
		if current.RefCount != 0 || current.LastAccessed.After(cutoff) {
			continue // raced with a fresh reference; skip this hash
		}

		path := filepath.Join(s.Root, "content", current.StoragePath)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.ErrLog("blobstore.Reclaim", err)
			continue
		}
		if err := s.Registry.Delete(ctx, entry.ContentHash); err != nil {
			s.ErrLog("blobstore.Reclaim", err)
			continue
		}
		stats.Deleted++
		stats.Bytes += current.ByteLength
	}
	return stats, nil
}

// Verify re-hashes the on-disk bytes of each registry entry named in
// hashes and marks it corrupt on a mismatch or when its file cannot be
// opened. Hashes with no registry row, or already marked corrupt, are
// skipped. Blobs are never mutated in place once written, so any
// mismatch means damage.
func (s *Store) Verify(ctx context.Context, hashes []string) error {
	for _, h := range hashes {
		entry, ok, err := s.Registry.Lookup(ctx, h)
		if err != nil {
			return err
		}
		if !ok || entry.Corrupt {
			continue
		}
		rc, err := s.Open(ctx, model.StorageBlob, "file:"+entry.StoragePath)
		if err != nil {
			if markErr := s.Registry.MarkCorrupt(ctx, h); markErr != nil {
				return markErr
			}
			continue
		}
		sum, err := hashReader(rc)
		rc.Close()
		if err != nil {
			return err
		}
		if sum != h {
			if err := s.Registry.MarkCorrupt(ctx, h); err != nil {
				return err
			}
		}
	}
	return nil
}
