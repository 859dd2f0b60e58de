package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scbrown/irs/internal/ioutil"
	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/shard"
)

// HotDays is the default age, in days, after which a recent-tier
// partition becomes eligible for archival.
const HotDays = 14

// ArchiveResult summarizes one archival pass over a relation.
type ArchiveResult struct {
	PartitionsMoved int
	ShardsMoved     int
	BlobsMigrated   int
}

// blobMigrator is the capability ArchivePartitions needs from
// internal/blobstore to move a blob's bytes into the archive tier —
// satisfied by *blobstore.Store. Kept as a narrow interface so this
// package need not import blobstore's full surface.
type blobMigrator interface {
	MigrateToArchive(ctx context.Context, hash string) error
}

// ArchivePartitions moves every date= partition of rel older than
// cutoff from recentRoot into archiveRoot, repartitioned by
// year=YYYY/week=WW rather than by date. Shard files are
// moved as-is (renamed, or copied-and-removed across filesystems);
// row content is never touched, consistent with compaction's
// pure-reorganisation rule.
//
// For the outputs relation, blobs is consulted once all eligible
// partitions have moved: every blob referenced only by archived
// output rows migrates to the archive tier; a blob still referenced
// by an output row that remains in the recent tier is left alone
// until a later pass archives that reference too. blobs may be nil
// (or rel may not be outputs), in which case this step is skipped.
func ArchivePartitions(ctx context.Context, recentRoot, archiveRoot string, rel shard.Relation, cutoff time.Time, blobs blobMigrator) (ArchiveResult, error) {
	dates, err := shard.ListPartitionDates(recentRoot, rel)
	if err != nil {
		return ArchiveResult{}, err
	}

	var res ArchiveResult
	var archivedHashes []string
	for _, date := range dates {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if !t.Before(cutoff) {
			continue
		}

		var dateHashes []string
		if rel == shard.RelationOutputs && blobs != nil {
			dateHashes, err = outputBlobHashes(recentRoot, date)
			if err != nil {
				return res, err
			}
		}

		year, week := t.ISOWeek()
		destDir := filepath.Join(archiveRoot, string(rel), fmt.Sprintf("year=%d", year), fmt.Sprintf("week=%02d", week))
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return res, fmt.Errorf("lifecycle: mkdir archive dest %s: %w", destDir, err)
		}

		srcDir := filepath.Join(recentRoot, string(rel), "date="+date)
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return res, fmt.Errorf("lifecycle: read %s: %w", srcDir, err)
		}

		moved := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if parsed, ok := shard.ParseShardName(e.Name()); !ok || parsed.Temp {
				continue
			}
			src := filepath.Join(srcDir, e.Name())
			dst := filepath.Join(destDir, e.Name())
			if err := ioutil.MoveFile(src, dst); err != nil {
				return res, fmt.Errorf("lifecycle: move %s -> %s: %w", src, dst, err)
			}
			moved++
		}
		if moved > 0 {
			res.PartitionsMoved++
			res.ShardsMoved += moved
			archivedHashes = append(archivedHashes, dateHashes...)
		}
		os.Remove(srcDir)
	}

	if rel == shard.RelationOutputs && blobs != nil && len(archivedHashes) > 0 {
		migrated, err := migrateUnreferencedBlobs(ctx, recentRoot, blobs, archivedHashes)
		if err != nil {
			return res, err
		}
		res.BlobsMigrated = migrated
	}
	return res, nil
}

// outputBlobHashes returns the content_hash of every blob-backed
// output row in rel's date partition (inline-stored outputs carry
// their bytes in the row itself and need no blob migration).
func outputBlobHashes(root, date string) ([]string, error) {
	var hashes []string
	err := shard.ReadPartition(shard.RelationOutputs, root, date,
		func() any { return new(model.Output) },
		func(row any) error {
			o := row.(*model.Output)
			if o.StorageType == model.StorageBlob && o.ContentHash != "" {
				hashes = append(hashes, o.ContentHash)
			}
			return nil
		})
	return hashes, err
}

// migrateUnreferencedBlobs moves every hash in candidates to the
// archive tier, skipping any hash still referenced by an output row
// that remains in recentRoot (i.e. in a partition not yet archived).
func migrateUnreferencedBlobs(ctx context.Context, recentRoot string, blobs blobMigrator, candidates []string) (int, error) {
	stillRecent, err := recentOutputHashes(recentRoot)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(candidates))
	migrated := 0
	for _, hash := range candidates {
		if seen[hash] || stillRecent[hash] {
			continue
		}
		seen[hash] = true
		if err := blobs.MigrateToArchive(ctx, hash); err != nil {
			return migrated, fmt.Errorf("lifecycle: migrate blob %s to archive: %w", hash, err)
		}
		migrated++
	}
	return migrated, nil
}

// recentOutputHashes scans every date partition remaining under
// recentRoot's outputs relation (the archived dates have already been
// removed by the time this runs) and returns the set of blob hashes
// still referenced there.
func recentOutputHashes(recentRoot string) (map[string]bool, error) {
	dates, err := shard.ListPartitionDates(recentRoot, shard.RelationOutputs)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, date := range dates {
		hashes, err := outputBlobHashes(recentRoot, date)
		if err != nil {
			return nil, err
		}
		for _, h := range hashes {
			set[h] = true
		}
	}
	return set, nil
}
