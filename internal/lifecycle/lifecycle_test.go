package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/shard"

	"github.com/google/uuid"
)

func writeAttempts(t *testing.T, root, session, date string, n int) {
	t.Helper()
	w := shard.NewWriter(root)
	for i := 0; i < n; i++ {
		a := model.Attempt{ID: uuid.New(), Cmd: "echo hi", SessionID: session, Date: date}
		if _, err := w.WriteRow(context.Background(), shard.RelationAttempts, date, session, "", a); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
}

func TestCompactPartitionBelowThresholdSkips(t *testing.T) {
	root := t.TempDir()
	writeAttempts(t, root, "sh-1", "2026-06-01", 5)

	res, err := CompactPartition(root, shard.RelationAttempts, "2026-06-01", "sh-1", 50)
	if err != nil {
		t.Fatalf("CompactPartition: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("res = %+v, want Skipped (5 <= 50)", res)
	}
}

func TestCompactPartitionAboveThresholdMerges(t *testing.T) {
	root := t.TempDir()
	writeAttempts(t, root, "sh-2", "2026-06-01", 60)

	res, err := CompactPartition(root, shard.RelationAttempts, "2026-06-01", "sh-2", 50)
	if err != nil {
		t.Fatalf("CompactPartition: %v", err)
	}
	if res.Skipped {
		t.Fatalf("res = %+v, want a real compaction", res)
	}
	if res.SourceShards != 60 || res.RowsMerged != 60 {
		t.Fatalf("res = %+v, want 60 source shards merged", res)
	}

	dir := filepath.Join(root, string(shard.RelationAttempts), "date=2026-06-01")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	shards := 0
	for _, e := range entries {
		if p, ok := shard.ParseShardName(e.Name()); ok && !p.Temp {
			shards++
		}
	}
	if shards != 1 {
		t.Fatalf("dir has %d shard files after compaction, want 1", shards)
	}

	var got []model.Attempt
	err = shard.ReadPartition(shard.RelationAttempts, root, "2026-06-01", func() any { return new(model.Attempt) },
		func(row any) error {
			got = append(got, *row.(*model.Attempt))
			return nil
		})
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(got) != 60 {
		t.Fatalf("row count after compaction = %d, want 60 (unchanged)", len(got))
	}

	res2, err := CompactPartition(root, shard.RelationAttempts, "2026-06-01", "sh-2", 50)
	if err != nil {
		t.Fatalf("second CompactPartition: %v", err)
	}
	if !res2.Skipped {
		t.Fatalf("second compaction = %+v, want no-op (1 shard <= 50)", res2)
	}
}

func TestPartitionLockExclusive(t *testing.T) {
	dir := t.TempDir()
	lock1, ok, err := TryLock(dir)
	if err != nil || !ok {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}
	_, ok2, err := TryLock(dir)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if ok2 {
		t.Fatal("second TryLock should fail while first holds the lock")
	}
	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	lock3, ok3, err := TryLock(dir)
	if err != nil || !ok3 {
		t.Fatalf("TryLock after unlock: ok=%v err=%v", ok3, err)
	}
	lock3.Unlock()
}

func TestArchivePartitionsMovesOldDates(t *testing.T) {
	recentRoot := t.TempDir()
	archiveRoot := t.TempDir()
	writeAttempts(t, recentRoot, "sh-3", "2020-01-01", 3)
	writeAttempts(t, recentRoot, "sh-3", time.Now().UTC().Format("2006-01-02"), 2)

	res, err := ArchivePartitions(context.Background(), recentRoot, archiveRoot, shard.RelationAttempts, time.Now().AddDate(0, 0, -14), nil)
	if err != nil {
		t.Fatalf("ArchivePartitions: %v", err)
	}
	if res.PartitionsMoved != 1 || res.ShardsMoved != 3 {
		t.Fatalf("res = %+v, want one old partition with 3 shards moved", res)
	}

	if _, err := os.Stat(filepath.Join(recentRoot, string(shard.RelationAttempts), "date=2020-01-01")); !os.IsNotExist(err) {
		t.Fatal("old recent-tier partition should be gone after archival")
	}
}

type fakeBlobMigrator struct {
	migrated []string
}

func (f *fakeBlobMigrator) MigrateToArchive(ctx context.Context, hash string) error {
	f.migrated = append(f.migrated, hash)
	return nil
}

func writeOutputs(t *testing.T, root, session, date string, hashes []string) {
	t.Helper()
	w := shard.NewWriter(root)
	for _, h := range hashes {
		o := model.Output{ID: uuid.New(), InvocationID: uuid.New(), ContentHash: h, StorageType: model.StorageBlob, Date: date}
		if _, err := w.WriteRow(context.Background(), shard.RelationOutputs, date, session, "", o); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
}

func TestArchivePartitionsMigratesBlobsUnreferencedInRecentTier(t *testing.T) {
	recentRoot := t.TempDir()
	archiveRoot := t.TempDir()
	writeOutputs(t, recentRoot, "sh-4", "2020-01-01", []string{"hash-old-only", "hash-shared"})
	writeOutputs(t, recentRoot, "sh-4", time.Now().UTC().Format("2006-01-02"), []string{"hash-shared", "hash-still-recent"})

	fake := &fakeBlobMigrator{}
	res, err := ArchivePartitions(context.Background(), recentRoot, archiveRoot, shard.RelationOutputs, time.Now().AddDate(0, 0, -14), fake)
	if err != nil {
		t.Fatalf("ArchivePartitions: %v", err)
	}
	if res.BlobsMigrated != 1 {
		t.Fatalf("res = %+v, want 1 blob migrated", res)
	}
	if len(fake.migrated) != 1 || fake.migrated[0] != "hash-old-only" {
		t.Fatalf("migrated = %v, want only hash-old-only (hash-shared still referenced by the remaining recent-tier partition)", fake.migrated)
	}
}
