package blobstore

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// memRegistry is an in-memory Registry used to unit test the blob
// store's write protocol and reclamation in isolation from
// internal/embedded.
type memRegistry struct {
	mu      sync.Mutex
	entries map[string]model.BlobRegistryEntry
}

func newMemRegistry() *memRegistry {
	return &memRegistry{entries: make(map[string]model.BlobRegistryEntry)}
}

func (m *memRegistry) Lookup(_ context.Context, hash string) (model.BlobRegistryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[hash]
	return e, ok, nil
}

func (m *memRegistry) IncrementRef(_ context.Context, hash string) (model.BlobRegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[hash]
	e.RefCount++
	e.LastAccessed = time.Now().UTC()
	m.entries[hash] = e
	return e, nil
}

func (m *memRegistry) Insert(_ context.Context, entry model.BlobRegistryEntry) (model.BlobRegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[entry.ContentHash]; ok {
		existing.RefCount++
		existing.LastAccessed = time.Now().UTC()
		m.entries[entry.ContentHash] = existing
		return existing, nil
	}
	m.entries[entry.ContentHash] = entry
	return entry, nil
}

func (m *memRegistry) DecrementRef(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[hash]
	if e.RefCount > 0 {
		e.RefCount--
	}
	m.entries[hash] = e
	return nil
}

func (m *memRegistry) Delete(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, hash)
	return nil
}

func (m *memRegistry) ListUnreferenced(_ context.Context, olderThan time.Time) ([]model.BlobRegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BlobRegistryEntry
	for _, e := range m.entries {
		if e.RefCount == 0 && e.LastAccessed.Before(olderThan) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRegistry) MarkCorrupt(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[hash]
	e.Corrupt = true
	m.entries[hash] = e
	return nil
}

func (m *memRegistry) UpdateTier(_ context.Context, hash string, tier model.StorageTier, storagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[hash]
	e.StorageTier = tier
	e.StoragePath = storagePath
	m.entries[hash] = e
	return nil
}

func TestPutInlineBelowThreshold(t *testing.T) {
	s := New(t.TempDir(), newMemRegistry(), 4096, model.CompressionNone)
	ref, err := s.Put(context.Background(), []byte("hi\n"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref.StorageType != model.StorageInline {
		t.Fatalf("StorageType = %q, want inline", ref.StorageType)
	}
	if !strings.HasPrefix(ref.StorageRef, "data:") {
		t.Fatalf("StorageRef = %q, want data: URI", ref.StorageRef)
	}
}

func TestPutEmptyIsInline(t *testing.T) {
	s := New(t.TempDir(), newMemRegistry(), 4096, model.CompressionNone)
	ref, err := s.Put(context.Background(), []byte{}, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref.StorageType != model.StorageInline {
		t.Fatalf("empty Put: StorageType = %q, want inline", ref.StorageType)
	}
}

func TestPutOpenRoundTrip(t *testing.T) {
	s := New(t.TempDir(), newMemRegistry(), 16, model.CompressionNone)
	data := []byte(strings.Repeat("X", 10000))
	ref, err := s.Put(context.Background(), data, "echo")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref.StorageType != model.StorageBlob {
		t.Fatalf("StorageType = %q, want blob", ref.StorageType)
	}
	rc, err := s.Open(context.Background(), ref.StorageType, "file:"+ref.StorageRef)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestPutDedup(t *testing.T) {
	s := New(t.TempDir(), newMemRegistry(), 16, model.CompressionNone)
	data := []byte(strings.Repeat("Y", 10000))

	ref1, err := s.Put(context.Background(), data, "a")
	if err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	ref2, err := s.Put(context.Background(), data, "a")
	if err != nil {
		t.Fatalf("Put 2: %v", err)
	}
	if ref1.Hash != ref2.Hash {
		t.Fatalf("hash mismatch: %q vs %q", ref1.Hash, ref2.Hash)
	}
	if !ref2.DedupHit {
		t.Fatal("second Put should be a dedup hit")
	}

	entry, ok, err := s.Registry.Lookup(context.Background(), ref1.Hash)
	if err != nil || !ok {
		t.Fatalf("Lookup: %v, ok=%v", err, ok)
	}
	if entry.RefCount != 2 {
		t.Fatalf("RefCount = %d, want 2", entry.RefCount)
	}
}

func TestReclaimDeletesUnreferenced(t *testing.T) {
	reg := newMemRegistry()
	s := New(t.TempDir(), reg, 16, model.CompressionNone)
	data := []byte(strings.Repeat("Z", 10000))
	ref, err := s.Put(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := reg.DecrementRef(context.Background(), ref.Hash); err != nil {
		t.Fatalf("DecrementRef: %v", err)
	}

	stats, err := s.Reclaim(context.Background(), 0)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if stats.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", stats.Deleted)
	}
	if _, ok, _ := reg.Lookup(context.Background(), ref.Hash); ok {
		t.Fatal("registry row should be gone after reclamation")
	}
}

func TestPutStoragePathCarriesTierPrefix(t *testing.T) {
	s := New(t.TempDir(), newMemRegistry(), 16, model.CompressionNone)
	data := []byte(strings.Repeat("Q", 10000))
	ref, err := s.Put(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := string(model.TierRecent) + "/" + ref.Hash[:2] + "/"
	if !strings.HasPrefix(ref.StorageRef, want) {
		t.Fatalf("StorageRef = %q, want prefix %q", ref.StorageRef, want)
	}
}

func TestMigrateToArchiveMovesBytesAndUpdatesRegistry(t *testing.T) {
	reg := newMemRegistry()
	s := New(t.TempDir(), reg, 16, model.CompressionNone)
	data := []byte(strings.Repeat("M", 10000))
	ref, err := s.Put(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.MigrateToArchive(context.Background(), ref.Hash); err != nil {
		t.Fatalf("MigrateToArchive: %v", err)
	}

	entry, ok, err := reg.Lookup(context.Background(), ref.Hash)
	if err != nil || !ok {
		t.Fatalf("Lookup after migrate: ok=%v err=%v", ok, err)
	}
	if entry.StorageTier != model.TierArchive {
		t.Fatalf("StorageTier = %q, want archive", entry.StorageTier)
	}
	if !strings.HasPrefix(entry.StoragePath, string(model.TierArchive)+"/") {
		t.Fatalf("StoragePath = %q, want archive/ prefix", entry.StoragePath)
	}

	rc, err := s.Open(context.Background(), model.StorageBlob, "file:"+entry.StoragePath)
	if err != nil {
		t.Fatalf("Open after migrate: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll after migrate: %v", err)
	}
	if string(got) != string(data) {
		t.Fatal("bytes changed across migration")
	}
}

func TestAdoptBlobWritesAtExactPath(t *testing.T) {
	reg := newMemRegistry()
	s := New(t.TempDir(), reg, 16, model.CompressionNone)
	data := []byte(strings.Repeat("A", 100))
	hash := model.HashBytes(data)
	storagePath := string(model.TierRecent) + "/" + hash[:2] + "/" + hash + ".bin"

	if err := s.AdoptBlob(context.Background(), hash, model.TierRecent, storagePath, int64(len(data)), data); err != nil {
		t.Fatalf("AdoptBlob: %v", err)
	}

	entry, ok, err := reg.Lookup(context.Background(), hash)
	if err != nil || !ok {
		t.Fatalf("Lookup after adopt: ok=%v err=%v", ok, err)
	}
	if entry.StoragePath != storagePath {
		t.Fatalf("StoragePath = %q, want %q", entry.StoragePath, storagePath)
	}

	got, err := s.RawBlobBytes(storagePath)
	if err != nil {
		t.Fatalf("RawBlobBytes: %v", err)
	}
	if string(got) != string(data) {
		t.Fatal("adopted bytes do not match")
	}
}

func TestReclaimSkipsFreshlyReferenced(t *testing.T) {
	reg := newMemRegistry()
	s := New(t.TempDir(), reg, 16, model.CompressionNone)
	data := []byte(strings.Repeat("W", 10000))
	ref, err := s.Put(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	// ref_count stays at 1 (still referenced); grace period long.
	stats, err := s.Reclaim(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if stats.Deleted != 0 {
		t.Fatalf("Deleted = %d, want 0 (still referenced)", stats.Deleted)
	}
	if _, ok, _ := reg.Lookup(context.Background(), ref.Hash); !ok {
		t.Fatal("registry row should still exist")
	}
}
