// Package blobstore implements the content-addressed blob store (C1):
// BLAKE3-hashed, deduplicated, reference-counted byte objects written
// with an atomic-rename protocol so concurrent writers never corrupt
// each other's output.
package blobstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scbrown/irs/internal/ioutil"
	"github.com/scbrown/irs/internal/model"
)

// Registry is the blob-registry relation. Implemented by
// internal/embedded's SQLite-backed store regardless of which backend
// (C2 or C3) is chosen for the other relations — a blob registry needs
// atomic upsert+increment across writers, which only the embedded
// engine gives it here.
type Registry interface {
	// Lookup returns the registry row for hash, or ok=false if absent.
	Lookup(ctx context.Context, hash string) (model.BlobRegistryEntry, bool, error)
	// IncrementRef atomically increments ref_count and bumps
	// last_accessed for hash. Returns the updated entry.
	IncrementRef(ctx context.Context, hash string) (model.BlobRegistryEntry, error)
	// Insert creates a new registry row with ref_count=1. If a row for
	// hash already exists (a concurrent writer raced this one),
	// Insert falls through to IncrementRef and returns that result.
	Insert(ctx context.Context, entry model.BlobRegistryEntry) (model.BlobRegistryEntry, error)
	// DecrementRef decrements ref_count for hash, never below zero.
	DecrementRef(ctx context.Context, hash string) error
	// Delete removes the registry row for hash.
	Delete(ctx context.Context, hash string) error
	// ListUnreferenced returns registry rows with ref_count == 0 and
	// last_accessed older than olderThan.
	ListUnreferenced(ctx context.Context, olderThan time.Time) ([]model.BlobRegistryEntry, error)
	// MarkCorrupt sets the corrupt flag for hash.
	MarkCorrupt(ctx context.Context, hash string) error
	// UpdateTier moves hash's registry row to tier at storagePath,
	// used when a blob's bytes migrate between storage tiers without
	// any change to their content or ref_count.
	UpdateTier(ctx context.Context, hash string, tier model.StorageTier, storagePath string) error
}

// Ref is the result of a successful Put.
type Ref struct {
	Hash        string
	StorageType model.StorageType
	StorageRef  string
	DedupHit    bool
}

// Store is the blob store. Root is the tier root directory
// ($STORE_ROOT/blobs); Registry is the shared registry backing store.
type Store struct {
	Root             string
	Registry         Registry
	InlineThreshold  int
	Compression      model.Compression
	BlobRoots        []string // search order for Open: recent, archive, remotes
	ErrLog           func(op string, err error)
}

// New constructs a Store rooted at root with the given registry.
func New(root string, reg Registry, inlineThreshold int, compression model.Compression) *Store {
	if inlineThreshold <= 0 {
		inlineThreshold = 4096
	}
	s := &Store{
		Root:            root,
		Registry:        reg,
		InlineThreshold: inlineThreshold,
		Compression:     compression,
		ErrLog:          func(string, error) {},
	}
	s.BlobRoots = []string{filepath.Join(root, "content")}
	return s
}

// Put computes hash = BLAKE3(bytes). If len(bytes) is below the inline
// threshold it returns an inline data: URI with no filesystem or
// registry I/O. Otherwise it performs the blob write protocol: temp
// write, atomic rename, registry upsert.
//
// Any I/O failure above the inline threshold falls back to inline
// storage rather than surface an error to the caller — per the
// BlobIoFailed policy, this is logged but never blocks the producer.
func (s *Store) Put(ctx context.Context, data []byte, hint string) (Ref, error) {
	if len(data) < s.InlineThreshold {
		return s.putInline(data), nil
	}

	ref, err := s.putBlob(ctx, data, hint)
	if err != nil {
		s.ErrLog("blobstore.Put", model.NewError(model.KindBlobIoFailed, "blobstore.Put", err))
		return s.putInline(data), nil
	}
	return ref, nil
}

func (s *Store) putInline(data []byte) Ref {
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
	return Ref{
		Hash:        model.HashBytes(data),
		StorageType: model.StorageInline,
		StorageRef:  uri,
	}
}

func (s *Store) putBlob(ctx context.Context, data []byte, hint string) (Ref, error) {
	hash := model.HashBytes(data)
	subdir := hash[:2]

	if entry, ok, err := s.Registry.Lookup(ctx, hash); err != nil {
		return Ref{}, err
	} else if ok {
		if _, err := s.Registry.IncrementRef(ctx, hash); err != nil {
			return Ref{}, err
		}
		return Ref{Hash: hash, StorageType: model.StorageBlob, StorageRef: entry.StoragePath, DedupHit: true}, nil
	}

	payload, ext, err := s.encode(data)
	if err != nil {
		return Ref{}, err
	}

	tier := model.TierRecent
	dir := filepath.Join(s.Root, "content", string(tier), subdir)
	name := hash
	if hint != "" {
		name = hash + "--" + sanitizeHint(hint)
	}
	name = name + ".bin" + ext

	_, _, err = ioutil.WriteAtomic(dir, name, payload)
	if err != nil {
		return Ref{}, err
	}

	// storage_path is tier-relative: {tier}/{hash[0:2]}/{name}, so a
	// blob's path alone records which tier currently holds its bytes.
	storagePath := filepath.Join(string(tier), subdir, name)
	entry := model.BlobRegistryEntry{
		ContentHash:  hash,
		ByteLength:   int64(len(data)),
		Compression:  s.Compression,
		RefCount:     1,
		FirstSeen:    time.Now().UTC(),
		LastAccessed: time.Now().UTC(),
		StorageTier:  tier,
		StoragePath:  storagePath,
	}
	inserted, err := s.Registry.Insert(ctx, entry)
	if err != nil {
		return Ref{}, err
	}
	// Insert falls through to IncrementRef if a peer raced us; either
	// way inserted.StoragePath is the canonical path to report.
	return Ref{Hash: hash, StorageType: model.StorageBlob, StorageRef: inserted.StoragePath, DedupHit: inserted.RefCount > 1}, nil
}

func (s *Store) encode(data []byte) (payload []byte, ext string, err error) {
	switch s.Compression {
	case model.CompressionGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return nil, "", err
		}
		if err := gw.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ".gz", nil
	case model.CompressionZstd:
		// No Go zstd library exists in the retrieved example pack;
		// degrade to uncompressed storage (MissingExtension policy).
		return data, "", nil
	default:
		return data, "", nil
	}
}

// MigrateToArchive moves hash's bytes from the recent tier to the
// archive tier and updates its registry row accordingly. It is a
// no-op if hash is already archived or unknown to the registry (the
// caller may have raced a concurrent reclaim).
func (s *Store) MigrateToArchive(ctx context.Context, hash string) error {
	entry, ok, err := s.Registry.Lookup(ctx, hash)
	if err != nil {
		return err
	}
	if !ok || entry.StorageTier == model.TierArchive {
		return nil
	}

	srcTail := strings.TrimPrefix(entry.StoragePath, string(model.TierRecent)+"/")
	dst := filepath.Join(s.Root, "content", string(model.TierArchive), srcTail)

	var src string
	for _, root := range s.BlobRoots {
		candidate := filepath.Join(root, entry.StoragePath)
		if _, statErr := os.Stat(candidate); statErr == nil {
			src = candidate
			break
		}
	}
	if src == "" {
		return model.NewError(model.KindBlobIntegrity, "blobstore.MigrateToArchive", fmt.Errorf("blob %s: storage_path %q not found under any blob root", hash, entry.StoragePath))
	}

	if err := ioutil.MoveFile(src, dst); err != nil {
		return fmt.Errorf("blobstore: migrate %s to archive: %w", hash, err)
	}

	archivePath := filepath.Join(string(model.TierArchive), srcTail)
	if err := s.Registry.UpdateTier(ctx, hash, model.TierArchive, archivePath); err != nil {
		return fmt.Errorf("blobstore: update tier for %s: %w", hash, err)
	}
	return nil
}

// RawBlobBytes reads the exact on-disk bytes at storageRef (compressed
// or not, whatever is physically stored) without decoding. Sync's
// push side uses this to transfer a blob byte-for-byte so the
// destination can adopt it at the identical storage_ref.
func (s *Store) RawBlobBytes(storageRef string) ([]byte, error) {
	tail := strings.TrimPrefix(storageRef, "file:")
	for _, root := range s.BlobRoots {
		path := filepath.Join(root, tail)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, model.NewError(model.KindBlobIntegrity, "blobstore.RawBlobBytes", fmt.Errorf("blob ref %q not found under any blob root", storageRef))
}

// AdoptBlob writes data (exactly as received, no re-encoding) at
// storagePath — the identical tier-relative path the synced row
// already references — and registers or increments hash in the
// registry at that path. Used by sync's pull side: unlike Put, it
// never derives its own filename, since the destination must keep the
// storage_ref the synced output row already carries.
func (s *Store) AdoptBlob(ctx context.Context, hash string, tier model.StorageTier, storagePath string, byteLength int64, data []byte) error {
	if _, ok, err := s.Registry.Lookup(ctx, hash); err != nil {
		return err
	} else if ok {
		_, err := s.Registry.IncrementRef(ctx, hash)
		return err
	}

	dst := filepath.Join(s.Root, "content", storagePath)
	dir := filepath.Dir(dst)
	if _, _, err := ioutil.WriteAtomic(dir, filepath.Base(dst), data); err != nil {
		return fmt.Errorf("blobstore: adopt blob %s: %w", hash, err)
	}

	entry := model.BlobRegistryEntry{
		ContentHash:  hash,
		ByteLength:   byteLength,
		Compression:  compressionFromExt(storagePath),
		RefCount:     1,
		FirstSeen:    time.Now().UTC(),
		LastAccessed: time.Now().UTC(),
		StorageTier:  tier,
		StoragePath:  storagePath,
	}
	_, err := s.Registry.Insert(ctx, entry)
	return err
}

// compressionFromExt infers the Compression a storage_path was
// written with from its file extension, for registry rows AdoptBlob
// constructs from bytes it did not itself encode.
func compressionFromExt(storagePath string) model.Compression {
	switch {
	case strings.HasSuffix(storagePath, ".gz"):
		return model.CompressionGzip
	case strings.HasSuffix(storagePath, ".zst"):
		return model.CompressionZstd
	default:
		return model.CompressionNone
	}
}

func sanitizeHint(hint string) string {
	hint = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, hint)
	if len(hint) > 40 {
		hint = hint[:40]
	}
	return hint
}

// Open resolves a storage_ref to a byte stream. Inline data: URIs are
// decoded directly. Blob references are searched against BlobRoots in
// order (recent, archive, remotes) and transparently decompressed by
// extension.
func (s *Store) Open(ctx context.Context, storageType model.StorageType, storageRef string) (io.ReadCloser, error) {
	if storageType == model.StorageInline || strings.HasPrefix(storageRef, "data:") {
		return openInline(storageRef)
	}
	return s.openBlob(storageRef)
}

func openInline(uri string) (io.ReadCloser, error) {
	idx := strings.Index(uri, ";base64,")
	if !strings.HasPrefix(uri, "data:") || idx < 0 {
		return nil, fmt.Errorf("blobstore: malformed inline ref %q", uri)
	}
	data, err := base64.StdEncoding.DecodeString(uri[idx+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("blobstore: decode inline ref: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) openBlob(ref string) (io.ReadCloser, error) {
	tail := strings.TrimPrefix(ref, "file:")
	for _, root := range s.BlobRoots {
		path := filepath.Join(root, tail)
		f, err := os.Open(path)
		if err == nil {
			return decompressing(f, path)
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, model.NewError(model.KindBlobIntegrity, "blobstore.Open", fmt.Errorf("blob ref %q not found under any blob root", ref))
}

func decompressing(f *os.File, path string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &gzipReadCloser{gr, f}, nil
	default:
		return f, nil
	}
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	gerr := g.gz.Close()
	ferr := g.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}
