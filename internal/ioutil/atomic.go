// Package ioutil provides the atomic temp-file-then-rename write
// primitive used by the blob store and shard writer. Both rely on the
// POSIX rename-on-same-filesystem guarantee as their sole concurrency
// primitive; see the write protocols in internal/blobstore and
// internal/shard.
package ioutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to a uniquely-named temp file in dir, fsyncs
// it, then renames it to finalName. If the destination already exists
// by the time the rename would occur (a concurrent writer finished
// first), the temp file is discarded and wrote=false is returned —
// this is the expected, benign outcome of two writers racing to
// produce identical content (see the blob write protocol's step 4).
func WriteAtomic(dir, finalName string, data []byte) (path string, wrote bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("ioutil: mkdir %s: %w", dir, err)
	}
	final := filepath.Join(dir, finalName)
	if _, statErr := os.Stat(final); statErr == nil {
		return final, false, nil
	}

	tmpName, err := tempName("tmp")
	if err != nil {
		return "", false, err
	}
	tmpPath := filepath.Join(dir, tmpName)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", false, fmt.Errorf("ioutil: create temp %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("ioutil: write temp %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("ioutil: fsync temp %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("ioutil: close temp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, final); err != nil {
		// A peer may have completed the rename between our Stat and
		// our Rename. Treat a now-existing destination as success.
		if _, statErr := os.Stat(final); statErr == nil {
			os.Remove(tmpPath)
			return final, false, nil
		}
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("ioutil: rename %s -> %s: %w", tmpPath, final, err)
	}
	return final, true, nil
}

// tempName returns a collision-unique temporary filename prefixed by
// prefix, using process-unique random bytes (not PID or counters,
// which could collide across processes sharing a directory).
func tempName(prefix string) (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("ioutil: random temp suffix: %w", err)
	}
	return fmt.Sprintf(".%s.%s", prefix, hex.EncodeToString(b[:])), nil
}

// MoveFile renames src to dst, creating dst's parent directory first
// and falling back to copy-then-remove when src and dst sit on
// different filesystems (a plain os.Rename fails there). Used by
// tier migration (shard partition archival, blob archival) where the
// move is an administrative, not hot-path, operation and a non-atomic
// fallback is an acceptable tradeoff.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ioutil: mkdir %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("ioutil: read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("ioutil: write %s: %w", dst, err)
	}
	return os.Remove(src)
}
