package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// PartitionLock is a process-wide, filesystem-backed advisory lock on
// one partition directory. CompactPartition takes it to serialize
// compaction against peer processes; ArchivePartitions does not take
// it, and normal capture never does. The lock file stays in the
// directory after Unlock.
type PartitionLock struct {
	f *os.File
}

// TryLock attempts to acquire the lock for dir without blocking. A
// held-elsewhere lock reports ok=false, err=nil — the caller's policy
// is to skip this partition this pass, not to fail.
func TryLock(dir string) (lock *PartitionLock, ok bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("lifecycle: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, ".compaction.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("lifecycle: open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lifecycle: flock %s: %w", path, err)
	}
	return &PartitionLock{f: f}, true, nil
}

// Unlock releases the lock. Callers must not delete source shards
// until every delete in the compaction algorithm has completed, then
// call Unlock last.
func (l *PartitionLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("lifecycle: unlock: %w", err)
	}
	return l.f.Close()
}
