// Package lifecycle implements the Lifecycle Manager (C5): compaction
// of small shards within a partition and archival of cold partitions
// to the archive tier. Blob reclamation is not done in this package;
// internal/store's GC performs it.
package lifecycle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/ioutil"
	"github.com/scbrown/irs/internal/shard"
)

// CompactionThreshold is the default shard-count trigger per
// partition.
const CompactionThreshold = 50

// CompactResult summarizes one compaction pass over a partition.
type CompactResult struct {
	Skipped      bool // lock held elsewhere, or threshold not exceeded
	SourceShards int
	RowsMerged   int
	NewShard     string
}

// CompactPartition merges session's eligible shards in rel's partition
// for date into a single new shard, if the session's shard count there
// exceeds threshold. Rows are moved as raw JSON lines — compaction
// never decodes row content, since it is pure reorganisation of
// storage, not a transformation of logical rows.
func CompactPartition(root string, rel shard.Relation, date, session string, threshold int) (CompactResult, error) {
	dir := filepath.Join(root, string(rel), "date="+date)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return CompactResult{Skipped: true}, nil
	}
	if err != nil {
		return CompactResult{}, fmt.Errorf("lifecycle: read partition %s: %w", dir, err)
	}

	var eligible []string
	maxGeneration := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parsed, ok := shard.ParseShardName(e.Name())
		if !ok || parsed.Temp {
			continue
		}
		if parsed.Session != session {
			continue
		}
		if parsed.Compacted {
			if parsed.Generation > maxGeneration {
				maxGeneration = parsed.Generation
			}
			continue
		}
		eligible = append(eligible, e.Name())
	}

	if len(eligible) <= threshold {
		return CompactResult{Skipped: true, SourceShards: len(eligible)}, nil
	}

	lock, ok, err := TryLock(dir)
	if err != nil {
		return CompactResult{}, err
	}
	if !ok {
		return CompactResult{Skipped: true, SourceShards: len(eligible)}, nil
	}
	defer lock.Unlock()

	sort.Strings(eligible)

	var merged []byte
	rowsMerged := 0
	for _, name := range eligible {
		lines, n, err := readLines(filepath.Join(dir, name))
		if err != nil {
			return CompactResult{}, err
		}
		merged = append(merged, lines...)
		rowsMerged += n
	}

	generation := maxGeneration + 1
	newName := shard.ShardName(session, "", shard.CompactedUnique(generation, uuid.New()))
	if _, _, err := ioutil.WriteAtomic(dir, newName, merged); err != nil {
		return CompactResult{}, fmt.Errorf("lifecycle: write compacted shard: %w", err)
	}

	// Only delete sources after the merged shard is durably in place —
	// a crash between write and delete just leaves both the sources and
	// the compacted shard readable, a harmless superset.
	for _, name := range eligible {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return CompactResult{}, fmt.Errorf("lifecycle: remove source shard %s: %w", name, err)
		}
	}

	return CompactResult{
		SourceShards: len(eligible),
		RowsMerged:   rowsMerged,
		NewShard:     newName,
	}, nil
}

func readLines(path string) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("lifecycle: open %s: %w", path, err)
	}
	defer f.Close()

	var out []byte
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	return out, n, nil
}
