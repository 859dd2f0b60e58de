// Package shard implements the Shard Writer (C2): the append-only,
// immutable file backend for the four row relations (attempts,
// outcomes, outputs, events). Each shard is a newline-delimited JSON
// file under a date-partitioned hive directory; a freshly written
// shard holds exactly one row, while a compacted shard (produced by
// internal/lifecycle) holds the merged rows of the shards it replaced
// — both are valid "one or more rows" shards per the relation's union
// view.
package shard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/scbrown/irs/internal/ioutil"
)

// Relation names the four row relations a shard directory tree holds.
type Relation string

const (
	RelationAttempts Relation = "attempts"
	RelationOutcomes Relation = "outcomes"
	RelationOutputs  Relation = "outputs"
	RelationEvents   Relation = "events"
)

const shardExt = ".shard"

// Writer appends rows to per-relation, per-date shard files under
// root. Each WriteRow call produces exactly one new file — there is
// no in-place append, matching the write-once, rename-into-place
// protocol shared with internal/blobstore.
type Writer struct {
	root string
}

// NewWriter returns a Writer rooted at root (typically
// "<store>/data/recent").
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// PartitionDir returns the hive-style directory for relation on date
// (YYYY-MM-DD).
func (w *Writer) PartitionDir(rel Relation, date string) string {
	return filepath.Join(w.root, string(rel), "date="+date)
}

// WriteRow marshals row as one JSON line and writes it as a new shard
// named "{session}--{hint}--{uuid}.shard" in rel's partition for date.
// session and hint may be empty; an empty hint collapses the filename
// to "{session}----{uuid}.shard" (still unique and still parseable by
// ParseShardName, since uuid is always the final, fixed-format field).
func (w *Writer) WriteRow(_ context.Context, rel Relation, date, session, hint string, row any) (string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("shard: marshal row: %w", err)
	}
	data = append(data, '\n')

	id := uuid.New()
	name := ShardName(session, hint, id.String())
	dir := w.PartitionDir(rel, date)

	path, _, err := ioutil.WriteAtomic(dir, name, data)
	if err != nil {
		return "", fmt.Errorf("shard: write %s/%s: %w", rel, name, err)
	}
	return path, nil
}

// ShardName builds a shard's filename from its session, format hint,
// and a trailing unique token (a UUID for a normal shard, or
// "__compacted-{generation}__--{uuid}" for a compacted one).
func ShardName(session, hint, unique string) string {
	return fmt.Sprintf("%s--%s--%s%s", session, hint, unique, shardExt)
}

// CompactedUnique builds the unique-token segment for a compacted
// shard at the given generation.
func CompactedUnique(generation int, id uuid.UUID) string {
	return fmt.Sprintf("__compacted-%d__--%s", generation, id.String())
}

// ParsedShard holds the components of a parsed shard filename.
type ParsedShard struct {
	Session    string
	Hint       string
	Compacted  bool
	Generation int
	Temp       bool
}

// ParseShardName decomposes a shard's base filename. Temp files
// (".tmp.*" — internal/ioutil's write-in-progress names) report
// Temp=true; callers enumerating shards for compaction or query must
// skip these.
func ParseShardName(name string) (ParsedShard, bool) {
	if strings.HasPrefix(name, ".") {
		return ParsedShard{Temp: true}, true
	}
	if !strings.HasSuffix(name, shardExt) {
		return ParsedShard{}, false
	}
	base := strings.TrimSuffix(name, shardExt)
	parts := strings.SplitN(base, "--", 3)
	if len(parts) != 3 {
		return ParsedShard{}, false
	}
	p := ParsedShard{Session: parts[0], Hint: parts[1]}
	if strings.HasPrefix(parts[2], "__compacted-") {
		rest := strings.TrimPrefix(parts[2], "__compacted-")
		genStr, _, ok := strings.Cut(rest, "__--")
		if !ok {
			return ParsedShard{}, false
		}
		gen := 0
		if _, err := fmt.Sscanf(genStr, "%d", &gen); err != nil {
			return ParsedShard{}, false
		}
		p.Compacted = true
		p.Generation = gen
	}
	return p, true
}

// ReadPartition reads and decodes every row from every non-temp shard
// file in rel's partition for date, in filename sort order (a stable,
// if not causally meaningful, order — see the union view's ordering
// note). dst is a factory returning a fresh value to decode each row
// into; ReadPartition calls visit once per decoded row.
func ReadPartition(rel Relation, root, date string, dst func() any, visit func(row any) error) error {
	dir := filepath.Join(root, string(rel), "date="+date)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("shard: read partition dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if parsed, ok := ParseShardName(e.Name()); !ok || parsed.Temp {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := readShardFile(filepath.Join(dir, name), dst, visit); err != nil {
			return err
		}
	}
	return nil
}

func readShardFile(path string, dst func() any, visit func(row any) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("shard: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		row := dst()
		if err := json.Unmarshal(line, row); err != nil {
			return fmt.Errorf("shard: decode row in %s: %w", path, err)
		}
		if err := visit(row); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ListPartitionDates returns the sorted date= partition values present
// under rel's directory.
func ListPartitionDates(root string, rel Relation) ([]string, error) {
	dir := filepath.Join(root, string(rel))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shard: read relation dir %s: %w", dir, err)
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if date, ok := strings.CutPrefix(e.Name(), "date="); ok {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
