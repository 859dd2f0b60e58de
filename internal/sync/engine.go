package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scbrown/irs/internal/model"
)

// tableOrder is the dependency order this protocol requires when pushing or
// pulling a set of ids, so that a row never arrives before anything
// it soft-references.
var tableOrder = []string{"sessions", "attempts", "outcomes", "outputs", "events"}

// blobTable is the one relation whose rows may reference a blob that
// needs to travel with them.
const blobTable = "outputs"

// BlobPayload is a blob's bytes plus the registry metadata the
// destination needs to adopt it at the identical storage_ref the
// synced row already carries.
type BlobPayload struct {
	Hash        string            `json:"hash"`
	Tier        model.StorageTier `json:"tier"`
	StoragePath string            `json:"storage_path"`
	ByteLength  int64             `json:"byte_length"`
	Data        []byte            `json:"data"`
}

// LocalAdapter is the local side of a sync exchange, symmetric with
// Transport so the same diff-then-copy logic drives both Push and
// Pull.
type LocalAdapter interface {
	IDsSince(ctx context.Context, table, since, client, tag string) ([]string, error)
	FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error)
	UpsertRows(ctx context.Context, table string, rows json.RawMessage) error
	// ReadBlob returns the payload for a blob-backed output's
	// content_hash, or ok=false if this side holds no such blob
	// (an inline-stored output, or one this side never captured).
	ReadBlob(ctx context.Context, hash string) (BlobPayload, bool, error)
	// WriteBlob adopts payload at its own StoragePath, incrementing
	// ref_count if this side already holds the hash.
	WriteBlob(ctx context.Context, payload BlobPayload) error
}

// Selection filters the id set a Push or Pull operates over.
type Selection struct {
	Since  string
	Client string
	Tag    string
}

// Result summarizes one sync direction's outcome, per table, plus the
// count of blobs transferred alongside blob-backed outputs rows.
type Result struct {
	Transferred map[string]int
	Blobs       int
}

func newResult() Result { return Result{Transferred: make(map[string]int)} }

// Engine replicates rows between a local store and a remote peer.
// Conflicts are impossible under the append-only invariant that each
// id denotes exactly one row; if both sides somehow hold a row for
// the same id with different content (should not occur in normal
// operation), the documented policy applies at the call site:
// Pull lets the local row win, Push lets the remote row win — in
// both cases this Engine simply never overwrites the side declared
// the winner, by only ever copying ids absent on the destination.
type Engine struct {
	local     LocalAdapter
	transport Transport
}

// New builds an Engine over local and a remote transport.
func New(local LocalAdapter, transport Transport) *Engine {
	return &Engine{local: local, transport: transport}
}

// Push copies rows present locally but absent remotely, table by
// table in dependency order. outputs rows backed by a blob carry
// their blob bytes along (§4.6): the blob store's dedup means a blob
// already present at the destination is just a ref_count bump there.
func (e *Engine) Push(ctx context.Context, sel Selection) (Result, error) {
	return e.copy(ctx, sel, e.local.IDsSince, e.transport.ListIDs, e.local.FetchRows, e.transport.PushRows, e.local.ReadBlob, e.transport.PushBlob)
}

// Pull copies rows present remotely but absent locally, table by
// table in dependency order, with the same blob-follows-row behavior
// as Push.
func (e *Engine) Pull(ctx context.Context, sel Selection) (Result, error) {
	return e.copy(ctx, sel, e.transport.ListIDs, e.local.IDsSince, e.transport.FetchRows, e.local.UpsertRows, e.transport.FetchBlob, e.local.WriteBlob)
}

type idLister func(ctx context.Context, table, since, client, tag string) ([]string, error)
type rowFetcher func(ctx context.Context, table string, ids []string) (json.RawMessage, error)
type rowWriter func(ctx context.Context, table string, rows json.RawMessage) error
type blobReader func(ctx context.Context, hash string) (BlobPayload, bool, error)
type blobWriter func(ctx context.Context, payload BlobPayload) error

func (e *Engine) copy(ctx context.Context, sel Selection, srcIDs, dstIDs idLister, fetch rowFetcher, write rowWriter, readBlob blobReader, writeBlob blobWriter) (Result, error) {
	res := newResult()
	for _, table := range tableOrder {
		src, err := srcIDs(ctx, table, sel.Since, sel.Client, sel.Tag)
		if err != nil {
			return res, fmt.Errorf("sync: list source ids for %s: %w", table, err)
		}
		dst, err := dstIDs(ctx, table, sel.Since, sel.Client, sel.Tag)
		if err != nil {
			return res, fmt.Errorf("sync: list destination ids for %s: %w", table, err)
		}

		missing := diff(src, dst)
		if len(missing) == 0 {
			continue
		}

		rows, err := fetch(ctx, table, missing)
		if err != nil {
			return res, fmt.Errorf("sync: fetch rows for %s: %w", table, err)
		}
		if err := write(ctx, table, rows); err != nil {
			return res, fmt.Errorf("sync: write rows for %s: %w", table, err)
		}
		res.Transferred[table] = len(missing)

		if table == blobTable {
			n, err := e.copyBlobs(ctx, rows, readBlob, writeBlob)
			if err != nil {
				return res, err
			}
			res.Blobs += n
		}
	}
	return res, nil
}

// copyBlobs transfers the blob bytes referenced by any blob-backed
// output in rows. Inline-stored outputs carry their bytes in the row
// itself and need no transfer.
func (e *Engine) copyBlobs(ctx context.Context, rows json.RawMessage, readBlob blobReader, writeBlob blobWriter) (int, error) {
	var outputs []model.Output
	if err := json.Unmarshal(rows, &outputs); err != nil {
		return 0, fmt.Errorf("sync: decode outputs for blob transfer: %w", err)
	}

	seen := make(map[string]bool)
	n := 0
	for _, o := range outputs {
		if o.StorageType != model.StorageBlob || o.ContentHash == "" || seen[o.ContentHash] {
			continue
		}
		seen[o.ContentHash] = true

		payload, ok, err := readBlob(ctx, o.ContentHash)
		if err != nil {
			return n, fmt.Errorf("sync: read blob %s: %w", o.ContentHash, err)
		}
		if !ok {
			continue
		}
		if err := writeBlob(ctx, payload); err != nil {
			return n, fmt.Errorf("sync: write blob %s: %w", o.ContentHash, err)
		}
		n++
	}
	return n, nil
}

func diff(src, dst []string) []string {
	present := make(map[string]bool, len(dst))
	for _, id := range dst {
		present[id] = true
	}
	var missing []string
	for _, id := range src {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
