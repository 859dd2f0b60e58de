package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scbrown/irs/internal/sync"
)

// syncSide is the subset of embedded.DB's and shard.RowWriter's sync
// methods a table dispatches to.
type syncSide interface {
	IDsSince(ctx context.Context, table, since, client, tag string) ([]string, error)
	FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error)
	UpsertRows(ctx context.Context, table string, rows json.RawMessage) error
}

// rowSide returns the syncSide backing table. Sessions always live in
// the embedded registry database even in multi-writer mode — they are
// optional, low-volume grouping metadata, and sharing one place for
// them avoids giving every shard-mode store a sixth shard relation
// for a relation that sees at most one write per session.
func (s *Store) rowSide(table string) syncSide {
	if table == "sessions" || s.shardRoot == "" {
		return s.db
	}
	return s.rowBackend.(syncSide)
}

// IDsSince implements sync.LocalAdapter.
func (s *Store) IDsSince(ctx context.Context, table, since, client, tag string) ([]string, error) {
	return s.rowSide(table).IDsSince(ctx, table, since, client, tag)
}

// FetchRows implements sync.LocalAdapter.
func (s *Store) FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error) {
	return s.rowSide(table).FetchRows(ctx, table, ids)
}

// UpsertRows implements sync.LocalAdapter.
func (s *Store) UpsertRows(ctx context.Context, table string, rows json.RawMessage) error {
	return s.rowSide(table).UpsertRows(ctx, table, rows)
}

// ReadBlob implements sync.LocalAdapter, reading a blob's exact bytes
// off disk for the push side to transfer byte-for-byte.
func (s *Store) ReadBlob(ctx context.Context, hash string) (sync.BlobPayload, bool, error) {
	entry, ok, err := s.blobs.Registry.Lookup(ctx, hash)
	if err != nil {
		return sync.BlobPayload{}, false, err
	}
	if !ok {
		return sync.BlobPayload{}, false, nil
	}
	data, err := s.blobs.RawBlobBytes(entry.StoragePath)
	if err != nil {
		return sync.BlobPayload{}, false, err
	}
	return sync.BlobPayload{
		Hash:        hash,
		Tier:        entry.StorageTier,
		StoragePath: entry.StoragePath,
		ByteLength:  entry.ByteLength,
		Data:        data,
	}, true, nil
}

// WriteBlob implements sync.LocalAdapter, adopting a synced blob at
// the identical storage_ref the synced output row already carries.
func (s *Store) WriteBlob(ctx context.Context, payload sync.BlobPayload) error {
	return s.blobs.AdoptBlob(ctx, payload.Hash, payload.Tier, payload.StoragePath, payload.ByteLength, payload.Data)
}

// SyncEngine builds a sync.Engine over this store and a remote peer
// reachable at baseURL, authenticating with token if non-empty.
func (s *Store) SyncEngine(baseURL, token string) *sync.Engine {
	transport := sync.NewHTTPTransport(baseURL, token)
	return sync.New(s, transport)
}

// Push runs one push pass against the store's configured remote.
func (s *Store) Push(ctx context.Context, sel sync.Selection) (sync.Result, error) {
	if s.cfg.RemoteURL == "" {
		return sync.Result{}, fmt.Errorf("store: push: remote_url is not configured")
	}
	return s.SyncEngine(s.cfg.RemoteURL, "").Push(ctx, sel)
}

// Pull runs one pull pass against the store's configured remote.
func (s *Store) Pull(ctx context.Context, sel sync.Selection) (sync.Result, error) {
	if s.cfg.RemoteURL == "" {
		return sync.Result{}, fmt.Errorf("store: pull: remote_url is not configured")
	}
	return s.SyncEngine(s.cfg.RemoteURL, "").Pull(ctx, sel)
}
