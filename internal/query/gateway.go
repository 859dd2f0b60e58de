// Package query implements the Query Gateway (C8): a read-only view
// over either physical backend that always exposes the same logical
// invocations relation, resolving blob references on demand.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"

	"github.com/scbrown/irs/internal/blobstore"
	"github.com/scbrown/irs/internal/embedded"
	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/shard"
)

// Gateway serves queries over a store, regardless of which physical
// backend (C2 shard files or C3 embedded tables) holds the rows. A
// single-writer store has db set and shardRoot empty; a multi-writer
// store has shardRoot set and db set only for the shared blob
// registry, never for rows (per internal/embedded's package doc).
type Gateway struct {
	db        *embedded.DB
	shardRoot string
	blobs     *blobstore.Store
}

// Connect builds a Gateway. db holds rows in single-writer mode (pass
// the row-holding *embedded.DB); shardRoot holds rows in multi-writer
// mode (pass the shard partition root, and a db used only as the blob
// registry's backing store). blobs resolves storage refs for both
// modes identically — step 2 of the connect sequence, setting the
// blob-roots list the resolve helper uses (blobs.BlobRoots, set by the
// caller before Connect).
func Connect(db *embedded.DB, shardRoot string, blobs *blobstore.Store) *Gateway {
	return &Gateway{db: db, shardRoot: shardRoot, blobs: blobs}
}

// Filter narrows a ListInvocations call. Zero values impose no
// constraint on that field.
type Filter struct {
	SessionID string
	Status    model.Status
	Since     string // date, inclusive, YYYY-MM-DD
	Tag       string
	Limit     int
}

func (f Filter) matches(inv model.Invocation) bool {
	if f.SessionID != "" && inv.SessionID != f.SessionID {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.Tag != "" && inv.Tag != f.Tag {
		return false
	}
	if f.Since != "" && inv.Date < f.Since {
		return false
	}
	return true
}

// ListInvocations returns invocations matching filter, newest first.
func (g *Gateway) ListInvocations(ctx context.Context, filter Filter) ([]model.Invocation, error) {
	var all []model.Invocation
	var err error
	if g.shardRoot != "" {
		all, err = g.listFromShards(filter)
	} else {
		all, err = g.listFromEmbedded(ctx, filter)
	}
	if err != nil {
		return nil, err
	}

	var out []model.Invocation
	for _, inv := range all {
		if filter.matches(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (g *Gateway) listFromEmbedded(ctx context.Context, _ Filter) ([]model.Invocation, error) {
	rows, err := g.db.QueryInvocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: list invocations: %w", err)
	}
	return rows, nil
}

// listFromShards unions the attempts and outcomes shard relations
// across every partition date present (the multi-writer gateway
// installs a union-by-name view; here, in the absence of an analytic
// engine to install that view into, the union is performed directly
// in Go over the same partition layout).
func (g *Gateway) listFromShards(_ Filter) ([]model.Invocation, error) {
	dates, err := shard.ListPartitionDates(g.shardRoot, shard.RelationAttempts)
	if err != nil {
		return nil, err
	}

	outcomesByAttempt := make(map[string]model.Outcome)
	outcomeDates, err := shard.ListPartitionDates(g.shardRoot, shard.RelationOutcomes)
	if err != nil {
		return nil, err
	}
	for _, date := range outcomeDates {
		err := shard.ReadPartition(shard.RelationOutcomes, g.shardRoot, date, func() any { return new(model.Outcome) },
			func(row any) error {
				o := row.(*model.Outcome)
				outcomesByAttempt[o.AttemptID.String()] = *o
				return nil
			})
		if err != nil {
			return nil, err
		}
	}

	var out []model.Invocation
	for _, date := range dates {
		err := shard.ReadPartition(shard.RelationAttempts, g.shardRoot, date, func() any { return new(model.Attempt) },
			func(row any) error {
				a := row.(*model.Attempt)
				if o, ok := outcomesByAttempt[a.ID.String()]; ok {
					out = append(out, model.JoinInvocation(*a, &o))
				} else {
					out = append(out, model.JoinInvocation(*a, nil))
				}
				return nil
			})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Stats summarizes the invocation set by derived status.
type Stats struct {
	Total     int
	Pending   int
	Orphaned  int
	Completed int
}

// Stats computes aggregate counts over every invocation matching
// filter.
func (g *Gateway) Stats(ctx context.Context, filter Filter) (Stats, error) {
	invs, err := g.ListInvocations(ctx, filter)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, inv := range invs {
		s.Total++
		switch inv.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusOrphaned:
			s.Orphaned++
		case model.StatusCompleted:
			s.Completed++
		}
	}
	return s, nil
}

// ReadBlob resolves an output's storage reference to its bytes,
// regardless of whether they are inline or blob-backed.
func (g *Gateway) ReadBlob(ctx context.Context, storageType model.StorageType, storageRef string) (io.ReadCloser, error) {
	return g.blobs.Open(ctx, storageType, storageRef)
}

// SchemaVersion reports the store's recorded schema version and
// whether this reader is too old to safely serve it (readers go
// read-only and log a warning if the stored version is ahead of what
// they support).
func (g *Gateway) SchemaVersion(ctx context.Context) (stored string, supported bool, err error) {
	if g.db == nil {
		return model.SchemaVersion, true, nil
	}
	v, err := g.db.SchemaVersion(ctx)
	if err != nil && err != sql.ErrNoRows {
		return "", false, err
	}
	if v == "" {
		return model.SchemaVersion, true, nil
	}
	return v, v <= model.SchemaVersion, nil
}
