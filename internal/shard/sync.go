package shard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scbrown/irs/internal/model"
)

func relationFor(table string) (Relation, bool) {
	switch table {
	case "attempts":
		return RelationAttempts, true
	case "outcomes":
		return RelationOutcomes, true
	case "outputs":
		return RelationOutputs, true
	case "events":
		return RelationEvents, true
	default:
		return "", false
	}
}

// IDsSince returns the ids of table's rows across every partition
// date at or after since, optionally narrowed by client/tag — both of
// which only attempts rows carry, so the filters are no-ops for every
// other table (the sync engine's own dependency-order walk means a
// caller only ever needs finer filtering on the table it starts
// from).
func (r *RowWriter) IDsSince(ctx context.Context, table, since, client, tag string) ([]string, error) {
	rel, ok := relationFor(table)
	if !ok {
		return nil, fmt.Errorf("shard: unknown sync table %q", table)
	}

	dates, err := ListPartitionDates(r.w.root, rel)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, date := range dates {
		if since != "" && date < since {
			continue
		}
		if err := r.collectIDs(rel, date, table, client, tag, &ids); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (r *RowWriter) collectIDs(rel Relation, date, table, client, tag string, ids *[]string) error {
	switch table {
	case "attempts":
		return ReadPartition(rel, r.w.root, date, func() any { return new(model.Attempt) }, func(row any) error {
			a := row.(*model.Attempt)
			if client != "" && a.SourceClient != client {
				return nil
			}
			if tag != "" && a.Tag != tag {
				return nil
			}
			*ids = append(*ids, a.ID.String())
			return nil
		})
	case "outcomes":
		return ReadPartition(rel, r.w.root, date, func() any { return new(model.Outcome) }, func(row any) error {
			o := row.(*model.Outcome)
			*ids = append(*ids, o.AttemptID.String())
			return nil
		})
	case "outputs":
		return ReadPartition(rel, r.w.root, date, func() any { return new(model.Output) }, func(row any) error {
			o := row.(*model.Output)
			*ids = append(*ids, o.ID.String())
			return nil
		})
	case "events":
		return ReadPartition(rel, r.w.root, date, func() any { return new(model.Event) }, func(row any) error {
			e := row.(*model.Event)
			*ids = append(*ids, e.ID.String())
			return nil
		})
	}
	return nil
}

// FetchRows returns table's rows for the given ids, JSON-encoded.
// Shards have no by-id index, so this scans every partition date once
// per call — acceptable for the batch, infrequent nature of a sync
// pass, unlike the hot write/read paths.
func (r *RowWriter) FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error) {
	rel, ok := relationFor(table)
	if !ok {
		return nil, fmt.Errorf("shard: unknown sync table %q", table)
	}
	if len(ids) == 0 {
		return json.RawMessage("[]"), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	dates, err := ListPartitionDates(r.w.root, rel)
	if err != nil {
		return nil, err
	}

	switch table {
	case "attempts":
		var out []model.Attempt
		for _, date := range dates {
			if err := ReadPartition(rel, r.w.root, date, func() any { return new(model.Attempt) }, func(row any) error {
				a := row.(*model.Attempt)
				if want[a.ID.String()] {
					out = append(out, *a)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
		return json.Marshal(out)
	case "outcomes":
		var out []model.Outcome
		for _, date := range dates {
			if err := ReadPartition(rel, r.w.root, date, func() any { return new(model.Outcome) }, func(row any) error {
				o := row.(*model.Outcome)
				if want[o.AttemptID.String()] {
					out = append(out, *o)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
		return json.Marshal(out)
	case "outputs":
		var out []model.Output
		for _, date := range dates {
			if err := ReadPartition(rel, r.w.root, date, func() any { return new(model.Output) }, func(row any) error {
				o := row.(*model.Output)
				if want[o.ID.String()] {
					out = append(out, *o)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
		return json.Marshal(out)
	case "events":
		var out []model.Event
		for _, date := range dates {
			if err := ReadPartition(rel, r.w.root, date, func() any { return new(model.Event) }, func(row any) error {
				e := row.(*model.Event)
				if want[e.ID.String()] {
					out = append(out, *e)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
		return json.Marshal(out)
	}
	return json.RawMessage("[]"), nil
}

// UpsertRows writes each decoded row as a new shard, without checking
// whether a shard for the same id already exists. A row that is
// already present ends up stored twice: internal/query's shard read
// keeps one outcome per attempt id but lists every attempts row it
// reads. The sync engine only sends ids the destination lacks.
func (r *RowWriter) UpsertRows(ctx context.Context, table string, rows json.RawMessage) error {
	switch table {
	case "attempts":
		var items []model.Attempt
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, a := range items {
			if err := r.InsertAttempt(ctx, a); err != nil {
				return err
			}
		}
	case "outcomes":
		var items []model.Outcome
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, o := range items {
			if err := r.InsertOutcome(ctx, o); err != nil {
				return err
			}
		}
	case "outputs":
		var items []model.Output
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, o := range items {
			if err := r.InsertOutput(ctx, o); err != nil {
				return err
			}
		}
	case "events":
		var items []model.Event
		if err := json.Unmarshal(rows, &items); err != nil {
			return err
		}
		for _, e := range items {
			if err := r.InsertEvent(ctx, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("shard: unknown sync table %q", table)
	}
	return nil
}
