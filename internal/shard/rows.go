package shard

import (
	"context"
	"fmt"

	"github.com/scbrown/irs/internal/model"
)

// RowWriter adapts Writer to the capture facade's backend capability
// interface, the multi-writer analogue of internal/embedded.Writer:
// each Insert call produces one new shard file rather than one new
// table row, but the caller-facing contract (and the union view an
// internal/query Gateway installs over the result) is identical.
type RowWriter struct {
	w *Writer
}

// NewRowWriter wraps w as a row writer over the given partition root.
func NewRowWriter(root string) *RowWriter {
	return &RowWriter{w: NewWriter(root)}
}

func (r *RowWriter) InsertAttempt(ctx context.Context, a model.Attempt) error {
	_, err := r.w.WriteRow(ctx, RelationAttempts, a.Date, a.SessionID, a.FormatHint, a)
	if err != nil {
		return fmt.Errorf("shard: insert attempt: %w", err)
	}
	return nil
}

func (r *RowWriter) InsertOutcome(ctx context.Context, o model.Outcome) error {
	_, err := r.w.WriteRow(ctx, RelationOutcomes, o.Date, o.AttemptID.String(), "", o)
	if err != nil {
		return fmt.Errorf("shard: insert outcome: %w", err)
	}
	return nil
}

func (r *RowWriter) InsertOutput(ctx context.Context, o model.Output) error {
	_, err := r.w.WriteRow(ctx, RelationOutputs, o.Date, o.InvocationID.String(), string(o.Stream), o)
	if err != nil {
		return fmt.Errorf("shard: insert output: %w", err)
	}
	return nil
}

func (r *RowWriter) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := r.w.WriteRow(ctx, RelationEvents, e.Date, e.InvocationID.String(), e.EventType, e)
	if err != nil {
		return fmt.Errorf("shard: insert event: %w", err)
	}
	return nil
}

// PendingAttempts reads every attempts shard across every partition
// date and returns those with no matching outcomes-shard row. This is
// the multi-writer analogue of a LEFT JOIN ... WHERE NULL query; it is
// O(partition size) rather than index-backed, matching the shard
// backend's query-by-scan nature (its union-by-name read model).
func (r *RowWriter) PendingAttempts(ctx context.Context, dates []string) ([]model.Attempt, error) {
	completed := make(map[string]bool)
	var attempts []model.Attempt

	for _, date := range dates {
		if err := ReadPartition(RelationOutcomes, r.w.root, date, func() any { return new(model.Outcome) },
			func(row any) error {
				o := row.(*model.Outcome)
				completed[o.AttemptID.String()] = true
				return nil
			}); err != nil {
			return nil, err
		}
	}
	for _, date := range dates {
		if err := ReadPartition(RelationAttempts, r.w.root, date, func() any { return new(model.Attempt) },
			func(row any) error {
				a := row.(*model.Attempt)
				attempts = append(attempts, *a)
				return nil
			}); err != nil {
			return nil, err
		}
	}

	var pending []model.Attempt
	for _, a := range attempts {
		if !completed[a.ID.String()] {
			pending = append(pending, a)
		}
	}
	return pending, nil
}
