package recovery

import (
	"context"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// Backend is the subset of a row backend (internal/embedded.Writer or
// internal/shard.RowWriter) the coordinator needs: write a terminal
// outcome for an attempt found abandoned. The pending set itself is
// passed to Sweep by the caller.
type Backend interface {
	InsertOutcome(ctx context.Context, o model.Outcome) error
}

// Result summarizes one recovery pass.
type Result struct {
	Scanned  int
	Orphaned int
}

// Coordinator runs periodic liveness sweeps over the pending set.
type Coordinator struct {
	backend    Backend
	maxAge     time.Duration
	probeTimeout time.Duration
}

// New builds a Coordinator. maxAge is the age past which an attempt
// with unknown or failed liveness is declared orphaned (default 24h,
// per max_age_hours); probeTimeout bounds how long a single liveness
// probe may run, since probes are best-effort.
func New(backend Backend, maxAge, probeTimeout time.Duration) *Coordinator {
	return &Coordinator{backend: backend, maxAge: maxAge, probeTimeout: probeTimeout}
}

// Sweep evaluates each pending attempt and orphans those whose runner
// is dead, or whose liveness is unknown and whose age exceeds maxAge.
// A write race against a concurrent close (or a second coordinator
// run) surfaces as DuplicateOutcome from the backend, which Sweep
// treats as success — exactly one outcome now exists either way,
// scenario S4).
func (c *Coordinator) Sweep(ctx context.Context, pending []model.Attempt, now time.Time) (Result, error) {
	res := Result{Scanned: len(pending)}
	for _, a := range pending {
		orphan, reason := c.evaluate(a, now)
		if !orphan {
			continue
		}

		meta := model.Metadata{}
		if err := meta.Set("recovery", map[string]string{"reason": reason}); err != nil {
			return res, err
		}

		outcome := model.Outcome{
			AttemptID:   a.ID,
			CompletedAt: now,
			ExitCode:    nil,
			DurationMs:  now.Sub(a.Timestamp).Milliseconds(),
			Signal:      nil,
			Timeout:     false,
			Metadata:    meta,
			Date:        a.Date,
		}
		err := c.backend.InsertOutcome(ctx, outcome)
		if err != nil && !model.IsKind(err, model.KindDuplicateOutcome) {
			return res, err
		}
		res.Orphaned++
	}
	return res, nil
}

// evaluate decides whether a is abandoned, and if so why: dead
// liveness probe, or stale age with unknown liveness.
func (c *Coordinator) evaluate(a model.Attempt, now time.Time) (orphan bool, reason string) {
	age := now.Sub(a.Timestamp)

	liveness := LivenessUnknown
	if c.probeTimeout > 0 {
		done := make(chan Liveness, 1)
		go func() { done <- ProbeRunner(a.RunnerID) }()
		select {
		case liveness = <-done:
		case <-time.After(c.probeTimeout):
		}
	} else {
		liveness = ProbeRunner(a.RunnerID)
	}

	switch liveness {
	case LivenessAlive:
		return false, ""
	case LivenessDead:
		return true, "liveness_failed"
	default: // LivenessUnknown
		if age > c.maxAge {
			return true, "stale"
		}
		return false, ""
	}
}
