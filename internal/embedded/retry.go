package embedded

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// Retry backoff constants, matched to the original store's connection
// retry loop: MAX_RETRIES=10, INITIAL_DELAY_MS=10, MAX_DELAY_MS=1000,
// with jitter derived from the attempt counter.
const (
	maxRetries      = 10
	initialDelay    = 10 * time.Millisecond
	maxDelay        = 1000 * time.Millisecond
)

// withRetry runs fn, retrying on "database is locked"/"busy" errors
// from the embedded engine with exponential backoff and jitter, up to
// maxRetries attempts. After exhaustion the error is wrapped as
// BackendBusy and surfaced to the caller.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := initialDelay
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}

		jitter := time.Duration((attempt*7)%10) * time.Millisecond
		wait := delay + jitter
		if wait > maxDelay {
			wait = maxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return model.NewError(model.KindBackendBusy, "embedded", lastErr)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrTxDone) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
