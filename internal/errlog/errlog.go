// Package errlog implements the errors.log sink: the append-only,
// newline-delimited JSON error record store that backs the "log and
// continue" policy named throughout the error-handling design for
// failures a caller should not have to observe directly (a blob write
// falling back to inline storage, a best-effort liveness probe that
// came back inconclusive, and similar).
package errlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scbrown/irs/internal/model"
)

// Record is one logged error.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Component string          `json:"component"`
	Kind      model.ErrorKind `json:"kind,omitempty"`
	Message   string          `json:"message"`
}

// Sink appends Records to a single errors.log file.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if needed) storeRoot/errors.log for append.
func Open(storeRoot string) (*Sink, error) {
	if err := os.MkdirAll(storeRoot, 0o755); err != nil {
		return nil, fmt.Errorf("errlog: mkdir %s: %w", storeRoot, err)
	}
	path := filepath.Join(storeRoot, "errors.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("errlog: open %s: %w", path, err)
	}
	return &Sink{file: f}, nil
}

// Close releases the underlying file handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Log appends one record for an error observed in component. If err
// is a *model.StoreError its Kind is recorded; otherwise Kind is
// empty.
func (s *Sink) Log(component string, err error) {
	if err == nil {
		return
	}
	kind, _ := model.KindOf(err)
	rec := Record{
		Timestamp: time.Now().UTC(),
		Component: component,
		Kind:      kind,
		Message:   err.Error(),
	}
	line, marshalErr := json.Marshal(rec)
	if marshalErr != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Write(line)
}

// Func returns a closure suitable for passing as a component's
// ErrLog callback (e.g. internal/blobstore.Store.ErrLog), binding
// component once.
func (s *Sink) Func(component string) func(op string, err error) {
	return func(op string, err error) {
		s.Log(fmt.Sprintf("%s.%s", component, op), err)
	}
}
