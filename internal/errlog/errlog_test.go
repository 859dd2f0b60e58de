package errlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/scbrown/irs/internal/model"
)

func TestLogAppendsRecord(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Log("blobstore.Put", model.NewError(model.KindBlobIoFailed, "blobstore.Put", errors.New("disk full")))

	f, err := os.Open(filepath.Join(root, "errors.log"))
	if err != nil {
		t.Fatalf("open errors.log: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("errors.log has no lines")
	}
	var rec Record
	if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Kind != model.KindBlobIoFailed {
		t.Fatalf("Kind = %q, want %q", rec.Kind, model.KindBlobIoFailed)
	}
	if rec.Component != "blobstore.Put" {
		t.Fatalf("Component = %q, want blobstore.Put", rec.Component)
	}
}

func TestLogNilErrorIsNoop(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	s.Log("x", nil)

	data, err := os.ReadFile(filepath.Join(root, "errors.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("errors.log = %q, want empty (nil error logged nothing)", data)
	}
}
