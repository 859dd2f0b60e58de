package blobstore

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// hashReader streams r through a BLAKE3 hasher without buffering the
// whole blob in memory, for the integrity-sweep path.
func hashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
