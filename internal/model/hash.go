package model

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashBytes returns the lowercase hex BLAKE3 digest of data, as stored
// in Output.ContentHash and BlobRegistryEntry.ContentHash.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
