package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey digests a raw key secret into the hex form stored in key_hash.
// The same digest addresses the resolver cache, so the raw secret never
// reaches Redis either.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
