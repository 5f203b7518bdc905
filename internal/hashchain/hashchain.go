// Package hashchain provides the link computation for the append-only ledgers.
//
// Every ledger entry's hash is the SHA-256 digest of its canonical payload
// bytes concatenated with the hex hash of the preceding entry. The first entry
// of a chain links to Genesis, a well-known constant, instead of a real
// predecessor. The serialization of payload bytes is owned by each ledger and
// must stay fixed for the lifetime of its chain.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Genesis is the prev_hash of the first entry in every chain: 64 hex zeros.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// HashLen is the length of a hex-encoded chain hash.
const HashLen = 64

// Compute returns the hex-encoded SHA-256 of payload ++ prevHash.
// It is pure: same inputs always produce the same hash, across restarts.
func Compute(payload []byte, prevHash string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Sum256 returns the hex-encoded SHA-256 digest of data. Ledgers use it to
// bind artifact contents (PDF bytes) into a payload without storing them.
func Sum256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// IsWellFormed reports whether s looks like a chain hash: exactly 64
// lowercase hex characters. Public lookups reject anything else up front so
// malformed probes never reach the store.
func IsWellFormed(s string) bool {
	if len(s) != HashLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
