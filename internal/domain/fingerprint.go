package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Fingerprint identifies an upload set. Two sets share a fingerprint iff they
// contain the same files (name, size and content), in any order.
type Fingerprint string

// FingerprintOf computes the fingerprint of an upload set.
func FingerprintOf(uploads []Upload) Fingerprint {
	entries := make([]string, len(uploads))
	for i, u := range uploads {
		sum := sha256.Sum256(u.Data)
		entries[i] = fmt.Sprintf("%s\x00%d\x00%s", u.Name, u.Size(), hex.EncodeToString(sum[:]))
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte{'\n'})
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Short returns an abbreviated form for display.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}
