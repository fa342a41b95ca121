// Package sha256 fingerprints fetched pages for the raw page archive.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements opportunity.Hasher. Digests are lowercase hex and may be
// shortened to keep archive object names readable.
type Hasher struct {
	size int
}

// New returns a hasher producing full 64 character digests.
func New() *Hasher {
	return &Hasher{size: sha256.Size * 2}
}

// NewTruncated returns a hasher keeping the first n hex characters.
func NewTruncated(n int) (*Hasher, error) {
	if n < 8 || n > sha256.Size*2 {
		return nil, fmt.Errorf("digest length %d outside 8..%d", n, sha256.Size*2)
	}
	return &Hasher{size: n}, nil
}

func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.size > 0 && h.size < len(digest) {
		digest = digest[:h.size]
	}
	return digest, nil
}
