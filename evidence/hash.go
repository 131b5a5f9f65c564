package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Digest is an io.Writer that accumulates the SHA-256 sum and byte count of
// everything written to it. Tee a copy through it to hash in one pass.
type Digest struct {
	h hash.Hash
	n int64
}

func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	d.n += int64(len(p))
	return d.h.Write(p)
}

// Hex returns the hex-encoded sum of the bytes written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func (d *Digest) Size() int64 { return d.n }
