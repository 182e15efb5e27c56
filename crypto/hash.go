// Package crypto wraps the kernel's fixed cryptographic choices with strong
// types: BLAKE3-256 hashing, Ed25519 signing, X25519 agreement and
// ChaCha20-Poly1305 authenticated encryption.
//
// The hash family is not negotiable. Receipt ids, stream ids, state hashes and
// the golden vectors all commit to BLAKE3-256.
package crypto

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the digest size in bytes for every hash in the system.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel digest.
var ZeroHash = Hash{}

// Sum computes the BLAKE3-256 hash of data.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// NewHasher returns a streaming BLAKE3-256 hasher. SumHash reads the digest
// without disturbing the hasher state.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(HashSize, nil)}
}

type Hasher struct {
	h *blake3.Hasher
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) SumHash() Hash {
	var out Hash
	copy(out[:], h.h.Sum(nil))
	return out
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return h.Hex()[:16] }

// HashFromHex parses a 64-character hex digest.
func HashFromHex(s string) (Hash, error) {
	var out Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != HashSize {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, HashSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var out Hash
	if len(b) != HashSize {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, HashSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
