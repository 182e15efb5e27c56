// Package receipt defines the atomic unit of verifiable memory: an immutable,
// signed event addressed by the hash of its canonical bytes. The package owns
// the identity types, the canonical codec, the builder and structural
// validation. Stream bookkeeping lives in the stream package.
package receipt

import (
	"encoding/hex"
	"fmt"

	"github.com/chainge/go-chainge-kernel/crypto"
)

// ID is the 32-byte content address of a receipt:
// BLAKE3(canonical_header || payload || signature). Two receipts with the same
// content have the same ID on every node.
type ID [32]byte

// ZeroID is the all-zero sentinel id.
var ZeroID = ID{}

func (id ID) Bytes() []byte { return id[:] }

func (id ID) Hex() string { return hex.EncodeToString(id[:]) }

func (id ID) IsZero() bool { return id == ZeroID }

func (id ID) String() string { return id.Hex()[:16] }

// IDFromHex parses a 64-character hex receipt id.
func IDFromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	return IDFromBytes(b)
}

// IDFromBytes copies a 32-byte slice into an ID.
func IDFromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != len(out) {
		return out, fmt.Errorf("%w: receipt id must be 32 bytes, got %d", ErrMalformedReceipt, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// StreamID identifies an append-only log owned by a single author. It is
// derivable only with knowledge of the stream name:
// BLAKE3("chainge-stream-v0:" || author || ":" || name).
type StreamID [32]byte

// ZeroStreamID is the all-zero sentinel stream id.
var ZeroStreamID = StreamID{}

// streamIDDomain prefixes stream id derivation. Part of the wire contract.
const streamIDDomain = "chainge-stream-v0:"

// DeriveStreamID computes the stream id for (author, name).
func DeriveStreamID(author crypto.PublicKey, name string) StreamID {
	h := crypto.NewHasher()
	h.Write([]byte(streamIDDomain))
	h.Write(author.Bytes())
	h.Write([]byte(":"))
	h.Write([]byte(name))
	return StreamID(h.SumHash())
}

func (s StreamID) Bytes() []byte { return s[:] }

func (s StreamID) Hex() string { return hex.EncodeToString(s[:]) }

func (s StreamID) IsZero() bool { return s == ZeroStreamID }

func (s StreamID) String() string { return s.Hex()[:16] }

// StreamIDFromHex parses a 64-character hex stream id.
func StreamIDFromHex(s string) (StreamID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return StreamID{}, err
	}
	return StreamIDFromBytes(b)
}

// StreamIDFromBytes copies a 32-byte slice into a StreamID.
func StreamIDFromBytes(b []byte) (StreamID, error) {
	var out StreamID
	if len(b) != len(out) {
		return out, fmt.Errorf("%w: stream id must be 32 bytes, got %d", ErrMalformedReceipt, len(b))
	}
	copy(out[:], b)
	return out, nil
}
