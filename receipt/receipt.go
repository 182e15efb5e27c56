package receipt

import (
	"github.com/chainge/go-chainge-kernel/crypto"
)

const (
	// Version is the current receipt schema version.
	Version uint8 = 0

	// MaxRefs bounds the refs array on every receipt.
	MaxRefs = 16

	// MaxPayloadSize bounds payload bytes on every receipt.
	MaxPayloadSize = 64 * 1024
)

// Header carries all receipt metadata. Every field participates in the
// canonical encoding and therefore in the signature and the receipt id.
type Header struct {
	// Version is the schema version (currently 0).
	Version uint8

	// Author is the stream owner's public key. Only the author may extend the
	// stream.
	Author crypto.PublicKey

	// StreamID is the stream this receipt belongs to.
	StreamID StreamID

	// Seq is the 1-indexed position in the stream.
	Seq uint64

	// Timestamp is the author-claimed unix milliseconds. Untrusted; never part
	// of ordering.
	Timestamp int64

	// Kind determines payload interpretation.
	Kind Kind

	// PrevReceiptID is the id of the receipt at seq-1. Nil iff Seq == 1.
	PrevReceiptID *ID

	// Refs name other receipts; semantics depend on Kind. At most MaxRefs.
	Refs []ID

	// PayloadHash is BLAKE3(payload).
	PayloadHash crypto.Hash
}

// Receipt is an immutable signed event. Modifications are represented by
// issuing new receipts (tombstones or supersedes), never by editing.
type Receipt struct {
	Header    Header
	Payload   []byte
	Signature crypto.Signature
}

// ComputeID hashes the canonical bytes. Encoding a well-formed receipt cannot
// fail; a receipt that does not encode was not built by this package and gets
// the zero id.
func (r *Receipt) ComputeID() ID {
	b, err := EncodeReceipt(r)
	if err != nil {
		return ZeroID
	}
	return ID(crypto.Sum(b))
}

func (r *Receipt) Author() crypto.PublicKey { return r.Header.Author }

func (r *Receipt) StreamID() StreamID { return r.Header.StreamID }

func (r *Receipt) Seq() uint64 { return r.Header.Seq }

func (r *Receipt) Kind() Kind { return r.Header.Kind }

// IsStreamInit reports whether this receipt opens its stream.
func (r *Receipt) IsStreamInit() bool {
	return r.Header.Kind == KindStreamInit && r.Header.Seq == 1
}

func (r *Receipt) IsTombstone() bool { return r.Header.Kind == KindTombstone }

// TombstonedReceipt returns the id this tombstone supersedes, if any.
func (r *Receipt) TombstonedReceipt() (ID, bool) {
	if !r.IsTombstone() || len(r.Header.Refs) == 0 {
		return ZeroID, false
	}
	return r.Header.Refs[0], true
}

// Equal compares receipts field-wise.
func (r *Receipt) Equal(other *Receipt) bool {
	if r.Header.Version != other.Header.Version ||
		r.Header.Author != other.Header.Author ||
		r.Header.StreamID != other.Header.StreamID ||
		r.Header.Seq != other.Header.Seq ||
		r.Header.Timestamp != other.Header.Timestamp ||
		r.Header.Kind != other.Header.Kind ||
		r.Header.PayloadHash != other.Header.PayloadHash ||
		r.Signature != other.Signature {
		return false
	}
	if (r.Header.PrevReceiptID == nil) != (other.Header.PrevReceiptID == nil) {
		return false
	}
	if r.Header.PrevReceiptID != nil && *r.Header.PrevReceiptID != *other.Header.PrevReceiptID {
		return false
	}
	if len(r.Header.Refs) != len(other.Header.Refs) {
		return false
	}
	for i := range r.Header.Refs {
		if r.Header.Refs[i] != other.Header.Refs[i] {
			return false
		}
	}
	if len(r.Payload) != len(other.Payload) {
		return false
	}
	for i := range r.Payload {
		if r.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return true
}
