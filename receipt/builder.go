package receipt

import (
	"github.com/chainge/go-chainge-kernel/crypto"
)

// Builder constructs receipts. It sets the version, computes the payload hash
// and performs the signature; the signature cannot be supplied from outside.
type Builder struct {
	author   crypto.PublicKey
	streamID StreamID
	seq      uint64

	timestamp int64
	kind      Kind
	prev      *ID
	refs      []ID
	payload   []byte
}

// NewBuilder starts a receipt for the given stream position. Kind defaults to
// Data.
func NewBuilder(author crypto.PublicKey, streamID StreamID, seq uint64) *Builder {
	return &Builder{
		author:   author,
		streamID: streamID,
		seq:      seq,
		kind:     KindData,
	}
}

// Timestamp sets the author-claimed unix milliseconds.
func (b *Builder) Timestamp(ts int64) *Builder {
	b.timestamp = ts
	return b
}

// Kind sets the receipt kind.
func (b *Builder) Kind(k Kind) *Builder {
	b.kind = k
	return b
}

// Prev sets the predecessor receipt id. Required for seq > 1.
func (b *Builder) Prev(prev ID) *Builder {
	p := prev
	b.prev = &p
	return b
}

// AddRef appends a reference to another receipt.
func (b *Builder) AddRef(ref ID) *Builder {
	b.refs = append(b.refs, ref)
	return b
}

// Payload sets the payload bytes.
func (b *Builder) Payload(p []byte) *Builder {
	b.payload = p
	return b
}

// Sign computes the payload hash, signs canonical_header || payload with the
// keypair and returns the finished receipt. The builder does not validate;
// callers run Validate before ingest so deliberately malformed receipts can
// still be constructed in tests.
func (b *Builder) Sign(kp *crypto.Keypair) (*Receipt, error) {
	header := Header{
		Version:       Version,
		Author:        b.author,
		StreamID:      b.streamID,
		Seq:           b.seq,
		Timestamp:     b.timestamp,
		Kind:          b.kind,
		PrevReceiptID: b.prev,
		Refs:          b.refs,
		PayloadHash:   crypto.Sum(b.payload),
	}

	message, err := SignedMessage(&header, b.payload)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Header:    header,
		Payload:   b.payload,
		Signature: kp.Sign(message),
	}, nil
}
