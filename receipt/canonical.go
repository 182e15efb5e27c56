package receipt

import (
	"bytes"
	"fmt"

	fxcbor "github.com/fxamacker/cbor/v2"

	kcbor "github.com/chainge/go-chainge-kernel/cbor"
	"github.com/chainge/go-chainge-kernel/crypto"
)

// The canonical encoding is the single non-negotiable guarantee of the wire
// format: two compliant implementations produce byte-identical output for
// identical logical input. The header is an RFC 8949 core-deterministic CBOR
// map with single-byte integer keys; payload and signature are appended raw.
//
// Receipt layout: canonical_header_map || payload || signature(64).
// The header map is self-delimiting, the signature is the last 64 bytes, the
// payload is whatever lies between.

// Header map keys. Keys 0-23 encode as single bytes.
const (
	keyVersion       = 0
	keyAuthor        = 1
	keyStreamID      = 2
	keySeq           = 3
	keyTimestamp     = 4
	keyKind          = 5
	keyPrevReceiptID = 6
	keyRefs          = 7
	keyPayloadHash   = 8
)

// headerWire is the CBOR shape of a header. Fixed-width identity types are
// carried as byte strings; an absent prev pointer encodes as explicit null.
// Every key is always present.
type headerWire struct {
	Version     uint8     `cbor:"0,keyasint"`
	Author      []byte    `cbor:"1,keyasint"`
	StreamID    []byte    `cbor:"2,keyasint"`
	Seq         uint64    `cbor:"3,keyasint"`
	Timestamp   int64     `cbor:"4,keyasint"`
	Kind        uint16    `cbor:"5,keyasint"`
	PrevReceipt *[]byte   `cbor:"6,keyasint"`
	Refs        []IDBytes `cbor:"7,keyasint"`
	PayloadHash []byte    `cbor:"8,keyasint"`
}

// IDBytes is a ref entry on the wire.
type IDBytes []byte

var codec = mustCodec()

func mustCodec() kcbor.CBORCodec {
	c, err := kcbor.NewDeterministic()
	if err != nil {
		panic(fmt.Sprintf("canonical codec options rejected: %v", err))
	}
	return c
}

func headerToWire(h *Header) headerWire {
	w := headerWire{
		Version:     h.Version,
		Author:      h.Author.Bytes(),
		StreamID:    h.StreamID.Bytes(),
		Seq:         h.Seq,
		Timestamp:   h.Timestamp,
		Kind:        h.Kind.Uint16(),
		PayloadHash: h.PayloadHash.Bytes(),
		// Refs must encode as a definite-length array even when empty, never
		// as null.
		Refs: make([]IDBytes, 0, len(h.Refs)),
	}
	for i := range h.Refs {
		w.Refs = append(w.Refs, h.Refs[i].Bytes())
	}
	if h.PrevReceiptID != nil {
		prev := h.PrevReceiptID.Bytes()
		w.PrevReceipt = &prev
	}
	return w
}

func wireToHeader(w *headerWire) (Header, error) {
	author, err := crypto.PublicKeyFromBytes(w.Author)
	if err != nil {
		return Header{}, fmt.Errorf("%w: author: %v", ErrMalformedReceipt, err)
	}
	streamID, err := StreamIDFromBytes(w.StreamID)
	if err != nil {
		return Header{}, fmt.Errorf("%w: stream id", ErrMalformedReceipt)
	}
	kind, ok := KindFromUint16(w.Kind)
	if !ok {
		return Header{}, fmt.Errorf("%w: kind 0x%04x", ErrInvalidKind, w.Kind)
	}
	payloadHash, err := crypto.HashFromBytes(w.PayloadHash)
	if err != nil {
		return Header{}, fmt.Errorf("%w: payload hash", ErrMalformedReceipt)
	}

	h := Header{
		Version:     w.Version,
		Author:      author,
		StreamID:    streamID,
		Seq:         w.Seq,
		Timestamp:   w.Timestamp,
		Kind:        kind,
		PayloadHash: payloadHash,
		Refs:        make([]ID, 0, len(w.Refs)),
	}
	if w.PrevReceipt != nil {
		prev, err := IDFromBytes(*w.PrevReceipt)
		if err != nil {
			return Header{}, fmt.Errorf("%w: prev receipt id", ErrMalformedReceipt)
		}
		h.PrevReceiptID = &prev
	}
	for i := range w.Refs {
		ref, err := IDFromBytes(w.Refs[i])
		if err != nil {
			return Header{}, fmt.Errorf("%w: ref %d", ErrMalformedReceipt, i)
		}
		h.Refs = append(h.Refs, ref)
	}
	return h, nil
}

// EncodeHeader produces the canonical header map bytes.
func EncodeHeader(h *Header) ([]byte, error) {
	w := headerToWire(h)
	b, err := codec.MarshalCBOR(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// SignedMessage is the exact byte sequence Ed25519 signs:
// canonical_header || payload.
func SignedMessage(h *Header, payload []byte) ([]byte, error) {
	b, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	return append(b, payload...), nil
}

// EncodeReceipt produces the full canonical bytes:
// canonical_header || payload || signature.
func EncodeReceipt(r *Receipt) ([]byte, error) {
	msg, err := SignedMessage(&r.Header, r.Payload)
	if err != nil {
		return nil, err
	}
	return append(msg, r.Signature.Bytes()...), nil
}

// DecodeReceipt parses canonical bytes back into a receipt. The header map is
// self-delimiting; the signature is the trailing 64 bytes and the payload is
// the middle. Unknown header keys are tolerated (forward compatibility); the
// version gate lives in validation.
func DecodeReceipt(data []byte) (*Receipt, error) {
	if len(data) < crypto.SignatureSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrMalformedReceipt, len(data))
	}

	var w headerWire
	headerLen, err := codec.DecodePrefix(data, &w)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedReceipt, err)
	}

	header, err := wireToHeader(&w)
	if err != nil {
		return nil, err
	}

	// CBOR undefined decodes to a nil prev just as null does; only the
	// explicit null (0xf6) is accepted, so no second byte string maps to the
	// same receipt and signature.
	if w.PrevReceipt == nil {
		var prev struct {
			Raw fxcbor.RawMessage `cbor:"6,keyasint"`
		}
		if _, err := codec.DecodePrefix(data, &prev); err != nil || !bytes.Equal(prev.Raw, []byte{0xf6}) {
			return nil, fmt.Errorf("%w: prev receipt id must be an explicit null", ErrMalformedReceipt)
		}
	}

	remaining := data[headerLen:]
	if len(remaining) < crypto.SignatureSize {
		return nil, fmt.Errorf("%w: insufficient bytes for signature", ErrMalformedReceipt)
	}

	payloadLen := len(remaining) - crypto.SignatureSize
	payload := make([]byte, payloadLen)
	copy(payload, remaining[:payloadLen])

	sig, err := crypto.SignatureFromBytes(remaining[payloadLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: signature", ErrMalformedReceipt)
	}

	return &Receipt{
		Header:    header,
		Payload:   payload,
		Signature: sig,
	}, nil
}
