// Package cbor pins the CBOR encode and decode options used everywhere the
// kernel puts structure on the wire or into a hash. There is exactly one
// encoder configuration; anything that needs different options is presentation
// and must not feed signing or identification.
package cbor

import (
	"bytes"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// EncOptions is the deterministic encoding profile (RFC 8949 core
// deterministic): smallest integer encodings, definite lengths only, map keys
// sorted by encoded byte comparison.
var EncOptions = cbor.CoreDetEncOptions()

// DecOptions rejects the constructs the canonical profile forbids. Unknown map
// keys are tolerated for forward compatibility; the caller decides whether the
// version allows them.
var DecOptions = cbor.DecOptions{
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
}

// CBORCodec bundles a matched encode/decode mode pair.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec(encOpts cbor.EncOptions, decOpts cbor.DecOptions) (CBORCodec, error) {
	enc, err := encOpts.EncMode()
	if err != nil {
		return CBORCodec{}, err
	}
	dec, err := decOpts.DecMode()
	if err != nil {
		return CBORCodec{}, err
	}
	return CBORCodec{enc: enc, dec: dec}, nil
}

// NewDeterministic returns a codec with the kernel's pinned options.
func NewDeterministic() (CBORCodec, error) {
	return NewCBORCodec(EncOptions, DecOptions)
}

func (c CBORCodec) MarshalCBOR(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBORCodec) UnmarshalCBOR(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

// DecodePrefix decodes a single CBOR item from the front of data and returns
// the number of bytes it occupied. Callers use this to split self-delimiting
// headers from trailing raw bytes.
func (c CBORCodec) DecodePrefix(data []byte, v any) (int, error) {
	dec := c.dec.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return int(dec.NumBytesRead()), nil
}
