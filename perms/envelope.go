package perms

import (
	"fmt"

	"github.com/chainge/go-chainge-kernel/crypto"
)

// EncryptionFormat identifies the envelope cipher. Wire values are stable.
type EncryptionFormat uint8

// FormatChaCha20Poly1305 is the only format in v0: 256-bit key, 96-bit nonce,
// 16-byte tag carried at the end of the ciphertext.
const FormatChaCha20Poly1305 EncryptionFormat = 1

// Envelope wraps an encrypted receipt payload with the metadata a key holder
// needs to open it.
type Envelope struct {
	Format     EncryptionFormat
	Nonce      crypto.Nonce
	Ciphertext []byte
}

type envelopeWire struct {
	Format     uint8  `cbor:"0,keyasint"`
	Nonce      []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

// Seal encrypts plaintext under the content key with a fresh random nonce.
func Seal(plaintext []byte, key crypto.EncryptionKey) (*Envelope, error) {
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := key.Encrypt(plaintext, nonce)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Format:     FormatChaCha20Poly1305,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts the envelope with the content key.
func (e *Envelope) Open(key crypto.EncryptionKey) ([]byte, error) {
	switch e.Format {
	case FormatChaCha20Poly1305:
		return key.Decrypt(e.Ciphertext, e.Nonce)
	}
	return nil, fmt.Errorf("%w: unknown envelope format %d", crypto.ErrDecryption, e.Format)
}

// Encode serializes the envelope to CBOR for use as a receipt payload.
func (e *Envelope) Encode() ([]byte, error) {
	w := envelopeWire{
		Format:     uint8(e.Format),
		Nonce:      e.Nonce.Bytes(),
		Ciphertext: e.Ciphertext,
	}
	b, err := codec.MarshalCBOR(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// DecodeEnvelope parses an envelope from payload bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var w envelopeWire
	if err := codec.UnmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	nonce, err := crypto.NonceFromBytes(w.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSerialization, err)
	}
	return &Envelope{
		Format:     EncryptionFormat(w.Format),
		Nonce:      nonce,
		Ciphertext: w.Ciphertext,
	}, nil
}

// EnvelopeBuilder generates a fresh content key, seals the plaintext, and
// hands the key back so it can fan out to recipients via KeyShare receipts.
type EnvelopeBuilder struct {
	plaintext  []byte
	contentKey crypto.EncryptionKey
}

// NewEnvelopeBuilder starts an envelope with a freshly generated content key.
func NewEnvelopeBuilder(plaintext []byte) (*EnvelopeBuilder, error) {
	key, err := crypto.GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}
	return &EnvelopeBuilder{plaintext: plaintext, contentKey: key}, nil
}

// ContentKey returns the key to share with recipients.
func (b *EnvelopeBuilder) ContentKey() crypto.EncryptionKey {
	return b.contentKey
}

// Build seals the plaintext.
func (b *EnvelopeBuilder) Build() (*Envelope, error) {
	return Seal(b.plaintext, b.contentKey)
}
