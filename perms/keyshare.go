package perms

import (
	"fmt"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// KeySharePayload delivers a content key to a named recipient. The key is
// wrapped with ephemeral-static X25519 plus ChaCha20-Poly1305; the ephemeral
// side gives forward secrecy on the share step. The wrap key derivation is
// bound to the grant receipt id, so a share cannot be replayed against a
// different grant.
type KeySharePayload struct {
	GrantReceiptID  receipt.ID
	EphemeralPublic crypto.X25519PublicKey
	EncryptedKey    []byte
	Nonce           crypto.Nonce
}

type keyShareWire struct {
	GrantReceiptID  []byte `cbor:"0,keyasint"`
	EphemeralPublic []byte `cbor:"1,keyasint"`
	EncryptedKey    []byte `cbor:"2,keyasint"`
	Nonce           []byte `cbor:"3,keyasint"`
}

// CreateKeyShare wraps contentKey for the holder of recipientPublic:
//
//  1. generate ephemeral X25519 keypair
//  2. shared = X25519(ephemeral_secret, recipient_public)
//  3. wrap_key = derive(shared, grant_receipt_id)
//  4. encrypted_key = AEAD(wrap_key, fresh nonce, content_key)
func CreateKeyShare(
	grantReceiptID receipt.ID,
	contentKey crypto.EncryptionKey,
	recipientPublic crypto.X25519PublicKey,
) (*KeySharePayload, error) {
	ephemeral, err := crypto.GenerateX25519Ephemeral()
	if err != nil {
		return nil, err
	}
	ephemeralPublic := ephemeral.PublicKey()

	shared, err := ephemeral.DiffieHellman(recipientPublic)
	if err != nil {
		return nil, err
	}
	wrapKey := shared.DeriveEncryptionKey(grantReceiptID.Bytes())

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	encryptedKey, err := wrapKey.Encrypt(contentKey.Bytes(), nonce)
	if err != nil {
		return nil, err
	}

	return &KeySharePayload{
		GrantReceiptID:  grantReceiptID,
		EphemeralPublic: ephemeralPublic,
		EncryptedKey:    encryptedKey,
		Nonce:           nonce,
	}, nil
}

// Decrypt recovers the content key with the recipient's static secret. Any
// failure, including a decrypted key of the wrong length, is a decryption
// error.
func (k *KeySharePayload) Decrypt(recipientSecret *crypto.X25519StaticSecret) (crypto.EncryptionKey, error) {
	shared, err := recipientSecret.DiffieHellman(k.EphemeralPublic)
	if err != nil {
		return crypto.EncryptionKey{}, err
	}
	wrapKey := shared.DeriveEncryptionKey(k.GrantReceiptID.Bytes())

	keyBytes, err := wrapKey.Decrypt(k.EncryptedKey, k.Nonce)
	if err != nil {
		return crypto.EncryptionKey{}, err
	}
	if len(keyBytes) != crypto.EncryptionKeySize {
		return crypto.EncryptionKey{}, fmt.Errorf(
			"%w: shared key must be %d bytes, got %d",
			crypto.ErrDecryption, crypto.EncryptionKeySize, len(keyBytes),
		)
	}

	var raw [crypto.EncryptionKeySize]byte
	copy(raw[:], keyBytes)
	return crypto.EncryptionKeyFromBytes(raw), nil
}

// Encode serializes the key share to CBOR for use as a receipt payload.
func (k *KeySharePayload) Encode() ([]byte, error) {
	w := keyShareWire{
		GrantReceiptID:  k.GrantReceiptID.Bytes(),
		EphemeralPublic: k.EphemeralPublic.Bytes(),
		EncryptedKey:    k.EncryptedKey,
		Nonce:           k.Nonce.Bytes(),
	}
	b, err := codec.MarshalCBOR(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// DecodeKeySharePayload parses a KeyShare receipt payload.
func DecodeKeySharePayload(data []byte) (*KeySharePayload, error) {
	var w keyShareWire
	if err := codec.UnmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	grantID, err := receipt.IDFromBytes(w.GrantReceiptID)
	if err != nil {
		return nil, fmt.Errorf("%w: grant receipt id: %v", ErrSerialization, err)
	}
	ephemeral, err := crypto.X25519PublicKeyFromBytes(w.EphemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral public: %v", ErrSerialization, err)
	}
	nonce, err := crypto.NonceFromBytes(w.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSerialization, err)
	}
	return &KeySharePayload{
		GrantReceiptID:  grantID,
		EphemeralPublic: ephemeral,
		EncryptedKey:    w.EncryptedKey,
		Nonce:           nonce,
	}, nil
}
