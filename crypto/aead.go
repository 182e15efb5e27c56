package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// EncryptionKeySize is the ChaCha20-Poly1305 key length.
	EncryptionKeySize = chacha20poly1305.KeySize
	// NonceSize is the ChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the Poly1305 authentication tag length, carried at the end of
	// every ciphertext.
	TagSize = chacha20poly1305.Overhead
)

// EncryptionKey is a 256-bit symmetric key for ChaCha20-Poly1305.
type EncryptionKey struct {
	key [EncryptionKeySize]byte
}

// GenerateEncryptionKey draws a fresh content key from the OS RNG.
func GenerateEncryptionKey() (EncryptionKey, error) {
	var key EncryptionKey
	if _, err := rand.Read(key.key[:]); err != nil {
		return key, fmt.Errorf("generating encryption key: %w", err)
	}
	return key, nil
}

// EncryptionKeyFromBytes wraps raw key bytes.
func EncryptionKeyFromBytes(b [EncryptionKeySize]byte) EncryptionKey {
	return EncryptionKey{key: b}
}

// Bytes exposes the raw key for wrapping into a key share.
func (k EncryptionKey) Bytes() []byte { return k.key[:] }

// Equal compares keys in constant length (both are fixed width).
func (k EncryptionKey) Equal(other EncryptionKey) bool { return k.key == other.key }

// Encrypt seals plaintext under the key and nonce. The returned ciphertext
// includes the 16-byte tag.
func (k EncryptionKey) Encrypt(plaintext []byte, nonce Nonce) ([]byte, error) {
	aead, err := chacha20poly1305.New(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Decrypt opens ciphertext. Authentication failure is ErrDecryption.
func (k EncryptionKey) Decrypt(ciphertext []byte, nonce Nonce) ([]byte, error) {
	aead, err := chacha20poly1305.New(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// Nonce is a 96-bit ChaCha20-Poly1305 nonce. A nonce-key pair must never be
// reused across distinct plaintexts; GenerateNonce draws a fresh one per call.
type Nonce [NonceSize]byte

// GenerateNonce draws a random nonce from the OS RNG.
func GenerateNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("generating nonce: %w", err)
	}
	return n, nil
}

// NonceFromBytes copies a 12-byte slice into a Nonce.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

func (n Nonce) Bytes() []byte { return n[:] }
