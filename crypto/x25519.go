package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"
)

// deriveContext domain-separates key-share wrap keys from every other use of
// the hash. Changing it breaks interop with existing key shares.
const deriveContext = "chainge-perms-v0-encryption"

// X25519PublicKey is a Curve25519 point used only for key agreement, never
// signing.
type X25519PublicKey [32]byte

func (p X25519PublicKey) Bytes() []byte { return p[:] }

// X25519PublicKeyFromBytes copies a 32-byte slice into an X25519PublicKey.
func X25519PublicKeyFromBytes(b []byte) (X25519PublicKey, error) {
	var out X25519PublicKey
	if len(b) != 32 {
		return out, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidKeyLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// X25519StaticSecret is a long-lived agreement secret.
type X25519StaticSecret struct {
	scalar [32]byte
}

// GenerateX25519StaticSecret draws a fresh static secret from the OS RNG.
func GenerateX25519StaticSecret() (*X25519StaticSecret, error) {
	var scalar [32]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("generating x25519 secret: %w", err)
	}
	return &X25519StaticSecret{scalar: scalar}, nil
}

// X25519StaticSecretFromBytes reconstructs a static secret from seed bytes.
func X25519StaticSecretFromBytes(seed [32]byte) *X25519StaticSecret {
	return &X25519StaticSecret{scalar: seed}
}

// PublicKey derives the public half.
func (s *X25519StaticSecret) PublicKey() (X25519PublicKey, error) {
	pub, err := curve25519.X25519(s.scalar[:], curve25519.Basepoint)
	if err != nil {
		return X25519PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return X25519PublicKeyFromBytes(pub)
}

// DiffieHellman performs key agreement against a peer public key.
func (s *X25519StaticSecret) DiffieHellman(peer X25519PublicKey) (SharedKey, error) {
	shared, err := curve25519.X25519(s.scalar[:], peer[:])
	if err != nil {
		return SharedKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var out SharedKey
	copy(out.secret[:], shared)
	return out, nil
}

// X25519Ephemeral is a one-shot agreement keypair. DiffieHellman zeroes the
// scalar so the secret cannot be reused.
type X25519Ephemeral struct {
	scalar [32]byte
	public X25519PublicKey
	used   bool
}

// GenerateX25519Ephemeral draws a single-use agreement keypair.
func GenerateX25519Ephemeral() (*X25519Ephemeral, error) {
	var scalar [32]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("generating ephemeral x25519 key: %w", err)
	}
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	e := &X25519Ephemeral{scalar: scalar}
	copy(e.public[:], pub)
	return e, nil
}

func (e *X25519Ephemeral) PublicKey() X25519PublicKey { return e.public }

// DiffieHellman consumes the ephemeral secret.
func (e *X25519Ephemeral) DiffieHellman(peer X25519PublicKey) (SharedKey, error) {
	if e.used {
		return SharedKey{}, fmt.Errorf("%w: ephemeral secret already consumed", ErrInvalidKeyLength)
	}
	shared, err := curve25519.X25519(e.scalar[:], peer[:])
	if err != nil {
		return SharedKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	e.used = true
	e.scalar = [32]byte{}
	var out SharedKey
	copy(out.secret[:], shared)
	return out, nil
}

// SharedKey is the raw output of an X25519 agreement. It is never used as a
// cipher key directly; DeriveEncryptionKey domain-separates it first.
type SharedKey struct {
	secret [32]byte
}

// SharedKeyFromBytes wraps raw agreement output, mainly for tests.
func SharedKeyFromBytes(b [32]byte) SharedKey {
	return SharedKey{secret: b}
}

// DeriveEncryptionKey derives a wrap key from the shared secret and a caller
// context (the grant receipt id for key shares) using BLAKE3 derive-key mode.
func (s SharedKey) DeriveEncryptionKey(context []byte) EncryptionKey {
	material := make([]byte, 0, len(s.secret)+len(context))
	material = append(material, s.secret[:]...)
	material = append(material, context...)

	var key EncryptionKey
	blake3.DeriveKey(key.key[:], deriveContext, material)
	return key
}
