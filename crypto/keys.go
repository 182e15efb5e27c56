package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// PublicKeySize is the Ed25519 public key length.
	PublicKeySize = 32
	// SignatureSize is the Ed25519 detached signature length.
	SignatureSize = 64
	// SeedSize is the Ed25519 private seed length. The seed IS the secret key.
	SeedSize = 32
)

// PublicKey is a 32-byte Ed25519 verifying key. It doubles as the author
// identity on receipts.
type PublicKey [PublicKeySize]byte

// Signature is a 64-byte Ed25519 detached signature.
type Signature [SignatureSize]byte

// ZeroSignature is an invalid placeholder signature.
var ZeroSignature = Signature{}

func (p PublicKey) Bytes() []byte { return p[:] }

func (p PublicKey) Hex() string { return hex.EncodeToString(p[:]) }

func (p PublicKey) String() string { return p.Hex()[:16] }

// Verify checks sig over message. Failures are ErrInvalidPublicKey or
// ErrInvalidSignature, never a panic.
func (p PublicKey) Verify(message []byte, sig Signature) error {
	pk := ed25519.PublicKey(p[:])
	// ed25519.Verify panics on short keys; ours is fixed width, but a key that
	// is not a valid curve point still just fails verification. Distinguish the
	// all-zero key which can never have signed anything.
	if p == (PublicKey{}) {
		return ErrInvalidPublicKey
	}
	if !ed25519.Verify(pk, message, sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKeyFromHex parses a 64-character hex public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	var out PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != PublicKeySize {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, PublicKeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var out PublicKey
	if len(b) != PublicKeySize {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, PublicKeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func (s Signature) Bytes() []byte { return s[:] }

func (s Signature) Hex() string { return hex.EncodeToString(s[:]) }

// SignatureFromBytes copies a 64-byte slice into a Signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var out Signature
	if len(b) != SignatureSize {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, SignatureSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Keypair is an Ed25519 signing identity. The secret never leaves this struct;
// callers that need durability persist the seed, nothing else.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair draws a fresh keypair from the OS RNG. RNG failure is fatal
// by contract, so the error is surfaced rather than swallowed.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed reconstructs the keypair from its 32-byte seed.
// Deterministic: the same seed always yields the same keys.
func KeypairFromSeed(seed [SeedSize]byte) *Keypair {
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed[:])}
}

// PublicKey returns the verifying half.
func (k *Keypair) PublicKey() PublicKey {
	var out PublicKey
	copy(out[:], k.priv.Public().(ed25519.PublicKey))
	return out
}

// Sign produces a deterministic Ed25519 signature over message.
func (k *Keypair) Sign(message []byte) Signature {
	var out Signature
	copy(out[:], ed25519.Sign(k.priv, message))
	return out
}

// Seed returns the 32-byte secret seed.
func (k *Keypair) Seed() [SeedSize]byte {
	var out [SeedSize]byte
	copy(out[:], k.priv.Seed())
	return out
}

// Signer exposes the underlying crypto.Signer for COSE integration.
func (k *Keypair) Signer() ed25519.PrivateKey {
	return k.priv
}
