package perms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/crypto"
)

func TestEnvelopeRoundtrip(t *testing.T) {
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)

	plaintext := []byte("hello, encrypted world!")
	envelope, err := Seal(plaintext, key)
	require.NoError(t, err)
	assert.Equal(t, FormatChaCha20Poly1305, envelope.Format)
	assert.NotEqual(t, plaintext, envelope.Ciphertext)

	decrypted, err := envelope.Open(key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEnvelopeSerialization(t *testing.T) {
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)

	envelope, err := Seal([]byte("test"), key)
	require.NoError(t, err)

	data, err := envelope.Encode()
	require.NoError(t, err)

	recovered, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, envelope.Format, recovered.Format)
	assert.Equal(t, envelope.Nonce, recovered.Nonce)
	assert.Equal(t, envelope.Ciphertext, recovered.Ciphertext)

	decrypted, err := recovered.Open(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), decrypted)
}

func TestEnvelopeWrongKeyFails(t *testing.T) {
	key1, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)
	key2, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)

	envelope, err := Seal([]byte("secret"), key1)
	require.NoError(t, err)

	_, err = envelope.Open(key2)
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}

func TestEnvelopeFreshNoncePerSeal(t *testing.T) {
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)

	e1, err := Seal([]byte("same plaintext"), key)
	require.NoError(t, err)
	e2, err := Seal([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, e1.Nonce, e2.Nonce, "nonce must be fresh per seal")
	assert.NotEqual(t, e1.Ciphertext, e2.Ciphertext)
}

func TestEnvelopeBuilder(t *testing.T) {
	builder, err := NewEnvelopeBuilder([]byte("my secret data"))
	require.NoError(t, err)
	contentKey := builder.ContentKey()

	envelope, err := builder.Build()
	require.NoError(t, err)

	decrypted, err := envelope.Open(contentKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("my secret data"), decrypted)
}

func TestEnvelopeUnknownFormat(t *testing.T) {
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)
	envelope, err := Seal([]byte("x"), key)
	require.NoError(t, err)
	envelope.Format = 99

	_, err = envelope.Open(key)
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}
