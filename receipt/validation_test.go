package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/crypto"
)

func testKeypair() *crypto.Keypair {
	return crypto.KeypairFromSeed(testSeed(0x42))
}

func TestValidStreamInit(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 1).
		Kind(KindStreamInit).
		Timestamp(fixedTimestamp).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	assert.NoError(t, Validate(r))
}

func TestValidDataReceipt(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 2).
		Kind(KindData).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		Payload([]byte("world")).
		Sign(kp)
	require.NoError(t, err)

	assert.NoError(t, Validate(r))
}

func TestInvalidSignature(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 1).
		Kind(KindStreamInit).
		Timestamp(fixedTimestamp).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	var bad crypto.Signature
	for i := range bad {
		bad[i] = 0xff
	}
	r.Signature = bad

	assert.ErrorIs(t, Validate(r), ErrSignatureFailed)
}

func TestPayloadHashMismatch(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 1).
		Kind(KindStreamInit).
		Timestamp(fixedTimestamp).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	r.Payload = []byte("tampered")

	assert.ErrorIs(t, Validate(r), ErrPayloadHashMismatch)
}

func TestStreamInitWrongSeq(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 5).
		Kind(KindStreamInit).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(r), ErrInvalidSequence)
}

func TestStreamInitWithPrev(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 1).
		Kind(KindStreamInit).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(r), ErrInvalidPrevReceipt)
}

func TestTombstoneMissingRef(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 2).
		Kind(KindTombstone).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		Sign(kp)
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(r), ErrTombstoneMissingRef)
}

func TestValidTombstone(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")
	target := ID(testSeed(0xCD))

	r, err := NewBuilder(kp.PublicKey(), streamID, 2).
		Kind(KindTombstone).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		AddRef(target).
		Sign(kp)
	require.NoError(t, err)

	assert.NoError(t, Validate(r))
	got, ok := r.TombstonedReceipt()
	assert.True(t, ok)
	assert.Equal(t, target, got)
}

func TestTooManyRefs(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	b := NewBuilder(kp.PublicKey(), streamID, 2).
		Kind(KindData).
		Timestamp(fixedTimestamp).
		Prev(ID(testSeed(0xAB))).
		Payload([]byte("hello"))
	for i := 0; i < MaxRefs+1; i++ {
		b.AddRef(ID(testSeed(byte(i))))
	}
	r, err := b.Sign(kp)
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(r), ErrTooManyRefs)
}

func TestSeqAboveOneWithoutPrev(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "test")

	r, err := NewBuilder(kp.PublicKey(), streamID, 2).
		Kind(KindData).
		Timestamp(fixedTimestamp).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)

	assert.ErrorIs(t, Validate(r), ErrInvalidPrevReceipt)
}

func TestUnsupportedVersion(t *testing.T) {
	r := buildTestReceipt(t)
	r.Header.Version = 9

	assert.ErrorIs(t, Validate(r), ErrUnsupportedVersion)
}

func TestBuilderSignatureAlwaysVerifies(t *testing.T) {
	kp := testKeypair()
	streamID := DeriveStreamID(kp.PublicKey(), "props")

	payloads := [][]byte{nil, {}, []byte("a"), make([]byte, 1024)}
	for i, payload := range payloads {
		seq := uint64(i + 1)
		b := NewBuilder(kp.PublicKey(), streamID, seq).
			Timestamp(fixedTimestamp + int64(i)).
			Payload(payload)
		if seq == 1 {
			b.Kind(KindStreamInit)
		} else {
			b.Prev(ID(testSeed(byte(i))))
		}
		r, err := b.Sign(kp)
		require.NoError(t, err)
		assert.NoError(t, Validate(r), "payload %d", i)
	}
}
