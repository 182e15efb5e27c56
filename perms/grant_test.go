package perms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

func testSeed(b byte) [32]byte {
	var s [32]byte
	for i := range s {
		s[i] = b
	}
	return s
}

func testStreamID(t *testing.T, name string) receipt.StreamID {
	t.Helper()
	kp := crypto.KeypairFromSeed(testSeed(0x42))
	return receipt.DeriveStreamID(kp.PublicKey(), name)
}

func TestGrantPayloadRoundtrip(t *testing.T) {
	kp := crypto.KeypairFromSeed(testSeed(0x11))
	streamID := testStreamID(t, "perms")

	grant := &GrantPayload{
		Recipient: kp.PublicKey(),
		Scope:     ReadStreamScope(streamID),
	}
	data, err := grant.Encode()
	require.NoError(t, err)

	got, err := DecodeGrantPayload(data)
	require.NoError(t, err)
	assert.Equal(t, grant.Recipient, got.Recipient)
	assert.Equal(t, grant.Scope, got.Scope)
	assert.Nil(t, got.Conditions)
}

func TestGrantPayloadWithConditionsRoundtrip(t *testing.T) {
	kp := crypto.KeypairFromSeed(testSeed(0x11))

	grant := &GrantPayload{
		Recipient:  kp.PublicKey(),
		Scope:      ReadReceiptScope(receipt.ID(testSeed(0x99))),
		Conditions: ExpiresAt(1736870400000),
	}
	data, err := grant.Encode()
	require.NoError(t, err)

	got, err := DecodeGrantPayload(data)
	require.NoError(t, err)
	require.NotNil(t, got.Conditions)
	require.NotNil(t, got.Conditions.ExpiresAt)
	assert.Equal(t, int64(1736870400000), *got.Conditions.ExpiresAt)
	assert.Nil(t, got.Conditions.MaxUses)
}

func TestRevokePayloadRoundtrip(t *testing.T) {
	revoke := &RevokePayload{
		GrantReceiptID: receipt.ID(testSeed(0x42)),
		Reason:         "key compromise",
	}
	data, err := revoke.Encode()
	require.NoError(t, err)

	got, err := DecodeRevokePayload(data)
	require.NoError(t, err)
	assert.Equal(t, revoke.GrantReceiptID, got.GrantReceiptID)
	assert.Equal(t, revoke.Reason, got.Reason)
}

func TestDecodeGrantRejectsGarbage(t *testing.T) {
	_, err := DecodeGrantPayload([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestConditionsExpiration(t *testing.T) {
	cond := ExpiresAt(1000)

	assert.True(t, cond.IsValid(500, 0), "before expiration")
	assert.True(t, cond.IsValid(1000, 0), "at expiration boundary")
	assert.False(t, cond.IsValid(1001, 0), "after expiration")
}

func TestConditionsMaxUses(t *testing.T) {
	cond := MaxUses(3)

	assert.True(t, cond.IsValid(0, 0))
	assert.True(t, cond.IsValid(0, 2))
	assert.False(t, cond.IsValid(0, 3))
	assert.False(t, cond.IsValid(0, 4))
}

func TestNilConditionsAlwaysValid(t *testing.T) {
	var cond *Conditions
	assert.True(t, cond.IsValid(1<<60, 1<<31))
}

func TestScopeChecks(t *testing.T) {
	streamID := testStreamID(t, "a")
	otherStream := testStreamID(t, "b")
	receiptID := receipt.ID(testSeed(0x01))
	otherReceipt := receipt.ID(testSeed(0x02))
	unrelatedStream := testStreamID(t, "c")

	tests := []struct {
		name        string
		scope       Scope
		canRead     bool
		canWrite    bool
		canReadRcpt bool
	}{
		{"read stream", ReadStreamScope(streamID), true, false, true},
		{"write stream", WriteStreamScope(streamID), false, true, false},
		{"admin", AdminScope(streamID), true, true, true},
		{"read receipt", ReadReceiptScope(receiptID), false, false, true},
		{"other stream read", ReadStreamScope(otherStream), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canRead, tt.scope.CanReadStream(streamID))
			assert.Equal(t, tt.canWrite, tt.scope.CanWriteStream(streamID))
			assert.Equal(t, tt.canReadRcpt, tt.scope.CanReadReceipt(receiptID, streamID))
			assert.False(t, tt.scope.CanReadReceipt(otherReceipt, unrelatedStream))
		})
	}
}
