package perms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

func TestGrantAndCheck(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	grantID := receipt.ID(testSeed(0x42))
	state.ApplyGrant(grantID, grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     ReadStreamScope(streamID),
	})

	assert.True(t, state.CanReadStream(recipient.PublicKey(), streamID, 0))
	assert.False(t, state.CanWriteStream(recipient.PublicKey(), streamID, 0))
	assert.False(t, state.CanReadStream(grantor.PublicKey(), streamID, 0), "grantor holds no grant")
}

func TestRevokeRemovesAccess(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	grantID := receipt.ID(testSeed(0x42))
	state.ApplyGrant(grantID, grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     ReadStreamScope(streamID),
	})
	require.True(t, state.CanReadStream(recipient.PublicKey(), streamID, 1000))

	state.ApplyRevoke(receipt.ID(testSeed(0x43)), 2, &RevokePayload{GrantReceiptID: grantID})

	assert.False(t, state.CanReadStream(recipient.PublicKey(), streamID, 1001))

	g, ok := state.GetGrant(grantID)
	require.True(t, ok)
	assert.True(t, g.Revoked)
	assert.Equal(t, uint64(2), g.RevokedAtSeq)
	assert.Equal(t, receipt.ID(testSeed(0x43)), g.RevokeReceiptID)
}

func TestRevocationSticky(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	grantID := receipt.ID(testSeed(0x42))
	state.ApplyGrant(grantID, grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     ReadStreamScope(streamID),
	})
	state.ApplyRevoke(receipt.ID(testSeed(0x43)), 2, &RevokePayload{GrantReceiptID: grantID})

	// A repeated revoke keeps the grant revoked.
	state.ApplyRevoke(receipt.ID(testSeed(0x44)), 3, &RevokePayload{GrantReceiptID: grantID})
	assert.False(t, state.CanReadStream(recipient.PublicKey(), streamID, 0))
}

func TestExpiredGrant(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	state.ApplyGrant(receipt.ID(testSeed(0x42)), grantor.PublicKey(), 1, &GrantPayload{
		Recipient:  recipient.PublicKey(),
		Scope:      ReadStreamScope(streamID),
		Conditions: ExpiresAt(1000),
	})

	assert.True(t, state.CanReadStream(recipient.PublicKey(), streamID, 500))
	assert.False(t, state.CanReadStream(recipient.PublicKey(), streamID, 1500))
}

func TestAdminImpliesReadAndWrite(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	state.ApplyGrant(receipt.ID(testSeed(0x42)), grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     AdminScope(streamID),
	})

	assert.True(t, state.CanReadStream(recipient.PublicKey(), streamID, 0))
	assert.True(t, state.CanWriteStream(recipient.PublicKey(), streamID, 0))
	assert.True(t, state.CanReadReceipt(recipient.PublicKey(), receipt.ID(testSeed(0x99)), streamID, 0))
}

func TestReadReceiptGrant(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")
	receiptID := receipt.ID(testSeed(0x99))

	state.ApplyGrant(receipt.ID(testSeed(0x42)), grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     ReadReceiptScope(receiptID),
	})

	assert.True(t, state.CanReadReceipt(recipient.PublicKey(), receiptID, streamID, 0))
	assert.False(t, state.CanReadReceipt(recipient.PublicKey(), receipt.ID(testSeed(0x98)), streamID, 0))
	assert.False(t, state.CanReadStream(recipient.PublicKey(), streamID, 0))
}

func TestRecordUseEnforcesMaxUses(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	grantID := receipt.ID(testSeed(0x42))
	state.ApplyGrant(grantID, grantor.PublicKey(), 1, &GrantPayload{
		Recipient:  recipient.PublicKey(),
		Scope:      ReadStreamScope(streamID),
		Conditions: MaxUses(2),
	})

	require.NoError(t, state.RecordUse(grantID, 0))
	require.NoError(t, state.RecordUse(grantID, 0))
	assert.True(t, !state.CanReadStream(recipient.PublicKey(), streamID, 0), "exhausted grant must not authorize")
	assert.ErrorIs(t, state.RecordUse(grantID, 0), ErrGrantExhausted)
}

func TestRecordUseUnknownGrant(t *testing.T) {
	state := NewState()
	assert.ErrorIs(t, state.RecordUse(receipt.ID(testSeed(0x42)), 0), ErrGrantNotFound)
}

func TestPermissionMonotonicity(t *testing.T) {
	// Once expiration fires, access never comes back for increasing now.
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	state.ApplyGrant(receipt.ID(testSeed(0x42)), grantor.PublicKey(), 1, &GrantPayload{
		Recipient:  recipient.PublicKey(),
		Scope:      ReadStreamScope(streamID),
		Conditions: ExpiresAt(1000),
	})

	previous := true
	for _, now := range []int64{0, 500, 999, 1000, 1001, 2000, 1 << 40} {
		current := state.CanReadStream(recipient.PublicKey(), streamID, now)
		if current && !previous {
			t.Fatalf("access returned at now=%d after being denied", now)
		}
		previous = current
	}
	assert.False(t, previous)
}

func TestGrantsForAndValidGrants(t *testing.T) {
	state := NewState()
	grantor := crypto.KeypairFromSeed(testSeed(0x01))
	recipient := crypto.KeypairFromSeed(testSeed(0x02))
	streamID := receipt.DeriveStreamID(grantor.PublicKey(), "test")

	state.ApplyGrant(receipt.ID(testSeed(0x42)), grantor.PublicKey(), 1, &GrantPayload{
		Recipient: recipient.PublicKey(),
		Scope:     ReadStreamScope(streamID),
	})
	state.ApplyGrant(receipt.ID(testSeed(0x43)), grantor.PublicKey(), 2, &GrantPayload{
		Recipient:  recipient.PublicKey(),
		Scope:      WriteStreamScope(streamID),
		Conditions: ExpiresAt(100),
	})

	assert.Len(t, state.GrantsFor(recipient.PublicKey()), 2)
	assert.Len(t, state.ValidGrantsFor(recipient.PublicKey(), 50), 2)
	assert.Len(t, state.ValidGrantsFor(recipient.PublicKey(), 200), 1)
}
