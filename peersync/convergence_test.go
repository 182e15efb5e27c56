package peersync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
)

func setupConvergenceStream(t *testing.T, count int) (*store.MemoryStore, receipt.StreamID, []receipt.ID) {
	t.Helper()
	s := store.NewMemoryStore()
	kp := crypto.KeypairFromSeed(testSeed(0x42))
	chain := buildChain(t, kp, "convergence", count)
	ingestAll(t, s, chain)

	ids := make([]receipt.ID, 0, count)
	for _, r := range chain {
		ids = append(ids, r.ComputeID())
	}
	return s, chain[0].StreamID(), ids
}

func TestStateHashDeterministic(t *testing.T) {
	ctx := context.Background()
	s, streamID, _ := setupConvergenceStream(t, 5)

	h1, err := ComputeStreamStateHash(ctx, s, streamID)
	require.NoError(t, err)
	h2, err := ComputeStreamStateHash(ctx, s, streamID)
	require.NoError(t, err)
	require.NotNil(t, h1)
	assert.Equal(t, *h1, *h2)
}

func TestStateHashUnknownStream(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	h, err := ComputeStreamStateHash(ctx, s, receipt.StreamID(testSeed(0x55)))
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestConvergenceVerified(t *testing.T) {
	ctx := context.Background()
	s, streamID, ids := setupConvergenceStream(t, 3)

	hash, err := ComputeStreamStateHash(ctx, s, streamID)
	require.NoError(t, err)

	result, err := VerifyConvergence(ctx, s, streamID, 3, ids[2], hash)
	require.NoError(t, err)
	assert.True(t, result.IsConverged())
}

func TestConvergenceHeadMismatch(t *testing.T) {
	ctx := context.Background()
	s, streamID, ids := setupConvergenceStream(t, 3)

	result, err := VerifyConvergence(ctx, s, streamID, 5, ids[2], nil)
	require.NoError(t, err)
	assert.Equal(t, NotConverged, result.Status)
	assert.False(t, result.IsConverged())
}

func TestConvergenceForkDetected(t *testing.T) {
	ctx := context.Background()
	s, streamID, ids := setupConvergenceStream(t, 3)

	remoteID := receipt.ID(testSeed(0xEE))
	result, err := VerifyConvergence(ctx, s, streamID, 3, remoteID, nil)
	require.NoError(t, err)
	assert.True(t, result.IsForked())
	assert.Equal(t, uint64(3), result.AtSeq)
	assert.Equal(t, ids[2], result.LocalReceiptID)
	assert.Equal(t, remoteID, result.RemoteReceiptID)
}

func TestConvergenceStateHashMismatch(t *testing.T) {
	ctx := context.Background()
	s, streamID, ids := setupConvergenceStream(t, 3)

	wrong := crypto.Sum([]byte("not the state hash"))
	result, err := VerifyConvergence(ctx, s, streamID, 3, ids[2], &wrong)
	require.NoError(t, err)
	assert.Equal(t, NotConverged, result.Status)
}

func TestConvergenceUnknownStream(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	result, err := VerifyConvergence(ctx, s, receipt.StreamID(testSeed(0x55)), 1, receipt.ID(testSeed(0x01)), nil)
	require.NoError(t, err)
	assert.Equal(t, NotConverged, result.Status)
}

func TestVerifyAllStreams(t *testing.T) {
	ctx := context.Background()
	s, streamID, ids := setupConvergenceStream(t, 3)

	results, err := VerifyAllStreams(ctx, s, []StreamHead{
		{StreamID: streamID, HeadSeq: 3, HeadReceiptID: ids[2]},
		{StreamID: receipt.StreamID(testSeed(0x77)), HeadSeq: 1, HeadReceiptID: ids[0]},
	})
	require.NoError(t, err)
	assert.True(t, results[streamID].IsConverged())
	assert.Equal(t, NotConverged, results[receipt.StreamID(testSeed(0x77))].Status)
}
