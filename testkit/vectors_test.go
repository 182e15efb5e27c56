package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainge/go-chainge-kernel/receipt"
)

func TestVectorsDeterministic(t *testing.T) {
	for _, v := range AllVectors() {
		r1, err := GenerateReceipt(v)
		require.NoError(t, err, v.Name)
		r2, err := GenerateReceipt(v)
		require.NoError(t, err, v.Name)

		assert.Equal(t, r1.ComputeID(), r2.ComputeID(), "vector %q produced different ids", v.Name)

		b1, err := receipt.EncodeReceipt(r1)
		require.NoError(t, err)
		b2, err := receipt.EncodeReceipt(r2)
		require.NoError(t, err)
		assert.Equal(t, b1, b2, "vector %q produced different canonical bytes", v.Name)
	}
}

func TestVectorsValidate(t *testing.T) {
	for _, v := range AllVectors() {
		r, err := GenerateReceipt(v)
		require.NoError(t, err, v.Name)
		assert.NoError(t, receipt.Validate(r), "vector %q must validate", v.Name)
	}
}

func TestVectorsDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, v := range AllVectors() {
		r, err := GenerateReceipt(v)
		require.NoError(t, err)
		id := r.ComputeID().Hex()
		if prior, ok := seen[id]; ok {
			t.Fatalf("vectors %q and %q collide on receipt id", prior, v.Name)
		}
		seen[id] = v.Name
	}
}

func TestVerifyAllVectors(t *testing.T) {
	results, err := VerifyAllVectors()
	require.NoError(t, err)
	require.Len(t, results, len(AllVectors()))
	for _, r := range results {
		assert.True(t, r.Matches, "vector %q mismatched its pinned id", r.Name)
		assert.Len(t, r.ReceiptID, 64)
	}
}

func TestFixtureChain(t *testing.T) {
	f := NewFixture(0x42)
	chain, err := f.MakeChain("fixture", 3, nil)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	assert.True(t, chain[0].IsStreamInit())
	require.NotNil(t, chain[1].Header.PrevReceiptID)
	assert.Equal(t, chain[0].ComputeID(), *chain[1].Header.PrevReceiptID)
	require.NotNil(t, chain[2].Header.PrevReceiptID)
	assert.Equal(t, chain[1].ComputeID(), *chain[2].Header.PrevReceiptID)

	for _, r := range chain {
		assert.NoError(t, receipt.Validate(r))
	}
}

func TestMultiPartyDistinctKeys(t *testing.T) {
	parties := MultiParty(3)
	require.Len(t, parties, 3)
	assert.NotEqual(t, parties[0].PublicKey(), parties[1].PublicKey())
	assert.NotEqual(t, parties[1].PublicKey(), parties[2].PublicKey())
	assert.NotEqual(t, parties[0].PublicKey(), parties[2].PublicKey())
}
