package peersync

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

func testNodeID(b byte) NodeID {
	return NodeID(testSeed(b))
}

func TestSeqRangeExpand(t *testing.T) {
	tests := []struct {
		name  string
		r     SeqRange
		want  []uint64
		count int
	}{
		{"single", Single(5), []uint64{5}, 1},
		{"span", Span(3, 7), []uint64{3, 4, 5, 6, 7}, 5},
		{"span single", Span(4, 4), []uint64{4}, 1},
		{"span inverted", Span(7, 3), nil, 0},
		{"list", List([]uint64{1, 5, 9}), []uint64{1, 5, 9}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Expand())
			assert.Equal(t, tt.count, tt.r.Count())
		})
	}
}

func TestValidateLimits(t *testing.T) {
	okHello := Hello{NodeID: testNodeID(1), ProtocolVersion: ProtocolVersion}
	assert.NoError(t, ValidateLimits(okHello))

	tooManyStreams := Hello{
		NodeID:            testNodeID(1),
		StreamsOfInterest: make([]receipt.StreamID, MaxStreamsOfInterest+1),
	}
	assert.ErrorIs(t, ValidateLimits(tooManyStreams), ErrMessageTooLarge)

	tooManyHeads := StreamHeads{Heads: make([]StreamHead, MaxStreamHeads+1)}
	assert.ErrorIs(t, ValidateLimits(tooManyHeads), ErrMessageTooLarge)

	tooManyRequests := NeedReceipts{Requests: make([]ReceiptRequest, MaxReceiptRequests+1)}
	assert.ErrorIs(t, ValidateLimits(tooManyRequests), ErrMessageTooLarge)

	tooLongList := NeedReceipts{Requests: []ReceiptRequest{{
		StreamID: receipt.StreamID(testSeed(1)),
		Seqs:     List(make([]uint64, MaxSeqList+1)),
	}}}
	assert.ErrorIs(t, ValidateLimits(tooLongList), ErrMessageTooLarge)

	tooManyReceipts := Receipts{Receipts: make([]*receipt.Receipt, MaxReceiptsPerMsg+1)}
	assert.ErrorIs(t, ValidateLimits(tooManyReceipts), ErrMessageTooLarge)

	tooManyAcks := Ack{Received: make([]receipt.ID, MaxAckIDs+1)}
	assert.ErrorIs(t, ValidateLimits(tooManyAcks), ErrMessageTooLarge)
}

func buildTestReceipt(t *testing.T) *receipt.Receipt {
	t.Helper()
	kp := crypto.KeypairFromSeed(testSeed(0x42))
	streamID := receipt.DeriveStreamID(kp.PublicKey(), "wire")
	r, err := receipt.NewBuilder(kp.PublicKey(), streamID, 1).
		Kind(receipt.KindStreamInit).
		Timestamp(1736870400000).
		Payload([]byte("hello")).
		Sign(kp)
	require.NoError(t, err)
	return r
}

func TestMessageFramingRoundtrip(t *testing.T) {
	r := buildTestReceipt(t)
	streamID := receipt.StreamID(testSeed(0x10))
	headID := receipt.ID(testSeed(0x11))

	messages := []Message{
		Hello{
			NodeID:            testNodeID(0xAA),
			ProtocolVersion:   ProtocolVersion,
			StreamsOfInterest: []receipt.StreamID{streamID},
		},
		StreamHeads{Heads: []StreamHead{{StreamID: streamID, HeadSeq: 7, HeadReceiptID: headID}}},
		NeedReceipts{Requests: []ReceiptRequest{
			{StreamID: streamID, Seqs: Span(2, 9)},
			{StreamID: streamID, Seqs: List([]uint64{1, 3})},
			{StreamID: streamID, Seqs: Single(12)},
		}},
		Receipts{Receipts: []*receipt.Receipt{r}},
		Ack{Received: []receipt.ID{headID}},
		ErrorMessage{Code: CodeRateLimited, Message: "slow down"},
	}

	for _, m := range messages {
		frame, err := EncodeMessage(m)
		require.NoError(t, err)

		decoded, err := DecodeMessage(frame)
		require.NoError(t, err)

		switch want := m.(type) {
		case Receipts:
			got, ok := decoded.(Receipts)
			require.True(t, ok)
			require.Len(t, got.Receipts, 1)
			assert.True(t, want.Receipts[0].Equal(got.Receipts[0]))
			assert.Equal(t, want.Receipts[0].ComputeID(), got.Receipts[0].ComputeID())
		default:
			assert.Equal(t, m, decoded)
		}
	}
}

func TestFramingDeterministic(t *testing.T) {
	m := StreamHeads{Heads: []StreamHead{{
		StreamID:      receipt.StreamID(testSeed(0x10)),
		HeadSeq:       3,
		HeadReceiptID: receipt.ID(testSeed(0x11)),
	}}}
	f1, err := EncodeMessage(m)
	require.NoError(t, err)
	f2, err := EncodeMessage(m)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestDecodeRejectsGarbageFrame(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// Valid frame shape, unknown type.
	frame, err := codec.MarshalCBOR(frameWire{Type: 200, Body: []byte{0xa0}})
	require.NoError(t, err)
	_, err = DecodeMessage(frame)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
