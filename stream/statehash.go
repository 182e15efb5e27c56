package stream

import (
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// stateHashDomain seeds the rolling convergence hash. Part of the wire
// contract.
const stateHashDomain = "chainge-state-v0:"

// StateHasher accumulates the convergence witness for a stream: a rolling
// BLAKE3 over the stream id followed by the receipt ids for seq 1..=head in
// order. Two nodes holding identical receipt sets produce the same digest.
type StateHasher struct {
	h     *crypto.Hasher
	count int
}

// NewStateHasher starts the chain for a stream.
func NewStateHasher(streamID receipt.StreamID) *StateHasher {
	h := crypto.NewHasher()
	h.Write([]byte(stateHashDomain))
	h.Write(streamID.Bytes())
	return &StateHasher{h: h}
}

// Add absorbs the next receipt id. Ids must be fed in ascending seq order.
func (s *StateHasher) Add(id receipt.ID) {
	s.h.Write(id.Bytes())
	s.count++
}

// Count reports how many ids were absorbed.
func (s *StateHasher) Count() int { return s.count }

// Sum returns the digest over everything absorbed so far.
func (s *StateHasher) Sum() crypto.Hash {
	return s.h.SumHash()
}

// ComputeStateHash computes the witness for an id sequence in one call.
func ComputeStateHash(streamID receipt.StreamID, ids []receipt.ID) crypto.Hash {
	sh := NewStateHasher(streamID)
	for _, id := range ids {
		sh.Add(id)
	}
	return sh.Sum()
}
