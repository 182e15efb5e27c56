// Package testkit provides deterministic fixtures and golden-vector helpers
// for tests of this module and of systems embedding it.
package testkit

import (
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
)

// FixedTimestamp is the timestamp used across golden vectors and scenario
// tests: 2025-01-14T16:00:00Z in unix ms.
const FixedTimestamp int64 = 1736870400000

// Seed fills a 32-byte seed with a repeated byte.
func Seed(b byte) [32]byte {
	var seed [32]byte
	for i := range seed {
		seed[i] = b
	}
	return seed
}

// Fixture bundles a deterministic keypair with a fresh in-memory store.
type Fixture struct {
	Keypair *crypto.Keypair
	Store   *store.MemoryStore
}

// NewFixture creates a fixture from a seed byte.
func NewFixture(seedByte byte) *Fixture {
	return &Fixture{
		Keypair: crypto.KeypairFromSeed(Seed(seedByte)),
		Store:   store.NewMemoryStore(),
	}
}

// PublicKey returns the fixture's author key.
func (f *Fixture) PublicKey() crypto.PublicKey {
	return f.Keypair.PublicKey()
}

// StreamID derives a stream id for the fixture's key.
func (f *Fixture) StreamID(name string) receipt.StreamID {
	return receipt.DeriveStreamID(f.Keypair.PublicKey(), name)
}

// MakeStreamInit builds a signed StreamInit receipt.
func (f *Fixture) MakeStreamInit(streamName string, payload []byte) (*receipt.Receipt, error) {
	return receipt.NewBuilder(f.PublicKey(), f.StreamID(streamName), 1).
		Kind(receipt.KindStreamInit).
		Timestamp(FixedTimestamp).
		Payload(payload).
		Sign(f.Keypair)
}

// MakeData builds a signed Data receipt chained onto prev.
func (f *Fixture) MakeData(streamName string, seq uint64, prev receipt.ID, payload []byte) (*receipt.Receipt, error) {
	return receipt.NewBuilder(f.PublicKey(), f.StreamID(streamName), seq).
		Kind(receipt.KindData).
		Timestamp(FixedTimestamp + int64(seq)).
		Prev(prev).
		Payload(payload).
		Sign(f.Keypair)
}

// MakeTombstone builds a signed Tombstone receipt naming target.
func (f *Fixture) MakeTombstone(streamName string, seq uint64, prev, target receipt.ID) (*receipt.Receipt, error) {
	return receipt.NewBuilder(f.PublicKey(), f.StreamID(streamName), seq).
		Kind(receipt.KindTombstone).
		Timestamp(FixedTimestamp + int64(seq)).
		Prev(prev).
		AddRef(target).
		Sign(f.Keypair)
}

// MakeChain builds a StreamInit followed by count-1 Data receipts, each
// chained onto the previous id.
func (f *Fixture) MakeChain(streamName string, count int, payload func(seq uint64) []byte) ([]*receipt.Receipt, error) {
	if payload == nil {
		payload = func(seq uint64) []byte { return []byte{byte(seq)} }
	}
	out := make([]*receipt.Receipt, 0, count)

	init, err := f.MakeStreamInit(streamName, payload(1))
	if err != nil {
		return nil, err
	}
	out = append(out, init)
	prev := init.ComputeID()

	for seq := uint64(2); seq <= uint64(count); seq++ {
		r, err := f.MakeData(streamName, seq, prev, payload(seq))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		prev = r.ComputeID()
	}
	return out, nil
}

// MultiParty creates count fixtures with distinct deterministic seeds.
func MultiParty(count int) []*Fixture {
	out := make([]*Fixture, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, NewFixture(byte(i+1)))
	}
	return out
}
