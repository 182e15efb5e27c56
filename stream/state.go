// Package stream tracks per-stream ingest state: the highest contiguous head,
// the set of missing sequence numbers, and health including sticky fork marks.
// The state is a deterministic function of the set of accepted receipt ids,
// regardless of arrival order.
package stream

import (
	"slices"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// HealthKind discriminates stream health.
type HealthKind int

const (
	// Healthy: contiguous receipts, no conflicts.
	Healthy HealthKind = iota
	// HasGaps: one or more sequence numbers are missing before known_max_seq.
	HasGaps
	// Forked: two distinct receipts were observed at the same seq. Sticky.
	Forked
)

// Health is the stream's condition. ForkedAtSeq/ForkedReceipts are set only
// when Kind is Forked; Missing only when Kind is HasGaps.
type Health struct {
	Kind HealthKind

	Missing []uint64

	ForkedAtSeq    uint64
	ForkedReceipts []receipt.ID
}

func (h Health) IsHealthy() bool { return h.Kind == Healthy }

func (h Health) HasGaps() bool { return h.Kind == HasGaps }

func (h Health) IsForked() bool { return h.Kind == Forked }

// RecordResult classifies a record transition.
type RecordResult int

const (
	// Accepted: the receipt extended the head contiguously.
	Accepted RecordResult = iota
	// AcceptedWithGaps: the receipt landed beyond the head, creating gaps.
	AcceptedWithGaps
	// GapFilled: the receipt filled a known gap; the head did not move here.
	GapFilled
	// Duplicate: the position is already occupied. The caller ensures the id
	// matches; a differing id is a fork and goes through MarkForked.
	Duplicate
)

func (r RecordResult) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case AcceptedWithGaps:
		return "AcceptedWithGaps"
	case GapFilled:
		return "GapFilled"
	case Duplicate:
		return "Duplicate"
	}
	return "Unknown"
}

// State is the whole-record stream state persisted by the store.
type State struct {
	StreamID   receipt.StreamID
	Author     crypto.PublicKey
	StreamName string

	// HeadSeq is the highest contiguous sequence number present.
	HeadSeq uint64
	// HeadReceiptID is the id at HeadSeq; nil while the stream is empty.
	HeadReceiptID *receipt.ID

	// KnownMaxSeq is the highest seq heard about; gaps may precede it.
	KnownMaxSeq uint64

	// Gaps holds missing sequence numbers, tracked as a set.
	Gaps map[uint64]struct{}

	// StateHash is the last computed convergence witness, if any.
	StateHash *crypto.Hash

	Health Health

	// CreatedAt / UpdatedAt are local observation times (unix ms), supplied by
	// the caller's clock.
	CreatedAt int64
	UpdatedAt int64
}

// NewState creates state for a stream the author owns.
func NewState(author crypto.PublicKey, streamName string, now int64) *State {
	return &State{
		StreamID:   receipt.DeriveStreamID(author, streamName),
		Author:     author,
		StreamName: streamName,
		Gaps:       make(map[uint64]struct{}),
		Health:     Health{Kind: Healthy},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewStateForID creates state for a stream observed from the outside, where
// the name is unknown (names are derivable only with name knowledge).
func NewStateForID(streamID receipt.StreamID, author crypto.PublicKey, now int64) *State {
	return &State{
		StreamID:  streamID,
		Author:    author,
		Gaps:      make(map[uint64]struct{}),
		Health:    Health{Kind: Healthy},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record observes a receipt at (seq, id) and advances the state machine.
//
//	seq == head+1          -> Accepted, head advances
//	seq in gaps            -> GapFilled
//	seq >  head+1          -> AcceptedWithGaps, [head+1, seq) join the gap set
//	seq <= head, not a gap -> Duplicate, no state change
func (s *State) Record(seq uint64, id receipt.ID, now int64) RecordResult {
	s.UpdatedAt = now

	if seq > s.KnownMaxSeq {
		s.KnownMaxSeq = seq
	}

	if seq == s.HeadSeq+1 {
		s.HeadSeq = seq
		headID := id
		s.HeadReceiptID = &headID
		delete(s.Gaps, seq)
		s.updateHealth()
		return Accepted
	}

	if _, ok := s.Gaps[seq]; ok {
		delete(s.Gaps, seq)
		s.updateHealth()
		return GapFilled
	}

	if seq > s.HeadSeq+1 {
		for missing := s.HeadSeq + 1; missing < seq; missing++ {
			s.Gaps[missing] = struct{}{}
		}
		s.updateHealth()
		return AcceptedWithGaps
	}

	return Duplicate
}

// TryAdvanceHead walks forward from the head consuming contiguously present
// receipts. getReceiptAt resolves a seq to the stored receipt id, reporting
// presence. Returns the new head seq and whether it moved. Called after gap
// fills; terminates on the first missing seq.
//
// A gap entry whose receipt turns out to be present is stale (receipts can
// land in storage in any order); presence in storage is authoritative, so the
// walk clears it and keeps going.
func (s *State) TryAdvanceHead(getReceiptAt func(seq uint64) (receipt.ID, bool)) (uint64, bool) {
	originalHead := s.HeadSeq

	for s.HeadSeq < s.KnownMaxSeq {
		next := s.HeadSeq + 1
		id, ok := getReceiptAt(next)
		if !ok {
			break
		}
		delete(s.Gaps, next)
		s.HeadSeq = next
		headID := id
		s.HeadReceiptID = &headID
	}

	if s.HeadSeq > originalHead {
		s.updateHealth()
		return s.HeadSeq, true
	}
	return s.HeadSeq, false
}

// MarkForked records equivocation evidence. The mark is sticky: once forked a
// stream stays forked even if the head later advances.
func (s *State) MarkForked(atSeq uint64, conflicting []receipt.ID, now int64) {
	s.Health = Health{
		Kind:           Forked,
		ForkedAtSeq:    atSeq,
		ForkedReceipts: conflicting,
	}
	s.UpdatedAt = now
}

// updateHealth recomputes gap-driven health. The fork mark dominates and is
// never overwritten here.
func (s *State) updateHealth() {
	if s.Health.IsForked() {
		return
	}
	if len(s.Gaps) == 0 {
		s.Health = Health{Kind: Healthy}
		return
	}
	s.Health = Health{Kind: HasGaps, Missing: s.MissingSeqs()}
}

func (s *State) IsHealthy() bool { return s.Health.IsHealthy() }

func (s *State) IsForked() bool { return s.Health.IsForked() }

// MissingSeqs returns the gap set in ascending order.
func (s *State) MissingSeqs() []uint64 {
	out := make([]uint64, 0, len(s.Gaps))
	for seq := range s.Gaps {
		out = append(out, seq)
	}
	slices.Sort(out)
	return out
}

// Clone deep-copies the state so stores can hand out records without aliasing
// the caller's mutations.
func (s *State) Clone() *State {
	c := *s
	c.Gaps = make(map[uint64]struct{}, len(s.Gaps))
	for seq := range s.Gaps {
		c.Gaps[seq] = struct{}{}
	}
	if s.HeadReceiptID != nil {
		id := *s.HeadReceiptID
		c.HeadReceiptID = &id
	}
	if s.StateHash != nil {
		h := *s.StateHash
		c.StateHash = &h
	}
	if s.Health.Missing != nil {
		c.Health.Missing = append([]uint64(nil), s.Health.Missing...)
	}
	if s.Health.ForkedReceipts != nil {
		c.Health.ForkedReceipts = append([]receipt.ID(nil), s.Health.ForkedReceipts...)
	}
	return &c
}
