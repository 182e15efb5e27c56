package store

import (
	"context"
	"slices"
	"sync"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/stream"
)

// MemoryStore keeps everything in process memory behind a single RWMutex. It
// honors the same contracts as a durable backend and is the reference
// implementation for tests and single-process embedding.
type MemoryStore struct {
	mu sync.RWMutex

	receipts  map[receipt.ID]storedReceipt
	positions map[position]receipt.ID
	streams   map[receipt.StreamID]*stream.State
	gaps      map[receipt.StreamID]map[uint64]struct{}
	gapReqs   map[position]int64
	forks     map[receipt.StreamID][]Fork
}

type position struct {
	streamID receipt.StreamID
	seq      uint64
}

type storedReceipt struct {
	receipt   *receipt.Receipt
	canonical []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		receipts:  make(map[receipt.ID]storedReceipt),
		positions: make(map[position]receipt.ID),
		streams:   make(map[receipt.StreamID]*stream.State),
		gaps:      make(map[receipt.StreamID]map[uint64]struct{}),
		gapReqs:   make(map[position]int64),
		forks:     make(map[receipt.StreamID][]Fork),
	}
}

func (m *MemoryStore) InsertReceipt(ctx context.Context, r *receipt.Receipt, canonical []byte) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := r.ComputeID()
	pos := position{streamID: r.StreamID(), seq: r.Seq()}

	if _, ok := m.receipts[id]; ok {
		return InsertResult{Outcome: AlreadyExists}, nil
	}

	if existing, ok := m.positions[pos]; ok {
		return InsertResult{Outcome: Conflict, Existing: existing}, nil
	}

	m.receipts[id] = storedReceipt{
		receipt:   r,
		canonical: slices.Clone(canonical),
	}
	m.positions[pos] = id

	return InsertResult{Outcome: Inserted}, nil
}

func (m *MemoryStore) GetReceipt(ctx context.Context, id receipt.ID) (*receipt.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sr, ok := m.receipts[id]; ok {
		return sr.receipt, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetReceiptByPosition(ctx context.Context, streamID receipt.StreamID, seq uint64) (*receipt.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.positions[position{streamID: streamID, seq: seq}]
	if !ok {
		return nil, nil
	}
	if sr, ok := m.receipts[id]; ok {
		return sr.receipt, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetReceiptsRange(ctx context.Context, streamID receipt.StreamID, start, end uint64) ([]*receipt.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*receipt.Receipt
	for seq := start; seq <= end; seq++ {
		id, ok := m.positions[position{streamID: streamID, seq: seq}]
		if !ok {
			continue
		}
		if sr, ok := m.receipts[id]; ok {
			out = append(out, sr.receipt)
		}
	}
	return out, nil
}

func (m *MemoryStore) HasReceipt(ctx context.Context, id receipt.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.receipts[id]
	return ok, nil
}

func (m *MemoryStore) GetCanonicalBytes(ctx context.Context, id receipt.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sr, ok := m.receipts[id]; ok {
		return slices.Clone(sr.canonical), nil
	}
	return nil, nil
}

func (m *MemoryStore) GetStreamState(ctx context.Context, streamID receipt.StreamID) (*stream.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.streams[streamID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *MemoryStore) UpsertStreamState(ctx context.Context, state *stream.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streams[state.StreamID] = state.Clone()

	// Mirror the state's gap set into the gap table so GetGaps stays
	// consistent with the record the writer just committed.
	gaps := make(map[uint64]struct{}, len(state.Gaps))
	for seq := range state.Gaps {
		gaps[seq] = struct{}{}
	}
	m.gaps[state.StreamID] = gaps

	return nil
}

func (m *MemoryStore) ListStreams(ctx context.Context, author *crypto.PublicKey) ([]receipt.StreamID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []receipt.StreamID
	for id, s := range m.streams {
		if author != nil && s.Author != *author {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryStore) GetGaps(ctx context.Context, streamID receipt.StreamID) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gaps, ok := m.gaps[streamID]
	if !ok {
		return nil, nil
	}
	out := make([]uint64, 0, len(gaps))
	for seq := range gaps {
		out = append(out, seq)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) AddGaps(ctx context.Context, streamID receipt.StreamID, seqs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gaps, ok := m.gaps[streamID]
	if !ok {
		gaps = make(map[uint64]struct{})
		m.gaps[streamID] = gaps
	}
	for _, seq := range seqs {
		gaps[seq] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) RemoveGap(ctx context.Context, streamID receipt.StreamID, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gaps, ok := m.gaps[streamID]; ok {
		delete(gaps, seq)
	}
	return nil
}

func (m *MemoryStore) MarkGapRequested(ctx context.Context, streamID receipt.StreamID, seq uint64, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gapReqs[position{streamID: streamID, seq: seq}] = at
	return nil
}

func (m *MemoryStore) RecordFork(ctx context.Context, streamID receipt.StreamID, seq uint64, id receipt.ID, detectedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	forks := m.forks[streamID]
	for _, f := range forks {
		if f.Seq == seq && f.ReceiptID == id {
			return nil
		}
	}
	m.forks[streamID] = append(forks, Fork{
		StreamID:   streamID,
		Seq:        seq,
		ReceiptID:  id,
		DetectedAt: detectedAt,
	})
	return nil
}

func (m *MemoryStore) GetForks(ctx context.Context, streamID receipt.StreamID) ([]Fork, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.forks[streamID]), nil
}

func (m *MemoryStore) GetReceiptIDsSince(ctx context.Context, streamID receipt.StreamID, afterSeq uint64) ([]SeqID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SeqID
	for pos, id := range m.positions {
		if pos.streamID == streamID && pos.seq > afterSeq {
			out = append(out, SeqID{Seq: pos.seq, ID: id})
		}
	}
	slices.SortFunc(out, func(a, b SeqID) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *MemoryStore) GetAllStreamHeads(ctx context.Context) ([]StreamHead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []StreamHead
	for id, s := range m.streams {
		if s.HeadReceiptID == nil {
			continue
		}
		out = append(out, StreamHead{
			StreamID:      id,
			HeadSeq:       s.HeadSeq,
			HeadReceiptID: *s.HeadReceiptID,
		})
	}
	return out, nil
}
