package peersync

import (
	"context"

	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
	"github.com/chainge/go-chainge-kernel/stream"
)

// IngestOutcome classifies what ingesting a receipt did.
type IngestOutcome int

const (
	// IngestAccepted: the receipt was new and stream state advanced.
	IngestAccepted IngestOutcome = iota
	// IngestDuplicate: the exact receipt was already stored. Idempotent no-op.
	IngestDuplicate
	// IngestConflict: a distinct receipt occupies the position. Fork evidence
	// was recorded and the stream marked forked.
	IngestConflict
)

// IngestResult reports an ingest. Existing is set only for IngestConflict.
type IngestResult struct {
	Outcome  IngestOutcome
	ID       receipt.ID
	Existing receipt.ID
}

// Ingestor is the session's hook into the local ingest pipeline. The kernel
// implements it; StoreIngestor is the standalone implementation for embedders
// driving sync without a kernel.
type Ingestor interface {
	Ingest(ctx context.Context, r *receipt.Receipt) (IngestResult, error)
}

// StoreIngestor runs the full ingest pipeline against a bare store: validate,
// idempotent insert, stream-state record, head advancement, fork bookkeeping.
type StoreIngestor struct {
	Store store.Store
	// Now supplies local observation time in unix ms. The pipeline owns no
	// clock.
	Now func() int64
	// Validate toggles full receipt validation before insert. Defaults on via
	// NewStoreIngestor.
	Validate bool
}

// NewStoreIngestor builds the standard pipeline with validation enabled.
func NewStoreIngestor(s store.Store, now func() int64) *StoreIngestor {
	return &StoreIngestor{Store: s, Now: now, Validate: true}
}

// Ingest runs one receipt through the pipeline. Validation failures return an
// error without touching state; the offending receipt is simply rejected.
func (si *StoreIngestor) Ingest(ctx context.Context, r *receipt.Receipt) (IngestResult, error) {
	if si.Validate {
		if err := receipt.Validate(r); err != nil {
			return IngestResult{}, err
		}
	}

	canonical, err := receipt.EncodeReceipt(r)
	if err != nil {
		return IngestResult{}, err
	}
	id := r.ComputeID()
	now := si.Now()

	ins, err := si.Store.InsertReceipt(ctx, r, canonical)
	if err != nil {
		return IngestResult{}, err
	}

	switch ins.Outcome {
	case store.AlreadyExists:
		// The bytes are already durable, but the stream record may not have
		// seen this position yet (a receipt inserted out-of-band, or a retry
		// interrupted between insert and state upsert). Recording again is
		// idempotent.
		if err := si.updateStreamState(ctx, r, id, now); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Outcome: IngestDuplicate, ID: id}, nil

	case store.Conflict:
		if err := si.Store.RecordFork(ctx, r.StreamID(), r.Seq(), id, now); err != nil {
			return IngestResult{}, err
		}
		if err := si.markForked(ctx, r, ins.Existing, id, now); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Outcome: IngestConflict, ID: id, Existing: ins.Existing}, nil
	}

	if err := si.updateStreamState(ctx, r, id, now); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Outcome: IngestAccepted, ID: id}, nil
}

func (si *StoreIngestor) updateStreamState(ctx context.Context, r *receipt.Receipt, id receipt.ID, now int64) error {
	state, err := si.Store.GetStreamState(ctx, r.StreamID())
	if err != nil {
		return err
	}
	if state == nil {
		state = stream.NewStateForID(r.StreamID(), r.Author(), now)
	}

	state.Record(r.Seq(), id, now)

	// Consume contiguously present receipts past the head. Lookup misses and
	// errors both stop the walk; a stale head is corrected on the next ingest.
	state.TryAdvanceHead(func(seq uint64) (receipt.ID, bool) {
		next, err := si.Store.GetReceiptByPosition(ctx, r.StreamID(), seq)
		if err != nil || next == nil {
			return receipt.ZeroID, false
		}
		return next.ComputeID(), true
	})

	return si.Store.UpsertStreamState(ctx, state)
}

func (si *StoreIngestor) markForked(ctx context.Context, r *receipt.Receipt, existing, incoming receipt.ID, now int64) error {
	state, err := si.Store.GetStreamState(ctx, r.StreamID())
	if err != nil {
		return err
	}
	if state == nil {
		state = stream.NewStateForID(r.StreamID(), r.Author(), now)
	}
	state.MarkForked(r.Seq(), []receipt.ID{existing, incoming}, now)
	return si.Store.UpsertStreamState(ctx, state)
}
