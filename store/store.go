// Package store defines the persistence interface the kernel consumes and an
// in-memory implementation of it. Any backend that honors the contracts here
// (idempotent insert, position index, gap table, fork log, head index) can sit
// behind the kernel; a SQL implementation is deliberately out of this module.
package store

import (
	"context"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/stream"
)

// InsertOutcome discriminates InsertResult.
type InsertOutcome int

const (
	// Inserted: the receipt was new.
	Inserted InsertOutcome = iota
	// AlreadyExists: the exact receipt is already stored. Not an error.
	AlreadyExists
	// Conflict: a distinct receipt occupies (stream_id, seq).
	Conflict
)

// InsertResult reports what an insert did. Existing is set only for Conflict.
type InsertResult struct {
	Outcome  InsertOutcome
	Existing receipt.ID
}

func (r InsertResult) Inserted() bool { return r.Outcome == Inserted }

// Fork is persisted evidence of author equivocation.
type Fork struct {
	StreamID  receipt.StreamID
	Seq       uint64
	ReceiptID receipt.ID
	// DetectedAt is the local observation time (unix ms).
	DetectedAt int64
}

// Store is the abstract persistence surface. Implementations must be safe for
// concurrent use; the kernel serializes writes per stream above this layer.
//
// Contracts:
//   - InsertReceipt is idempotent on receipt id and returns Conflict iff a
//     distinct id exists at (stream_id, seq).
//   - Insert plus the subsequent stream-state upsert form an atomic pair:
//     either both or neither persist.
//   - Gap and fork bookkeeping may be lazy but must be crash-safe once the
//     receipt is durable.
type Store interface {
	// InsertReceipt stores a receipt together with its canonical bytes (cached
	// so ingest does not re-encode).
	InsertReceipt(ctx context.Context, r *receipt.Receipt, canonical []byte) (InsertResult, error)

	// GetReceipt looks up a receipt by content address.
	GetReceipt(ctx context.Context, id receipt.ID) (*receipt.Receipt, error)

	// GetReceiptByPosition looks up the receipt at (stream_id, seq).
	GetReceiptByPosition(ctx context.Context, streamID receipt.StreamID, seq uint64) (*receipt.Receipt, error)

	// GetReceiptsRange returns receipts with start <= seq <= end ordered by
	// seq. Missing positions are skipped, not errors.
	GetReceiptsRange(ctx context.Context, streamID receipt.StreamID, start, end uint64) ([]*receipt.Receipt, error)

	// HasReceipt reports whether the id is stored.
	HasReceipt(ctx context.Context, id receipt.ID) (bool, error)

	// GetCanonicalBytes returns the cached canonical encoding, if present.
	GetCanonicalBytes(ctx context.Context, id receipt.ID) ([]byte, error)

	// GetStreamState returns the whole stream record, or nil if unknown.
	GetStreamState(ctx context.Context, streamID receipt.StreamID) (*stream.State, error)

	// UpsertStreamState writes the whole stream record. The writer owns update
	// ordering.
	UpsertStreamState(ctx context.Context, state *stream.State) error

	// ListStreams lists known streams, optionally filtered by author.
	ListStreams(ctx context.Context, author *crypto.PublicKey) ([]receipt.StreamID, error)

	// GetGaps returns missing sequence numbers for a stream in ascending order.
	GetGaps(ctx context.Context, streamID receipt.StreamID) ([]uint64, error)

	// AddGaps records missing sequence numbers.
	AddGaps(ctx context.Context, streamID receipt.StreamID, seqs []uint64) error

	// RemoveGap clears a gap once its receipt arrives.
	RemoveGap(ctx context.Context, streamID receipt.StreamID, seq uint64) error

	// MarkGapRequested notes when a gap was last requested from a peer, for
	// request rate limiting.
	MarkGapRequested(ctx context.Context, streamID receipt.StreamID, seq uint64, at int64) error

	// RecordFork appends fork evidence. Duplicate records collapse.
	RecordFork(ctx context.Context, streamID receipt.StreamID, seq uint64, id receipt.ID, detectedAt int64) error

	// GetForks returns all fork evidence for a stream.
	GetForks(ctx context.Context, streamID receipt.StreamID) ([]Fork, error)

	// GetReceiptIDsSince returns (seq, id) pairs with seq > afterSeq, ordered
	// by seq.
	GetReceiptIDsSince(ctx context.Context, streamID receipt.StreamID, afterSeq uint64) ([]SeqID, error)

	// GetAllStreamHeads returns (stream_id, head_seq, head_id) for every
	// stream whose head is known.
	GetAllStreamHeads(ctx context.Context) ([]StreamHead, error)
}

// SeqID pairs a sequence number with the receipt id occupying it.
type SeqID struct {
	Seq uint64
	ID  receipt.ID
}

// StreamHead is a head index entry.
type StreamHead struct {
	StreamID      receipt.StreamID
	HeadSeq       uint64
	HeadReceiptID receipt.ID
}
