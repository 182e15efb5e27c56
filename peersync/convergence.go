package peersync

import (
	"context"
	"fmt"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
	"github.com/chainge/go-chainge-kernel/stream"
)

// ConvergenceStatus classifies a post-sync comparison.
type ConvergenceStatus int

const (
	// Converged: identical head and, when provided, identical state hash.
	Converged ConvergenceStatus = iota
	// NotConverged: receipts are missing on one side; another sync round can
	// resolve it.
	NotConverged
	// ForkDetected: the heads disagree at the same seq, i.e. equivocation.
	ForkDetected
)

// ConvergenceResult reports a convergence check.
type ConvergenceResult struct {
	Status ConvergenceStatus
	Reason string

	// Fork details, set when Status is ForkDetected.
	AtSeq           uint64
	LocalReceiptID  receipt.ID
	RemoteReceiptID receipt.ID
}

func (r ConvergenceResult) IsConverged() bool { return r.Status == Converged }

func (r ConvergenceResult) IsForked() bool { return r.Status == ForkDetected }

// ComputeStreamStateHash folds the receipt ids for seq 1..=head into the
// stream's rolling convergence witness. Returns nil if the stream is unknown
// or empty.
func ComputeStreamStateHash(ctx context.Context, s store.Store, streamID receipt.StreamID) (*crypto.Hash, error) {
	state, err := s.GetStreamState(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if state == nil || state.HeadSeq == 0 {
		return nil, nil
	}

	receipts, err := s.GetReceiptsRange(ctx, streamID, 1, state.HeadSeq)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, nil
	}

	hasher := stream.NewStateHasher(streamID)
	for _, r := range receipts {
		hasher.Add(r.ComputeID())
	}
	sum := hasher.Sum()
	return &sum, nil
}

// VerifyConvergence compares local state against a peer's advertised head and
// optional state hash. Equal heads plus equal hashes mean identical receipt
// sets; a head id mismatch at the same seq is fork evidence.
func VerifyConvergence(
	ctx context.Context,
	s store.Store,
	streamID receipt.StreamID,
	remoteHeadSeq uint64,
	remoteHeadReceiptID receipt.ID,
	remoteStateHash *crypto.Hash,
) (ConvergenceResult, error) {
	state, err := s.GetStreamState(ctx, streamID)
	if err != nil {
		return ConvergenceResult{}, err
	}
	if state == nil {
		return ConvergenceResult{Status: NotConverged, Reason: "stream not found locally"}, nil
	}

	if state.HeadSeq != remoteHeadSeq {
		return ConvergenceResult{
			Status: NotConverged,
			Reason: fmt.Sprintf("head_seq mismatch: local=%d remote=%d", state.HeadSeq, remoteHeadSeq),
		}, nil
	}

	if state.HeadReceiptID == nil {
		return ConvergenceResult{Status: NotConverged, Reason: "local head receipt id unknown"}, nil
	}
	if *state.HeadReceiptID != remoteHeadReceiptID {
		return ConvergenceResult{
			Status:          ForkDetected,
			AtSeq:           state.HeadSeq,
			LocalReceiptID:  *state.HeadReceiptID,
			RemoteReceiptID: remoteHeadReceiptID,
		}, nil
	}

	if remoteStateHash != nil {
		localHash, err := ComputeStreamStateHash(ctx, s, streamID)
		if err != nil {
			return ConvergenceResult{}, err
		}
		if localHash == nil {
			return ConvergenceResult{Status: NotConverged, Reason: "could not compute local state hash"}, nil
		}
		if *localHash != *remoteStateHash {
			return ConvergenceResult{Status: NotConverged, Reason: "state hash mismatch"}, nil
		}
	}

	return ConvergenceResult{Status: Converged}, nil
}

// VerifyAllStreams runs VerifyConvergence for a batch of remote heads.
func VerifyAllStreams(
	ctx context.Context,
	s store.Store,
	remoteHeads []StreamHead,
) (map[receipt.StreamID]ConvergenceResult, error) {
	out := make(map[receipt.StreamID]ConvergenceResult, len(remoteHeads))
	for _, h := range remoteHeads {
		result, err := VerifyConvergence(ctx, s, h.StreamID, h.HeadSeq, h.HeadReceiptID, nil)
		if err != nil {
			return nil, err
		}
		out[h.StreamID] = result
	}
	return out, nil
}
