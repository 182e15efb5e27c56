package peersync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chainge/go-chainge-kernel/logger"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
)

// Config tunes session behavior.
type Config struct {
	// MessageTimeout bounds every individual recv. A timeout on the terminal
	// Receipts/Ack wait means "peer is done"; a timeout on an earlier phase is
	// an error.
	MessageTimeout time.Duration

	// MaxBatchSize caps receipts per outgoing Receipts message and requests
	// per NeedReceipts message. Clamped to the protocol caps.
	MaxBatchSize int

	// ValidateReceipts toggles full validation of incoming receipts.
	ValidateReceipts bool

	// Now supplies local time in unix ms.
	Now func() int64
}

// DefaultConfig mirrors the protocol's standard tuning.
func DefaultConfig() Config {
	return Config{
		MessageTimeout:   30 * time.Second,
		MaxBatchSize:     MaxReceiptsPerMsg,
		ValidateReceipts: true,
		Now:              func() int64 { return time.Now().UnixMilli() },
	}
}

// Report summarizes a completed session.
type Report struct {
	// SessionID labels the session in logs.
	SessionID string

	SentCount      int
	ReceivedCount  int
	DuplicateCount int
	InvalidCount   int

	// StreamsSynced holds every stream a received receipt belonged to.
	StreamsSynced map[receipt.StreamID]struct{}

	Success bool
	Err     string
}

// Session drives one anti-entropy exchange with a peer. Sessions are
// single-use; retries build a new session, which is safe because every ingest
// is idempotent.
type Session struct {
	store     store.Store
	transport Transport
	ingestor  Ingestor
	cfg       Config
	log       logger.Logger

	interest  []receipt.StreamID
	peerID    *NodeID
	peerHeads map[receipt.StreamID]StreamHead
}

// NewSession builds a session over a store and transport. The default ingest
// pipeline is used unless WithIngestor overrides it.
func NewSession(s store.Store, t Transport, cfg Config, log logger.Logger) *Session {
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = DefaultConfig().MessageTimeout
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > MaxReceiptsPerMsg {
		cfg.MaxBatchSize = MaxReceiptsPerMsg
	}
	if cfg.Now == nil {
		cfg.Now = DefaultConfig().Now
	}
	if log == nil {
		log = logger.Nop()
	}
	ingestor := NewStoreIngestor(s, cfg.Now)
	ingestor.Validate = cfg.ValidateReceipts
	return &Session{
		store:     s,
		transport: t,
		ingestor:  ingestor,
		cfg:       cfg,
		log:       log,
		peerHeads: make(map[receipt.StreamID]StreamHead),
	}
}

// WithStreams restricts the session to specific streams. Empty means all.
func (s *Session) WithStreams(streams []receipt.StreamID) *Session {
	s.interest = streams
	return s
}

// WithIngestor replaces the ingest pipeline (the kernel injects itself here so
// permission replay sees synced receipts).
func (s *Session) WithIngestor(ing Ingestor) *Session {
	s.ingestor = ing
	return s
}

// SyncWith runs the full protocol against peer. Partial state from a failed
// session is retained; ingest is crash-safe.
func (s *Session) SyncWith(ctx context.Context, peer NodeID) (*Report, error) {
	report := &Report{
		SessionID:     uuid.NewString(),
		StreamsSynced: make(map[receipt.StreamID]struct{}),
	}

	err := s.run(ctx, peer, report)
	if err != nil {
		report.Err = err.Error()
		return report, err
	}
	report.Success = true
	s.log.Infof("sync %s with %s done: sent=%d received=%d duplicate=%d invalid=%d",
		report.SessionID, peer, report.SentCount, report.ReceivedCount, report.DuplicateCount, report.InvalidCount)
	return report, nil
}

func (s *Session) run(ctx context.Context, peer NodeID, report *Report) error {
	// Phase 1: hello exchange.
	if err := s.sendHello(ctx, peer); err != nil {
		return err
	}
	if err := s.receiveHello(ctx, peer); err != nil {
		return err
	}

	// Phase 2: heads exchange.
	if err := s.sendStreamHeads(ctx, peer); err != nil {
		return err
	}
	if err := s.receiveStreamHeads(ctx); err != nil {
		return err
	}

	// Phase 3: compute needs.
	needs, err := s.computeNeeds(ctx)
	if err != nil {
		return err
	}

	if len(needs) > 0 {
		// Phase 4: request.
		if err := s.requestReceipts(ctx, peer, needs); err != nil {
			return err
		}

		// Phase 5: receive and ingest.
		received, err := s.receiveReceipts(ctx, report)
		if err != nil {
			return err
		}

		// Phase 6: ack what we accepted.
		if err := s.sendAck(ctx, peer, received); err != nil {
			return err
		}
	}

	// Phase 7: serve the peer's requests symmetrically.
	return s.servePeer(ctx, peer, report)
}

func (s *Session) sendHello(ctx context.Context, peer NodeID) error {
	return s.send(ctx, peer, Hello{
		NodeID:            s.transport.LocalNodeID(),
		ProtocolVersion:   ProtocolVersion,
		StreamsOfInterest: s.interest,
	})
}

func (s *Session) receiveHello(ctx context.Context, peer NodeID) error {
	from, m, ok, err := s.transport.RecvTimeout(ctx, s.cfg.MessageTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: waiting for Hello", ErrTimeout)
	}

	switch msg := m.(type) {
	case Hello:
		if from != peer {
			return fmt.Errorf("%w: Hello from unexpected peer %s", ErrInvalidMessage, from)
		}
		if msg.ProtocolVersion != ProtocolVersion {
			_ = s.send(ctx, peer, ErrorMessage{
				Code:    CodeVersionMismatch,
				Message: fmt.Sprintf("local version %d", ProtocolVersion),
			})
			return fmt.Errorf("%w: local=%d peer=%d", ErrVersionMismatch, ProtocolVersion, msg.ProtocolVersion)
		}
		id := msg.NodeID
		s.peerID = &id
		return nil
	case ErrorMessage:
		return fmt.Errorf("%w: %s: %s", ErrPeer, msg.Code, msg.Message)
	default:
		return fmt.Errorf("%w: expected Hello, got %T", ErrInvalidMessage, m)
	}
}

func (s *Session) sendStreamHeads(ctx context.Context, peer NodeID) error {
	allHeads, err := s.store.GetAllStreamHeads(ctx)
	if err != nil {
		return err
	}

	heads := make([]StreamHead, 0, len(allHeads))
	for _, h := range allHeads {
		if !s.interested(h.StreamID) {
			continue
		}
		heads = append(heads, StreamHead{
			StreamID:      h.StreamID,
			HeadSeq:       h.HeadSeq,
			HeadReceiptID: h.HeadReceiptID,
		})
	}
	return s.send(ctx, peer, StreamHeads{Heads: heads})
}

func (s *Session) interested(streamID receipt.StreamID) bool {
	if len(s.interest) == 0 {
		return true
	}
	for _, want := range s.interest {
		if want == streamID {
			return true
		}
	}
	return false
}

func (s *Session) receiveStreamHeads(ctx context.Context) error {
	for {
		_, m, ok, err := s.transport.RecvTimeout(ctx, s.cfg.MessageTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: waiting for StreamHeads", ErrTimeout)
		}

		switch msg := m.(type) {
		case StreamHeads:
			for _, h := range msg.Heads {
				s.peerHeads[h.StreamID] = h
			}
			return nil
		case ErrorMessage:
			return fmt.Errorf("%w: %s: %s", ErrPeer, msg.Code, msg.Message)
		case Hello:
			// Duplicate hello from a racing peer session; ignore.
			continue
		default:
			return fmt.Errorf("%w: expected StreamHeads, got %T", ErrInvalidMessage, m)
		}
	}
}

// computeNeeds works out what to request: the range past our head for every
// stream the peer is ahead on, plus our known gaps.
func (s *Session) computeNeeds(ctx context.Context) ([]ReceiptRequest, error) {
	var requests []ReceiptRequest

	for streamID, peerHead := range s.peerHeads {
		var ourHeadSeq uint64
		state, err := s.store.GetStreamState(ctx, streamID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			ourHeadSeq = state.HeadSeq
		}

		if peerHead.HeadSeq > ourHeadSeq {
			requests = append(requests, ReceiptRequest{
				StreamID: streamID,
				Seqs:     Span(ourHeadSeq+1, peerHead.HeadSeq),
			})
		}

		gaps, err := s.store.GetGaps(ctx, streamID)
		if err != nil {
			return nil, err
		}
		now := s.cfg.Now()
		for len(gaps) > 0 {
			chunk := gaps
			if len(chunk) > MaxSeqList {
				chunk = gaps[:MaxSeqList]
			}
			requests = append(requests, ReceiptRequest{
				StreamID: streamID,
				Seqs:     List(chunk),
			})
			for _, seq := range chunk {
				if err := s.store.MarkGapRequested(ctx, streamID, seq, now); err != nil {
					return nil, err
				}
			}
			gaps = gaps[len(chunk):]
		}
	}

	return requests, nil
}

func (s *Session) requestReceipts(ctx context.Context, peer NodeID, requests []ReceiptRequest) error {
	chunkSize := s.cfg.MaxBatchSize
	if chunkSize > MaxReceiptRequests {
		chunkSize = MaxReceiptRequests
	}
	for start := 0; start < len(requests); start += chunkSize {
		end := start + chunkSize
		if end > len(requests) {
			end = len(requests)
		}
		if err := s.send(ctx, peer, NeedReceipts{Requests: requests[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// receiveReceipts ingests Receipts messages until an Ack or a timeout signals
// the peer is done. Invalid receipts are counted and dropped, never fatal.
func (s *Session) receiveReceipts(ctx context.Context, report *Report) ([]receipt.ID, error) {
	var received []receipt.ID

	for {
		_, m, ok, err := s.transport.RecvTimeout(ctx, s.cfg.MessageTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Peer is done.
			return received, nil
		}

		switch msg := m.(type) {
		case Receipts:
			for _, r := range msg.Receipts {
				res, err := s.ingestor.Ingest(ctx, r)
				if err != nil {
					report.InvalidCount++
					s.log.Warnf("invalid receipt from peer: %v", err)
					continue
				}
				switch res.Outcome {
				case IngestAccepted:
					received = append(received, res.ID)
					report.ReceivedCount++
					report.StreamsSynced[r.StreamID()] = struct{}{}
				case IngestDuplicate:
					report.DuplicateCount++
				case IngestConflict:
					report.DuplicateCount++
					s.log.Warnf("fork detected at stream %s seq %d: existing=%s incoming=%s",
						r.StreamID(), r.Seq(), res.Existing, res.ID)
				}
			}
		case Ack:
			return received, nil
		case ErrorMessage:
			return nil, fmt.Errorf("%w: %s: %s", ErrPeer, msg.Code, msg.Message)
		default:
			// Other phases' traffic; ignore while receiving.
		}
	}
}

func (s *Session) sendAck(ctx context.Context, peer NodeID, received []receipt.ID) error {
	for {
		chunk := received
		if len(chunk) > MaxAckIDs {
			chunk = received[:MaxAckIDs]
		}
		if err := s.send(ctx, peer, Ack{Received: chunk}); err != nil {
			return err
		}
		received = received[len(chunk):]
		if len(received) == 0 {
			return nil
		}
	}
}

// servePeer answers the peer's NeedReceipts symmetrically, streaming batches
// from the position index and terminating each response with an empty Ack.
func (s *Session) servePeer(ctx context.Context, peer NodeID, report *Report) error {
	for {
		_, m, ok, err := s.transport.RecvTimeout(ctx, s.cfg.MessageTimeout)
		if err != nil {
			return err
		}
		if !ok {
			// Peer is done.
			return nil
		}

		switch msg := m.(type) {
		case NeedReceipts:
			if err := s.serveRequests(ctx, peer, msg.Requests, report); err != nil {
				return err
			}
		case Ack:
			// Peer finished its receive side.
			return nil
		case ErrorMessage:
			return fmt.Errorf("%w: %s: %s", ErrPeer, msg.Code, msg.Message)
		default:
			// Ignore stragglers from earlier phases.
		}
	}
}

func (s *Session) serveRequests(ctx context.Context, peer NodeID, requests []ReceiptRequest, report *Report) error {
	var batch []*receipt.Receipt

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.send(ctx, peer, Receipts{Receipts: batch}); err != nil {
			return err
		}
		batch = nil
		return nil
	}

	for _, request := range requests {
		for _, seq := range request.Seqs.Expand() {
			r, err := s.store.GetReceiptByPosition(ctx, request.StreamID, seq)
			if err != nil {
				return err
			}
			if r == nil {
				continue
			}
			batch = append(batch, r)
			report.SentCount++
			if len(batch) >= s.cfg.MaxBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	// Signal end of this response.
	return s.send(ctx, peer, Ack{})
}

func (s *Session) send(ctx context.Context, peer NodeID, m Message) error {
	if err := ValidateLimits(m); err != nil {
		return err
	}
	return s.transport.Send(ctx, peer, m)
}
