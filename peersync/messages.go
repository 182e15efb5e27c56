// Package peersync implements the anti-entropy protocol that converges
// receipt sets between two nodes over an ordered, reliable message channel.
// Every message is cap-bounded to resist adversarial peers, and every ingest
// is idempotent, so sessions can be retried from the beginning after any
// interruption.
package peersync

import (
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	kcbor "github.com/chainge/go-chainge-kernel/cbor"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// ProtocolVersion is the current sync protocol version.
const ProtocolVersion uint8 = 0

// Message size caps.
const (
	MaxStreamsOfInterest = 100
	MaxStreamHeads       = 1000
	MaxReceiptRequests   = 100
	MaxSeqList           = 100
	MaxReceiptsPerMsg    = 50
	MaxAckIDs            = 100
)

// NodeID identifies a node on the sync network.
type NodeID [32]byte

// RandomNodeID draws a node id from the OS RNG.
func RandomNodeID() (NodeID, error) {
	var id NodeID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generating node id: %w", err)
	}
	return id, nil
}

func (n NodeID) String() string {
	return fmt.Sprintf("%x", n[:8])
}

// Message is a sync protocol message.
type Message interface {
	isMessage()
}

// Hello introduces a node. An empty StreamsOfInterest means "all streams the
// peer knows".
type Hello struct {
	NodeID            NodeID
	ProtocolVersion   uint8
	StreamsOfInterest []receipt.StreamID
}

// StreamHeads advertises current heads.
type StreamHeads struct {
	Heads []StreamHead
}

// StreamHead is a single head advertisement.
type StreamHead struct {
	StreamID      receipt.StreamID
	HeadSeq       uint64
	HeadReceiptID receipt.ID
}

// NeedReceipts requests missing data.
type NeedReceipts struct {
	Requests []ReceiptRequest
}

// ReceiptRequest asks for specific sequence numbers of one stream.
type ReceiptRequest struct {
	StreamID receipt.StreamID
	Seqs     SeqRange
}

// Receipts delivers requested receipts.
type Receipts struct {
	Receipts []*receipt.Receipt
}

// Ack acknowledges ingested receipt ids. An empty Ack terminates a Receipts
// exchange.
type Ack struct {
	Received []receipt.ID
}

// ErrorMessage carries a peer-originated error.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
}

func (Hello) isMessage()        {}
func (StreamHeads) isMessage()  {}
func (NeedReceipts) isMessage() {}
func (Receipts) isMessage()     {}
func (Ack) isMessage()          {}
func (ErrorMessage) isMessage() {}

// ErrorCode enumerates peer error conditions.
type ErrorCode uint16

const (
	CodeUnknown         ErrorCode = 0
	CodeVersionMismatch ErrorCode = 1
	CodeMessageTooLarge ErrorCode = 2
	CodeInvalidMessage  ErrorCode = 3
	CodeRateLimited     ErrorCode = 4
	CodeStreamNotFound  ErrorCode = 5
	CodeInternalError   ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case CodeVersionMismatch:
		return "VersionMismatch"
	case CodeMessageTooLarge:
		return "MessageTooLarge"
	case CodeInvalidMessage:
		return "InvalidMessage"
	case CodeRateLimited:
		return "RateLimited"
	case CodeStreamNotFound:
		return "StreamNotFound"
	case CodeInternalError:
		return "InternalError"
	}
	return "Unknown"
}

// SeqRangeKind discriminates SeqRange.
type SeqRangeKind uint8

const (
	// SeqSingle names one sequence number.
	SeqSingle SeqRangeKind = 1
	// SeqSpan is a contiguous inclusive range.
	SeqSpan SeqRangeKind = 2
	// SeqList is an explicit list, capped at MaxSeqList entries.
	SeqList SeqRangeKind = 3
)

// SeqRange specifies which sequence numbers a request covers.
type SeqRange struct {
	Kind  SeqRangeKind
	Seq   uint64
	Start uint64
	End   uint64
	List  []uint64
}

// Single requests one seq.
func Single(seq uint64) SeqRange {
	return SeqRange{Kind: SeqSingle, Seq: seq}
}

// Span requests the inclusive range [start, end].
func Span(start, end uint64) SeqRange {
	return SeqRange{Kind: SeqSpan, Start: start, End: end}
}

// List requests an explicit seq list.
func List(seqs []uint64) SeqRange {
	return SeqRange{Kind: SeqList, List: seqs}
}

// Expand returns the sequence numbers the range covers, in order.
func (r SeqRange) Expand() []uint64 {
	switch r.Kind {
	case SeqSingle:
		return []uint64{r.Seq}
	case SeqSpan:
		if r.End < r.Start {
			return nil
		}
		out := make([]uint64, 0, r.End-r.Start+1)
		for seq := r.Start; seq <= r.End; seq++ {
			out = append(out, seq)
		}
		return out
	case SeqList:
		return r.List
	}
	return nil
}

// Count reports how many sequence numbers the range covers.
func (r SeqRange) Count() int {
	switch r.Kind {
	case SeqSingle:
		return 1
	case SeqSpan:
		if r.End < r.Start {
			return 0
		}
		return int(r.End - r.Start + 1)
	case SeqList:
		return len(r.List)
	}
	return 0
}

// ValidateLimits checks a message against the protocol caps.
func ValidateLimits(m Message) error {
	switch msg := m.(type) {
	case Hello:
		if len(msg.StreamsOfInterest) > MaxStreamsOfInterest {
			return fmt.Errorf("%w: %d streams of interest", ErrMessageTooLarge, len(msg.StreamsOfInterest))
		}
	case StreamHeads:
		if len(msg.Heads) > MaxStreamHeads {
			return fmt.Errorf("%w: %d stream heads", ErrMessageTooLarge, len(msg.Heads))
		}
	case NeedReceipts:
		if len(msg.Requests) > MaxReceiptRequests {
			return fmt.Errorf("%w: %d receipt requests", ErrMessageTooLarge, len(msg.Requests))
		}
		for _, req := range msg.Requests {
			if req.Seqs.Kind == SeqList && len(req.Seqs.List) > MaxSeqList {
				return fmt.Errorf("%w: %d seqs in list", ErrMessageTooLarge, len(req.Seqs.List))
			}
		}
	case Receipts:
		if len(msg.Receipts) > MaxReceiptsPerMsg {
			return fmt.Errorf("%w: %d receipts", ErrMessageTooLarge, len(msg.Receipts))
		}
	case Ack:
		if len(msg.Received) > MaxAckIDs {
			return fmt.Errorf("%w: %d ack ids", ErrMessageTooLarge, len(msg.Received))
		}
	}
	return nil
}

// Wire framing. Messages travel as {0: type, 1: body} where the body is the
// canonical CBOR of a per-type wire struct and receipts travel as their
// canonical bytes.

var codec = mustCodec()

func mustCodec() kcbor.CBORCodec {
	c, err := kcbor.NewDeterministic()
	if err != nil {
		panic(fmt.Sprintf("sync codec options rejected: %v", err))
	}
	return c
}

type msgType uint8

const (
	typeHello        msgType = 1
	typeStreamHeads  msgType = 2
	typeNeedReceipts msgType = 3
	typeReceipts     msgType = 4
	typeAck          msgType = 5
	typeError        msgType = 6
)

type frameWire struct {
	Type uint8           `cbor:"0,keyasint"`
	Body cbor.RawMessage `cbor:"1,keyasint"`
}

type helloWire struct {
	NodeID            []byte   `cbor:"0,keyasint"`
	ProtocolVersion   uint8    `cbor:"1,keyasint"`
	StreamsOfInterest [][]byte `cbor:"2,keyasint"`
}

type streamHeadWire struct {
	StreamID      []byte `cbor:"0,keyasint"`
	HeadSeq       uint64 `cbor:"1,keyasint"`
	HeadReceiptID []byte `cbor:"2,keyasint"`
}

type streamHeadsWire struct {
	Heads []streamHeadWire `cbor:"0,keyasint"`
}

type seqRangeWire struct {
	Kind  uint8    `cbor:"0,keyasint"`
	Seq   uint64   `cbor:"1,keyasint,omitempty"`
	Start uint64   `cbor:"2,keyasint,omitempty"`
	End   uint64   `cbor:"3,keyasint,omitempty"`
	List  []uint64 `cbor:"4,keyasint,omitempty"`
}

type receiptRequestWire struct {
	StreamID []byte       `cbor:"0,keyasint"`
	Seqs     seqRangeWire `cbor:"1,keyasint"`
}

type needReceiptsWire struct {
	Requests []receiptRequestWire `cbor:"0,keyasint"`
}

type receiptsWire struct {
	Receipts [][]byte `cbor:"0,keyasint"`
}

type ackWire struct {
	Received [][]byte `cbor:"0,keyasint"`
}

type errorWire struct {
	Code    uint16 `cbor:"0,keyasint"`
	Message string `cbor:"1,keyasint"`
}

// EncodeMessage frames a message for the transport.
func EncodeMessage(m Message) ([]byte, error) {
	var (
		t    msgType
		body any
	)
	switch msg := m.(type) {
	case Hello:
		t = typeHello
		streams := make([][]byte, 0, len(msg.StreamsOfInterest))
		for _, s := range msg.StreamsOfInterest {
			streams = append(streams, s.Bytes())
		}
		body = helloWire{
			NodeID:            msg.NodeID[:],
			ProtocolVersion:   msg.ProtocolVersion,
			StreamsOfInterest: streams,
		}
	case StreamHeads:
		t = typeStreamHeads
		heads := make([]streamHeadWire, 0, len(msg.Heads))
		for _, h := range msg.Heads {
			heads = append(heads, streamHeadWire{
				StreamID:      h.StreamID.Bytes(),
				HeadSeq:       h.HeadSeq,
				HeadReceiptID: h.HeadReceiptID.Bytes(),
			})
		}
		body = streamHeadsWire{Heads: heads}
	case NeedReceipts:
		t = typeNeedReceipts
		reqs := make([]receiptRequestWire, 0, len(msg.Requests))
		for _, r := range msg.Requests {
			reqs = append(reqs, receiptRequestWire{
				StreamID: r.StreamID.Bytes(),
				Seqs: seqRangeWire{
					Kind:  uint8(r.Seqs.Kind),
					Seq:   r.Seqs.Seq,
					Start: r.Seqs.Start,
					End:   r.Seqs.End,
					List:  r.Seqs.List,
				},
			})
		}
		body = needReceiptsWire{Requests: reqs}
	case Receipts:
		t = typeReceipts
		encoded := make([][]byte, 0, len(msg.Receipts))
		for _, r := range msg.Receipts {
			b, err := receipt.EncodeReceipt(r)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, b)
		}
		body = receiptsWire{Receipts: encoded}
	case Ack:
		t = typeAck
		ids := make([][]byte, 0, len(msg.Received))
		for _, id := range msg.Received {
			ids = append(ids, id.Bytes())
		}
		body = ackWire{Received: ids}
	case ErrorMessage:
		t = typeError
		body = errorWire{Code: uint16(msg.Code), Message: msg.Message}
	default:
		return nil, fmt.Errorf("%w: unknown message type %T", ErrInvalidMessage, m)
	}

	bodyBytes, err := codec.MarshalCBOR(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	frame, err := codec.MarshalCBOR(frameWire{Type: uint8(t), Body: bodyBytes})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return frame, nil
}

// DecodeMessage parses a framed message.
func DecodeMessage(data []byte) (Message, error) {
	var frame frameWire
	if err := codec.UnmarshalCBOR(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: frame: %v", ErrInvalidMessage, err)
	}

	switch msgType(frame.Type) {
	case typeHello:
		var w helloWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: hello: %v", ErrInvalidMessage, err)
		}
		var nodeID NodeID
		if len(w.NodeID) != len(nodeID) {
			return nil, fmt.Errorf("%w: node id length %d", ErrInvalidMessage, len(w.NodeID))
		}
		copy(nodeID[:], w.NodeID)
		streams := make([]receipt.StreamID, 0, len(w.StreamsOfInterest))
		for _, b := range w.StreamsOfInterest {
			s, err := receipt.StreamIDFromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("%w: stream of interest: %v", ErrInvalidMessage, err)
			}
			streams = append(streams, s)
		}
		return Hello{NodeID: nodeID, ProtocolVersion: w.ProtocolVersion, StreamsOfInterest: streams}, nil

	case typeStreamHeads:
		var w streamHeadsWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: stream heads: %v", ErrInvalidMessage, err)
		}
		heads := make([]StreamHead, 0, len(w.Heads))
		for _, hw := range w.Heads {
			streamID, err := receipt.StreamIDFromBytes(hw.StreamID)
			if err != nil {
				return nil, fmt.Errorf("%w: head stream id: %v", ErrInvalidMessage, err)
			}
			headID, err := receipt.IDFromBytes(hw.HeadReceiptID)
			if err != nil {
				return nil, fmt.Errorf("%w: head receipt id: %v", ErrInvalidMessage, err)
			}
			heads = append(heads, StreamHead{StreamID: streamID, HeadSeq: hw.HeadSeq, HeadReceiptID: headID})
		}
		return StreamHeads{Heads: heads}, nil

	case typeNeedReceipts:
		var w needReceiptsWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: need receipts: %v", ErrInvalidMessage, err)
		}
		reqs := make([]ReceiptRequest, 0, len(w.Requests))
		for _, rw := range w.Requests {
			streamID, err := receipt.StreamIDFromBytes(rw.StreamID)
			if err != nil {
				return nil, fmt.Errorf("%w: request stream id: %v", ErrInvalidMessage, err)
			}
			reqs = append(reqs, ReceiptRequest{
				StreamID: streamID,
				Seqs: SeqRange{
					Kind:  SeqRangeKind(rw.Seqs.Kind),
					Seq:   rw.Seqs.Seq,
					Start: rw.Seqs.Start,
					End:   rw.Seqs.End,
					List:  rw.Seqs.List,
				},
			})
		}
		return NeedReceipts{Requests: reqs}, nil

	case typeReceipts:
		var w receiptsWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: receipts: %v", ErrInvalidMessage, err)
		}
		receipts := make([]*receipt.Receipt, 0, len(w.Receipts))
		for _, b := range w.Receipts {
			r, err := receipt.DecodeReceipt(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
			}
			receipts = append(receipts, r)
		}
		return Receipts{Receipts: receipts}, nil

	case typeAck:
		var w ackWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: ack: %v", ErrInvalidMessage, err)
		}
		ids := make([]receipt.ID, 0, len(w.Received))
		for _, b := range w.Received {
			id, err := receipt.IDFromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("%w: ack id: %v", ErrInvalidMessage, err)
			}
			ids = append(ids, id)
		}
		return Ack{Received: ids}, nil

	case typeError:
		var w errorWire
		if err := codec.UnmarshalCBOR(frame.Body, &w); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrInvalidMessage, err)
		}
		return ErrorMessage{Code: ErrorCode(w.Code), Message: w.Message}, nil
	}

	return nil, fmt.Errorf("%w: unknown frame type %d", ErrInvalidMessage, frame.Type)
}
