// Package checkpoint produces and verifies signed commitments to stream
// state. A checkpoint binds (stream_id, head_seq, head_receipt_id, state_hash)
// into a COSE_Sign1 message; the signed bytes are carried as the payload of an
// Anchor receipt, so checkpoints travel through sync like any other receipt.
package checkpoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/veraison/go-cose"

	kcbor "github.com/chainge/go-chainge-kernel/cbor"
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

var (
	ErrVerifyFailed = errors.New("checkpoint signature verification failed")
	ErrMalformed    = errors.New("malformed checkpoint")
)

var codec = mustCodec()

func mustCodec() kcbor.CBORCodec {
	c, err := kcbor.NewDeterministic()
	if err != nil {
		panic(fmt.Sprintf("checkpoint codec options rejected: %v", err))
	}
	return c
}

// State is the claim a checkpoint commits to.
type State struct {
	StreamID      receipt.StreamID
	HeadSeq       uint64
	HeadReceiptID receipt.ID
	StateHash     crypto.Hash
	// Timestamp is the unix ms read when the checkpoint was signed. Including
	// it allows the same head to be re-signed.
	Timestamp int64
}

type stateWire struct {
	StreamID      []byte `cbor:"0,keyasint"`
	HeadSeq       uint64 `cbor:"1,keyasint"`
	HeadReceiptID []byte `cbor:"2,keyasint"`
	StateHash     []byte `cbor:"3,keyasint"`
	Timestamp     int64  `cbor:"4,keyasint"`
}

func (s *State) encode() ([]byte, error) {
	return codec.MarshalCBOR(stateWire{
		StreamID:      s.StreamID.Bytes(),
		HeadSeq:       s.HeadSeq,
		HeadReceiptID: s.HeadReceiptID.Bytes(),
		StateHash:     s.StateHash.Bytes(),
		Timestamp:     s.Timestamp,
	})
}

func decodeState(data []byte) (*State, error) {
	var w stateWire
	if err := codec.UnmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	streamID, err := receipt.StreamIDFromBytes(w.StreamID)
	if err != nil {
		return nil, fmt.Errorf("%w: stream id", ErrMalformed)
	}
	headID, err := receipt.IDFromBytes(w.HeadReceiptID)
	if err != nil {
		return nil, fmt.Errorf("%w: head receipt id", ErrMalformed)
	}
	stateHash, err := crypto.HashFromBytes(w.StateHash)
	if err != nil {
		return nil, fmt.Errorf("%w: state hash", ErrMalformed)
	}
	return &State{
		StreamID:      streamID,
		HeadSeq:       w.HeadSeq,
		HeadReceiptID: headID,
		StateHash:     stateHash,
		Timestamp:     w.Timestamp,
	}, nil
}

// Signer signs checkpoints for one identity.
type Signer struct {
	keypair *crypto.Keypair
}

// NewSigner wraps a keypair for checkpoint signing.
func NewSigner(kp *crypto.Keypair) *Signer {
	return &Signer{keypair: kp}
}

// Sign1 encodes the state claim and signs it as COSE_Sign1 with EdDSA. The
// returned bytes are the complete tagged COSE message, suitable as an Anchor
// receipt payload.
func (s *Signer) Sign1(state *State) ([]byte, error) {
	payload, err := state.encode()
	if err != nil {
		return nil, err
	}

	coseSigner, err := cose.NewSigner(cose.AlgorithmEd25519, s.keypair.Signer())
	if err != nil {
		return nil, fmt.Errorf("building cose signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmEd25519
	msg.Headers.Protected[cose.HeaderLabelKeyID] = s.keypair.PublicKey().Bytes()
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, coseSigner); err != nil {
		return nil, fmt.Errorf("signing checkpoint: %w", err)
	}
	return msg.MarshalCBOR()
}

// Verify checks a COSE_Sign1 checkpoint against the expected author key and
// returns the embedded state claim.
func Verify(data []byte, author crypto.PublicKey) (*State, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEd25519, ed25519.PublicKey(author.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("building cose verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	return decodeState(msg.Payload)
}
