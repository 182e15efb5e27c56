// Package perms expresses access control as receipts. There is no "set
// permission" API anywhere: Grant and Revoke receipts are the only inputs, and
// the queryable state is a cached fold over them that can be rebuilt at any
// time by replaying the permissions stream. The package also carries the
// payload encryption envelope and the key-share construction.
package perms

import (
	"fmt"

	kcbor "github.com/chainge/go-chainge-kernel/cbor"
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

var codec = mustCodec()

func mustCodec() kcbor.CBORCodec {
	c, err := kcbor.NewDeterministic()
	if err != nil {
		panic(fmt.Sprintf("perms codec options rejected: %v", err))
	}
	return c
}

// ScopeKind discriminates permission scopes. Wire values are stable.
type ScopeKind uint8

const (
	// ScopeReadStream grants read access to an entire stream.
	ScopeReadStream ScopeKind = 1
	// ScopeReadReceipt grants read access to a single receipt.
	ScopeReadReceipt ScopeKind = 2
	// ScopeWriteStream grants write access to a stream. Write delegation is
	// not enforced by the kernel in v0; only the author can extend a stream.
	ScopeWriteStream ScopeKind = 3
	// ScopeAdmin grants full control of a stream; implies read and write.
	ScopeAdmin ScopeKind = 4
)

// Scope is what a grant covers. StreamID is set for stream scopes, ReceiptID
// for ScopeReadReceipt.
type Scope struct {
	Kind      ScopeKind
	StreamID  receipt.StreamID
	ReceiptID receipt.ID
}

// ReadStreamScope covers reading every receipt in a stream.
func ReadStreamScope(streamID receipt.StreamID) Scope {
	return Scope{Kind: ScopeReadStream, StreamID: streamID}
}

// ReadReceiptScope covers reading a single receipt.
func ReadReceiptScope(id receipt.ID) Scope {
	return Scope{Kind: ScopeReadReceipt, ReceiptID: id}
}

// WriteStreamScope covers appending to a stream.
func WriteStreamScope(streamID receipt.StreamID) Scope {
	return Scope{Kind: ScopeWriteStream, StreamID: streamID}
}

// AdminScope covers full control of a stream.
func AdminScope(streamID receipt.StreamID) Scope {
	return Scope{Kind: ScopeAdmin, StreamID: streamID}
}

// CanReadStream reports whether the scope alone permits reading streamID.
func (s Scope) CanReadStream(streamID receipt.StreamID) bool {
	switch s.Kind {
	case ScopeReadStream, ScopeAdmin:
		return s.StreamID == streamID
	}
	return false
}

// CanReadReceipt reports whether the scope permits reading a receipt in a
// stream.
func (s Scope) CanReadReceipt(id receipt.ID, streamID receipt.StreamID) bool {
	switch s.Kind {
	case ScopeReadReceipt:
		return s.ReceiptID == id
	case ScopeReadStream, ScopeAdmin:
		return s.StreamID == streamID
	}
	return false
}

// CanWriteStream reports whether the scope permits writing streamID.
func (s Scope) CanWriteStream(streamID receipt.StreamID) bool {
	switch s.Kind {
	case ScopeWriteStream, ScopeAdmin:
		return s.StreamID == streamID
	}
	return false
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeReadStream:
		return fmt.Sprintf("ReadStream(%s)", s.StreamID)
	case ScopeReadReceipt:
		return fmt.Sprintf("ReadReceipt(%s)", s.ReceiptID)
	case ScopeWriteStream:
		return fmt.Sprintf("WriteStream(%s)", s.StreamID)
	case ScopeAdmin:
		return fmt.Sprintf("Admin(%s)", s.StreamID)
	}
	return "Unknown"
}

// Conditions limit a grant. Both fields are optional; absent means unlimited.
type Conditions struct {
	// ExpiresAt is unix milliseconds; the grant is invalid when now > ExpiresAt.
	ExpiresAt *int64
	// MaxUses caps enforcement count; the grant is invalid once uses reach it.
	MaxUses *uint32
}

// ExpiresAt builds a time-limited condition set.
func ExpiresAt(ts int64) *Conditions {
	return &Conditions{ExpiresAt: &ts}
}

// MaxUses builds a use-limited condition set.
func MaxUses(count uint32) *Conditions {
	return &Conditions{MaxUses: &count}
}

// IsValid reports whether the conditions hold at now with the given use count.
// The expiry boundary itself is still valid; one past it is not.
func (c *Conditions) IsValid(now int64, uses uint32) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt != nil && now > *c.ExpiresAt {
		return false
	}
	if c.MaxUses != nil && uses >= *c.MaxUses {
		return false
	}
	return true
}

// GrantPayload is the payload of a Grant receipt. Key material is never
// embedded here; it travels in separate KeyShare receipts so keys can rotate
// without re-granting.
type GrantPayload struct {
	Recipient  crypto.PublicKey
	Scope      Scope
	Conditions *Conditions
}

// RevokePayload is the payload of a Revoke receipt.
type RevokePayload struct {
	GrantReceiptID receipt.ID
	Reason         string
}

// wire shapes

type scopeWire struct {
	Kind      uint8  `cbor:"0,keyasint"`
	StreamID  []byte `cbor:"1,keyasint,omitempty"`
	ReceiptID []byte `cbor:"2,keyasint,omitempty"`
}

type conditionsWire struct {
	ExpiresAt *int64  `cbor:"0,keyasint,omitempty"`
	MaxUses   *uint32 `cbor:"1,keyasint,omitempty"`
}

type grantWire struct {
	Recipient  []byte          `cbor:"0,keyasint"`
	Scope      scopeWire       `cbor:"1,keyasint"`
	Conditions *conditionsWire `cbor:"2,keyasint,omitempty"`
}

type revokeWire struct {
	GrantReceiptID []byte `cbor:"0,keyasint"`
	Reason         string `cbor:"1,keyasint,omitempty"`
}

func (s Scope) toWire() scopeWire {
	w := scopeWire{Kind: uint8(s.Kind)}
	switch s.Kind {
	case ScopeReadReceipt:
		w.ReceiptID = s.ReceiptID.Bytes()
	case ScopeReadStream, ScopeWriteStream, ScopeAdmin:
		w.StreamID = s.StreamID.Bytes()
	}
	return w
}

func scopeFromWire(w scopeWire) (Scope, error) {
	s := Scope{Kind: ScopeKind(w.Kind)}
	switch s.Kind {
	case ScopeReadReceipt:
		id, err := receipt.IDFromBytes(w.ReceiptID)
		if err != nil {
			return Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
		s.ReceiptID = id
	case ScopeReadStream, ScopeWriteStream, ScopeAdmin:
		id, err := receipt.StreamIDFromBytes(w.StreamID)
		if err != nil {
			return Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
		s.StreamID = id
	default:
		return Scope{}, fmt.Errorf("%w: kind %d", ErrInvalidScope, w.Kind)
	}
	return s, nil
}

// Encode serializes the grant payload to CBOR.
func (g *GrantPayload) Encode() ([]byte, error) {
	w := grantWire{
		Recipient: g.Recipient.Bytes(),
		Scope:     g.Scope.toWire(),
	}
	if g.Conditions != nil {
		w.Conditions = &conditionsWire{
			ExpiresAt: g.Conditions.ExpiresAt,
			MaxUses:   g.Conditions.MaxUses,
		}
	}
	b, err := codec.MarshalCBOR(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// DecodeGrantPayload parses a Grant receipt payload.
func DecodeGrantPayload(data []byte) (*GrantPayload, error) {
	var w grantWire
	if err := codec.UnmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	recipient, err := crypto.PublicKeyFromBytes(w.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidGrant, err)
	}
	scope, err := scopeFromWire(w.Scope)
	if err != nil {
		return nil, err
	}
	g := &GrantPayload{Recipient: recipient, Scope: scope}
	if w.Conditions != nil {
		g.Conditions = &Conditions{
			ExpiresAt: w.Conditions.ExpiresAt,
			MaxUses:   w.Conditions.MaxUses,
		}
	}
	return g, nil
}

// Encode serializes the revoke payload to CBOR.
func (r *RevokePayload) Encode() ([]byte, error) {
	w := revokeWire{
		GrantReceiptID: r.GrantReceiptID.Bytes(),
		Reason:         r.Reason,
	}
	b, err := codec.MarshalCBOR(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// DecodeRevokePayload parses a Revoke receipt payload.
func DecodeRevokePayload(data []byte) (*RevokePayload, error) {
	var w revokeWire
	if err := codec.UnmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	id, err := receipt.IDFromBytes(w.GrantReceiptID)
	if err != nil {
		return nil, fmt.Errorf("%w: grant receipt id: %v", ErrInvalidGrant, err)
	}
	return &RevokePayload{GrantReceiptID: id, Reason: w.Reason}, nil
}
