package perms

import (
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// GrantState is the folded state of a single grant.
type GrantState struct {
	GrantReceiptID receipt.ID
	Grantor        crypto.PublicKey
	Recipient      crypto.PublicKey
	Scope          Scope
	GrantedAtSeq   uint64
	Conditions     *Conditions

	Revoked         bool
	RevokedAtSeq    uint64
	RevokeReceiptID receipt.ID

	UseCount uint32
}

// IsValid reports whether the grant holds at now. Revocation is sticky and
// dominates conditions.
func (g *GrantState) IsValid(now int64) bool {
	if g.Revoked {
		return false
	}
	return g.Conditions.IsValid(now, g.UseCount)
}

// scopeKey indexes grants by (recipient, scope) for point lookups. Exactly one
// of the id fields is meaningful per kind.
type scopeKey struct {
	kind      ScopeKind
	streamID  receipt.StreamID
	receiptID receipt.ID
}

func keyForScope(s Scope) scopeKey {
	k := scopeKey{kind: s.Kind}
	switch s.Kind {
	case ScopeReadReceipt:
		k.receiptID = s.ReceiptID
	default:
		k.streamID = s.StreamID
	}
	return k
}

type recipientScope struct {
	recipient crypto.PublicKey
	scope     scopeKey
}

// State is the queryable permission projection, built by folding Grant and
// Revoke receipts in seq order. It is a derived cache: throw it away and
// replay the permissions stream to rebuild it.
type State struct {
	grants      map[receipt.ID]*GrantState
	byRecipient map[crypto.PublicKey][]receipt.ID
	byScope     map[recipientScope]receipt.ID
}

// NewState creates an empty permission state.
func NewState() *State {
	return &State{
		grants:      make(map[receipt.ID]*GrantState),
		byRecipient: make(map[crypto.PublicKey][]receipt.ID),
		byScope:     make(map[recipientScope]receipt.ID),
	}
}

// ApplyGrant folds a Grant into the state.
func (s *State) ApplyGrant(grantID receipt.ID, grantor crypto.PublicKey, seq uint64, payload *GrantPayload) {
	g := &GrantState{
		GrantReceiptID: grantID,
		Grantor:        grantor,
		Recipient:      payload.Recipient,
		Scope:          payload.Scope,
		GrantedAtSeq:   seq,
		Conditions:     payload.Conditions,
	}
	s.grants[grantID] = g
	s.byRecipient[payload.Recipient] = append(s.byRecipient[payload.Recipient], grantID)
	s.byScope[recipientScope{recipient: payload.Recipient, scope: keyForScope(payload.Scope)}] = grantID
}

// ApplyRevoke folds a Revoke into the state. A revoke naming an unknown grant
// is a no-op; the grant may arrive later on another sync round, at which point
// a replay makes the revoke land.
func (s *State) ApplyRevoke(revokeID receipt.ID, seq uint64, payload *RevokePayload) {
	g, ok := s.grants[payload.GrantReceiptID]
	if !ok {
		return
	}
	g.Revoked = true
	g.RevokedAtSeq = seq
	g.RevokeReceiptID = revokeID
}

// ApplyReceipt folds any receipt: Grants and Revokes mutate the state, every
// other kind is a no-op.
func (s *State) ApplyReceipt(r *receipt.Receipt) error {
	switch r.Kind() {
	case receipt.KindGrant:
		payload, err := DecodeGrantPayload(r.Payload)
		if err != nil {
			return err
		}
		s.ApplyGrant(r.ComputeID(), r.Author(), r.Seq(), payload)
	case receipt.KindRevoke:
		payload, err := DecodeRevokePayload(r.Payload)
		if err != nil {
			return err
		}
		s.ApplyRevoke(r.ComputeID(), r.Seq(), payload)
	}
	return nil
}

func (s *State) validGrantAt(recipient crypto.PublicKey, key scopeKey, now int64) bool {
	grantID, ok := s.byScope[recipientScope{recipient: recipient, scope: key}]
	if !ok {
		return false
	}
	g, ok := s.grants[grantID]
	return ok && g.IsValid(now)
}

// CanReadStream reports whether principal holds a live ReadStream or Admin
// grant for the stream at now.
func (s *State) CanReadStream(principal crypto.PublicKey, streamID receipt.StreamID, now int64) bool {
	if s.validGrantAt(principal, scopeKey{kind: ScopeReadStream, streamID: streamID}, now) {
		return true
	}
	return s.validGrantAt(principal, scopeKey{kind: ScopeAdmin, streamID: streamID}, now)
}

// CanReadReceipt reports whether principal may read a specific receipt:
// stream-level read, or a targeted ReadReceipt grant.
func (s *State) CanReadReceipt(principal crypto.PublicKey, id receipt.ID, streamID receipt.StreamID, now int64) bool {
	if s.CanReadStream(principal, streamID, now) {
		return true
	}
	return s.validGrantAt(principal, scopeKey{kind: ScopeReadReceipt, receiptID: id}, now)
}

// CanWriteStream reports whether principal holds a live WriteStream or Admin
// grant for the stream at now.
func (s *State) CanWriteStream(principal crypto.PublicKey, streamID receipt.StreamID, now int64) bool {
	if s.validGrantAt(principal, scopeKey{kind: ScopeWriteStream, streamID: streamID}, now) {
		return true
	}
	return s.validGrantAt(principal, scopeKey{kind: ScopeAdmin, streamID: streamID}, now)
}

// RecordUse increments a grant's use count, exactly once per enforcement. The
// caller checks validity first; RecordUse reports the errors for callers that
// fold check-and-use into one step.
func (s *State) RecordUse(grantID receipt.ID, now int64) error {
	g, ok := s.grants[grantID]
	if !ok {
		return ErrGrantNotFound
	}
	if g.Revoked {
		return ErrGrantRevoked
	}
	if g.Conditions != nil {
		if g.Conditions.ExpiresAt != nil && now > *g.Conditions.ExpiresAt {
			return ErrGrantExpired
		}
		if g.Conditions.MaxUses != nil && g.UseCount >= *g.Conditions.MaxUses {
			return ErrGrantExhausted
		}
	}
	g.UseCount++
	return nil
}

// GetGrant looks up a grant by id.
func (s *State) GetGrant(grantID receipt.ID) (*GrantState, bool) {
	g, ok := s.grants[grantID]
	return g, ok
}

// GrantsFor lists all grants for a recipient, in application order.
func (s *State) GrantsFor(recipient crypto.PublicKey) []*GrantState {
	ids := s.byRecipient[recipient]
	out := make([]*GrantState, 0, len(ids))
	for _, id := range ids {
		if g, ok := s.grants[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// ValidGrantsFor lists grants for a recipient that hold at now.
func (s *State) ValidGrantsFor(recipient crypto.PublicKey, now int64) []*GrantState {
	var out []*GrantState
	for _, g := range s.GrantsFor(recipient) {
		if g.IsValid(now) {
			out = append(out, g)
		}
	}
	return out
}
