// Package kernel is the unified entry point: it owns an identity keypair,
// drives the ingest pipeline, serializes writes per stream, and brings
// storage, sync, permissions and checkpoints together behind one API.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainge/go-chainge-kernel/checkpoint"
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/logger"
	"github.com/chainge/go-chainge-kernel/peersync"
	"github.com/chainge/go-chainge-kernel/perms"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/store"
	"github.com/chainge/go-chainge-kernel/stream"
)

// Clock supplies local time in unix milliseconds. The kernel owns no global
// clock; tests inject fixed clocks.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 { return time.Now().UnixMilli() }

// Config tunes kernel behavior.
type Config struct {
	// ValidateOnIngest toggles full validation of externally sourced receipts.
	ValidateOnIngest bool
	// Sync configures sync sessions started by this kernel.
	Sync peersync.Config
	// Clock supplies local observation time.
	Clock Clock
	// Log receives kernel diagnostics.
	Log logger.Logger
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		ValidateOnIngest: true,
		Sync:             peersync.DefaultConfig(),
		Clock:            SystemClock,
		Log:              logger.Nop(),
	}
}

// Kernel is one node's verifiable-memory engine.
type Kernel struct {
	keypair *crypto.Keypair
	store   store.Store
	cfg     Config
	log     logger.Logger

	ingestor *peersync.StoreIngestor

	// streamMu serializes writes per stream. Ingest across streams is
	// independent and may interleave freely.
	streamMu sync.Mutex
	locks    map[receipt.StreamID]*sync.Mutex

	permsMu     sync.Mutex
	permissions *perms.State
}

// New builds a kernel over a keypair and store.
func New(kp *crypto.Keypair, s store.Store, cfg Config) *Kernel {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.Sync.Now == nil {
		cfg.Sync.Now = cfg.Clock
	}
	ingestor := peersync.NewStoreIngestor(s, func() int64 { return cfg.Clock() })
	ingestor.Validate = cfg.ValidateOnIngest
	return &Kernel{
		keypair:     kp,
		store:       s,
		cfg:         cfg,
		log:         cfg.Log,
		ingestor:    ingestor,
		locks:       make(map[receipt.StreamID]*sync.Mutex),
		permissions: perms.NewState(),
	}
}

// PublicKey returns the kernel's identity.
func (k *Kernel) PublicKey() crypto.PublicKey {
	return k.keypair.PublicKey()
}

// Store exposes the underlying storage for read paths.
func (k *Kernel) Store() store.Store {
	return k.store
}

func (k *Kernel) lockStream(streamID receipt.StreamID) func() {
	k.streamMu.Lock()
	mu, ok := k.locks[streamID]
	if !ok {
		mu = &sync.Mutex{}
		k.locks[streamID] = mu
	}
	k.streamMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// CreateStream opens a new stream owned by this kernel's keypair and ingests
// its StreamInit receipt.
func (k *Kernel) CreateStream(ctx context.Context, name string, payload []byte) (receipt.StreamID, receipt.ID, error) {
	streamID := receipt.DeriveStreamID(k.keypair.PublicKey(), name)

	unlock := k.lockStream(streamID)
	defer unlock()

	state, err := k.store.GetStreamState(ctx, streamID)
	if err != nil {
		return streamID, receipt.ZeroID, err
	}
	if state != nil && state.HeadSeq > 0 {
		return streamID, receipt.ZeroID, fmt.Errorf("%w: %s", ErrStreamExists, streamID)
	}

	r, err := receipt.NewBuilder(k.keypair.PublicKey(), streamID, 1).
		Kind(receipt.KindStreamInit).
		Timestamp(k.cfg.Clock()).
		Payload(payload).
		Sign(k.keypair)
	if err != nil {
		return streamID, receipt.ZeroID, err
	}

	id, err := k.ingestLocalLocked(ctx, r)
	if err != nil {
		return streamID, receipt.ZeroID, err
	}

	// Remember the name; it is derivable only with name knowledge, so the
	// creator records it while it can.
	if err := k.rememberStreamName(ctx, streamID, name); err != nil {
		return streamID, receipt.ZeroID, err
	}

	return streamID, id, nil
}

func (k *Kernel) rememberStreamName(ctx context.Context, streamID receipt.StreamID, name string) error {
	state, err := k.store.GetStreamState(ctx, streamID)
	if err != nil || state == nil {
		return err
	}
	if state.StreamName == "" {
		state.StreamName = name
		return k.store.UpsertStreamState(ctx, state)
	}
	return nil
}

// Append extends a stream this kernel owns with a new receipt.
func (k *Kernel) Append(ctx context.Context, streamID receipt.StreamID, kind receipt.Kind, payload []byte) (receipt.ID, error) {
	return k.appendWith(ctx, streamID, kind, payload, nil)
}

// Tombstone appends a tombstone naming target as superseded.
func (k *Kernel) Tombstone(ctx context.Context, streamID receipt.StreamID, target receipt.ID) (receipt.ID, error) {
	return k.appendWith(ctx, streamID, receipt.KindTombstone, nil, []receipt.ID{target})
}

func (k *Kernel) appendWith(ctx context.Context, streamID receipt.StreamID, kind receipt.Kind, payload []byte, refs []receipt.ID) (receipt.ID, error) {
	unlock := k.lockStream(streamID)
	defer unlock()

	state, err := k.store.GetStreamState(ctx, streamID)
	if err != nil {
		return receipt.ZeroID, err
	}
	if state == nil || state.HeadReceiptID == nil {
		return receipt.ZeroID, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	if state.Author != k.keypair.PublicKey() {
		return receipt.ZeroID, fmt.Errorf("%w: %s", ErrNotStreamAuthor, streamID)
	}

	b := receipt.NewBuilder(k.keypair.PublicKey(), streamID, state.HeadSeq+1).
		Kind(kind).
		Timestamp(k.cfg.Clock()).
		Prev(*state.HeadReceiptID).
		Payload(payload)
	for _, ref := range refs {
		b.AddRef(ref)
	}
	r, err := b.Sign(k.keypair)
	if err != nil {
		return receipt.ZeroID, err
	}

	return k.ingestLocalLocked(ctx, r)
}

// Ingest runs an externally sourced receipt through the full pipeline:
// validation, idempotent insert, stream-state update, fork bookkeeping and,
// for permission kinds, permission replay. It implements peersync.Ingestor so
// sync sessions feed the same path.
func (k *Kernel) Ingest(ctx context.Context, r *receipt.Receipt) (peersync.IngestResult, error) {
	unlock := k.lockStream(r.StreamID())
	defer unlock()

	res, err := k.ingestor.Ingest(ctx, r)
	if err != nil {
		return res, err
	}

	if res.Outcome == peersync.IngestAccepted && r.Kind().IsPermission() {
		k.permsMu.Lock()
		if err := k.permissions.ApplyReceipt(r); err != nil {
			k.log.Warnf("permission replay rejected receipt %s: %v", res.ID, err)
		}
		k.permsMu.Unlock()
	}

	return res, nil
}

// ingestLocalLocked stores a receipt this kernel just built. The stream lock
// is already held. A conflict here means a racing writer beat us to the seq.
func (k *Kernel) ingestLocalLocked(ctx context.Context, r *receipt.Receipt) (receipt.ID, error) {
	res, err := k.ingestor.Ingest(ctx, r)
	if err != nil {
		return receipt.ZeroID, err
	}
	switch res.Outcome {
	case peersync.IngestConflict:
		return receipt.ZeroID, fmt.Errorf("%w: stream %s seq %d: existing %s",
			ErrSequenceConflict, r.StreamID(), r.Seq(), res.Existing)
	}

	if r.Kind().IsPermission() {
		k.permsMu.Lock()
		if err := k.permissions.ApplyReceipt(r); err != nil {
			k.permsMu.Unlock()
			return receipt.ZeroID, err
		}
		k.permsMu.Unlock()
	}
	return res.ID, nil
}

// GetReceipt looks up a receipt by content address.
func (k *Kernel) GetReceipt(ctx context.Context, id receipt.ID) (*receipt.Receipt, error) {
	return k.store.GetReceipt(ctx, id)
}

// GetReceiptAt looks up a receipt by stream position.
func (k *Kernel) GetReceiptAt(ctx context.Context, streamID receipt.StreamID, seq uint64) (*receipt.Receipt, error) {
	return k.store.GetReceiptByPosition(ctx, streamID, seq)
}

// GetReceipts returns receipts with start <= seq <= end in order.
func (k *Kernel) GetReceipts(ctx context.Context, streamID receipt.StreamID, start, end uint64) ([]*receipt.Receipt, error) {
	return k.store.GetReceiptsRange(ctx, streamID, start, end)
}

// StreamState returns the stream's whole record, or nil if unknown.
func (k *Kernel) StreamState(ctx context.Context, streamID receipt.StreamID) (*stream.State, error) {
	return k.store.GetStreamState(ctx, streamID)
}

// ListStreams lists every known stream.
func (k *Kernel) ListStreams(ctx context.Context) ([]receipt.StreamID, error) {
	return k.store.ListStreams(ctx, nil)
}

// ListStreamsBy lists streams owned by author.
func (k *Kernel) ListStreamsBy(ctx context.Context, author crypto.PublicKey) ([]receipt.StreamID, error) {
	return k.store.ListStreams(ctx, &author)
}

// Sync runs an anti-entropy session with peer over transport, routing ingest
// through this kernel so permission replay stays current.
func (k *Kernel) Sync(ctx context.Context, transport peersync.Transport, peer peersync.NodeID) (*peersync.Report, error) {
	session := peersync.NewSession(k.store, transport, k.cfg.Sync, k.log).WithIngestor(k)
	return session.SyncWith(ctx, peer)
}

// SyncStreams is Sync restricted to specific streams.
func (k *Kernel) SyncStreams(ctx context.Context, transport peersync.Transport, peer peersync.NodeID, streams []receipt.StreamID) (*peersync.Report, error) {
	session := peersync.NewSession(k.store, transport, k.cfg.Sync, k.log).
		WithIngestor(k).
		WithStreams(streams)
	return session.SyncWith(ctx, peer)
}

// Grant appends a Grant receipt to a permissions stream this kernel owns.
func (k *Kernel) Grant(ctx context.Context, permsStreamID receipt.StreamID, payload *perms.GrantPayload) (receipt.ID, error) {
	b, err := payload.Encode()
	if err != nil {
		return receipt.ZeroID, err
	}
	return k.Append(ctx, permsStreamID, receipt.KindGrant, b)
}

// Revoke appends a Revoke receipt naming a previous grant.
func (k *Kernel) Revoke(ctx context.Context, permsStreamID receipt.StreamID, grantReceiptID receipt.ID, reason string) (receipt.ID, error) {
	payload := &perms.RevokePayload{GrantReceiptID: grantReceiptID, Reason: reason}
	b, err := payload.Encode()
	if err != nil {
		return receipt.ZeroID, err
	}
	return k.Append(ctx, permsStreamID, receipt.KindRevoke, b)
}

// ShareKey appends a KeyShare receipt delivering contentKey to the recipient
// named by a grant.
func (k *Kernel) ShareKey(
	ctx context.Context,
	permsStreamID receipt.StreamID,
	grantReceiptID receipt.ID,
	contentKey crypto.EncryptionKey,
	recipientPublic crypto.X25519PublicKey,
) (receipt.ID, error) {
	payload, err := perms.CreateKeyShare(grantReceiptID, contentKey, recipientPublic)
	if err != nil {
		return receipt.ZeroID, err
	}
	b, err := payload.Encode()
	if err != nil {
		return receipt.ZeroID, err
	}
	return k.Append(ctx, permsStreamID, receipt.KindKeyShare, b)
}

// Permissions exposes the folded permission state. The caller must treat it as
// read-only; it is rebuilt by RebuildPermissions.
func (k *Kernel) Permissions() *perms.State {
	return k.permissions
}

// RebuildPermissions discards the cached permission projection and replays the
// given permissions stream from seq 1.
func (k *Kernel) RebuildPermissions(ctx context.Context, permsStreamID receipt.StreamID) error {
	state, err := k.store.GetStreamState(ctx, permsStreamID)
	if err != nil {
		return err
	}

	k.permsMu.Lock()
	defer k.permsMu.Unlock()

	k.permissions = perms.NewState()
	if state == nil || state.HeadSeq == 0 {
		return nil
	}
	receipts, err := k.store.GetReceiptsRange(ctx, permsStreamID, 1, state.HeadSeq)
	if err != nil {
		return err
	}
	for _, r := range receipts {
		if err := k.permissions.ApplyReceipt(r); err != nil {
			return err
		}
	}
	return nil
}

// Anchor signs a checkpoint of the stream's current head and appends it as an
// Anchor receipt. The payload is a COSE_Sign1 message any holder of the
// author key can verify.
func (k *Kernel) Anchor(ctx context.Context, streamID receipt.StreamID) (receipt.ID, error) {
	state, err := k.store.GetStreamState(ctx, streamID)
	if err != nil {
		return receipt.ZeroID, err
	}
	if state == nil || state.HeadReceiptID == nil {
		return receipt.ZeroID, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}

	stateHash, err := peersync.ComputeStreamStateHash(ctx, k.store, streamID)
	if err != nil {
		return receipt.ZeroID, err
	}
	if stateHash == nil {
		return receipt.ZeroID, fmt.Errorf("%w: %s has no receipts to anchor", ErrStreamNotFound, streamID)
	}

	signed, err := checkpoint.NewSigner(k.keypair).Sign1(&checkpoint.State{
		StreamID:      streamID,
		HeadSeq:       state.HeadSeq,
		HeadReceiptID: *state.HeadReceiptID,
		StateHash:     *stateHash,
		Timestamp:     k.cfg.Clock(),
	})
	if err != nil {
		return receipt.ZeroID, err
	}

	return k.Append(ctx, streamID, receipt.KindAnchor, signed)
}

// VerifyAnchor checks an Anchor receipt's payload against its author and
// returns the checkpointed state.
func (k *Kernel) VerifyAnchor(r *receipt.Receipt) (*checkpoint.State, error) {
	return checkpoint.Verify(r.Payload, r.Author())
}
