package peersync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryNetwork routes messages between in-process transports. Messages are
// framed and unframed exactly as a network transport would, so the wire codec
// is exercised even in tests.
type MemoryNetwork struct {
	mu      sync.RWMutex
	inboxes map[NodeID]chan envelope
}

type envelope struct {
	from  NodeID
	frame []byte
}

const inboxDepth = 1000

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{inboxes: make(map[NodeID]chan envelope)}
}

// CreateTransport attaches a node to the network.
func (n *MemoryNetwork) CreateTransport(nodeID NodeID) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	inbox := make(chan envelope, inboxDepth)
	n.inboxes[nodeID] = inbox
	return &MemoryTransport{nodeID: nodeID, network: n, inbox: inbox}
}

func (n *MemoryNetwork) deliver(from, to NodeID, frame []byte) error {
	n.mu.RLock()
	inbox, ok := n.inboxes[to]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotConnected, to)
	}
	select {
	case inbox <- envelope{from: from, frame: frame}:
		return nil
	default:
		return fmt.Errorf("%w: inbox full for %s", ErrTransport, to)
	}
}

// MemoryTransport is the in-memory Transport implementation.
type MemoryTransport struct {
	nodeID  NodeID
	network *MemoryNetwork
	inbox   chan envelope
}

func (t *MemoryTransport) Send(ctx context.Context, peer NodeID, m Message) error {
	frame, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return t.network.deliver(t.nodeID, peer, frame)
}

func (t *MemoryTransport) Recv(ctx context.Context) (NodeID, Message, error) {
	select {
	case env := <-t.inbox:
		m, err := DecodeMessage(env.frame)
		if err != nil {
			return NodeID{}, nil, err
		}
		return env.from, m, nil
	case <-ctx.Done():
		return NodeID{}, nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

func (t *MemoryTransport) RecvTimeout(ctx context.Context, d time.Duration) (NodeID, Message, bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case env := <-t.inbox:
		m, err := DecodeMessage(env.frame)
		if err != nil {
			return NodeID{}, nil, false, err
		}
		return env.from, m, true, nil
	case <-timer.C:
		return NodeID{}, nil, false, nil
	case <-ctx.Done():
		return NodeID{}, nil, false, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

func (t *MemoryTransport) Broadcast(ctx context.Context, m Message) error {
	frame, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	t.network.mu.RLock()
	peers := make([]NodeID, 0, len(t.network.inboxes))
	for peer := range t.network.inboxes {
		if peer != t.nodeID {
			peers = append(peers, peer)
		}
	}
	t.network.mu.RUnlock()

	// Best effort: a full or departed peer does not fail the broadcast.
	for _, peer := range peers {
		_ = t.network.deliver(t.nodeID, peer, frame)
	}
	return nil
}

func (t *MemoryTransport) LocalNodeID() NodeID { return t.nodeID }

func (t *MemoryTransport) ConnectedPeers() []NodeID {
	t.network.mu.RLock()
	defer t.network.mu.RUnlock()

	peers := make([]NodeID, 0, len(t.network.inboxes))
	for peer := range t.network.inboxes {
		if peer != t.nodeID {
			peers = append(peers, peer)
		}
	}
	return peers
}

func (t *MemoryTransport) IsConnected(peer NodeID) bool {
	t.network.mu.RLock()
	defer t.network.mu.RUnlock()

	_, ok := t.network.inboxes[peer]
	return ok
}
