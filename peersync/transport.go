package peersync

import (
	"context"
	"time"
)

// Transport is the narrow channel capability set the session is polymorphic
// over. In-memory and network transports must both satisfy the same observable
// contract: reliable, ordered, bidirectional delivery of framed messages.
type Transport interface {
	// Send delivers a message to a specific peer.
	Send(ctx context.Context, peer NodeID, m Message) error

	// Recv blocks for the next message from any peer.
	Recv(ctx context.Context) (NodeID, Message, error)

	// RecvTimeout waits up to d for a message. ok is false on timeout; context
	// cancellation surfaces as ErrCancelled.
	RecvTimeout(ctx context.Context, d time.Duration) (from NodeID, m Message, ok bool, err error)

	// Broadcast delivers a message to every connected peer.
	Broadcast(ctx context.Context, m Message) error

	// LocalNodeID is this node's identity on the network.
	LocalNodeID() NodeID

	// ConnectedPeers lists currently reachable peers.
	ConnectedPeers() []NodeID

	// IsConnected reports whether a peer is reachable.
	IsConnected(peer NodeID) bool
}
