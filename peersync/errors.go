package peersync

import "errors"

var (
	ErrVersionMismatch  = errors.New("protocol version mismatch")
	ErrInvalidMessage   = errors.New("invalid sync message")
	ErrMessageTooLarge  = errors.New("sync message exceeds size cap")
	ErrTransport        = errors.New("transport error")
	ErrPeerNotConnected = errors.New("peer not connected")
	ErrTimeout          = errors.New("timeout waiting for peer")
	ErrCancelled        = errors.New("sync cancelled")
	ErrPeer             = errors.New("peer reported error")
)
