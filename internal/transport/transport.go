// Package transport connects the relay engine to a broadcast medium.
//
// The engine only ever hands a transport the manufacturer payload to put on
// air and reads raw advertisement buffers back. Memory is an in-process medium
// for tests and simulations; Link attaches to a broadcast hub over QUIC.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport abstracts the broadcast radio.
type Transport interface {
	// Send begins, or replaces, this node's outbound advertisement.
	Send(ctx context.Context, mfgCode uint16, data []byte) error

	// Receive returns raw advertisement buffers as they are heard.
	Receive() <-chan []byte

	// Close stops advertising and releases the medium.
	Close() error
}

// Stopper is implemented by transports that can stop advertising without
// closing.
type Stopper interface {
	Stop(ctx context.Context) error
}
