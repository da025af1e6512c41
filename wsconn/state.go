// Package wsconn implements the websocket connection state machine for both client and server
// roles: opening handshake, read loop and message dispatch, sends, keep-alive and the closing
// handshake.
package wsconn

import "sync/atomic"

// Lifecycle state of a connection.
type State int32

const (
	// Connection has not been started yet
	StateNone State = iota
	// Transport, TLS or opening handshake in progress
	StateConnecting
	// Handshake completed: messages can be exchanged
	StateOpen
	// A close frame has been sent or received
	StateClosing
	// Connection has been torn down
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Atomic holder for a State.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) Load() State {
	return State(b.v.Load())
}

// Transition from old to next. Returns false if the current state is not old.
func (b *stateBox) CompareAndSwap(old State, next State) bool {
	return b.v.CompareAndSwap(int32(old), int32(next))
}

// Unconditionally set the state and return the previous one.
func (b *stateBox) Swap(next State) State {
	return State(b.v.Swap(int32(next)))
}
