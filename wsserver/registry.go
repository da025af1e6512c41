package wsserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gbdevw/gowsrfc/wsconn"
	"github.com/gbdevw/gowsrfc/wsframe"
)

// Concurrent map of the sessions served by a server, keyed by session ID.
//
// Sessions are registered as soon as they are built, before their opening handshake, and are
// removed during their teardown.
type Registry struct {
	sessions sync.Map
	count    atomic.Int64
}

// Create an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// # Description
//
// Register a session. Registering an already registered session is a no-op.
func (r *Registry) Add(session *wsconn.Session) {
	if session == nil {
		return
	}
	if _, loaded := r.sessions.LoadOrStore(session.ID(), session); !loaded {
		r.count.Add(1)
	}
}

// # Description
//
// Unregister a session. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	if _, loaded := r.sessions.LoadAndDelete(id); loaded {
		r.count.Add(-1)
	}
}

// Get the session registered with the provided ID.
func (r *Registry) Get(id string) (*wsconn.Session, bool) {
	value, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*wsconn.Session), true
}

// Number of registered sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// # Description
//
// Copy of the registered sessions. Sessions added or removed while the copy is built may or may
// not be part of it.
func (r *Registry) Snapshot() []*wsconn.Session {
	sessions := make([]*wsconn.Session, 0, r.Len())
	r.sessions.Range(func(_, value any) bool {
		sessions = append(sessions, value.(*wsconn.Session))
		return true
	})
	return sessions
}

// Number of registered sessions which are open.
func (r *Registry) CountOpen() int {
	count := 0
	r.sessions.Range(func(_, value any) bool {
		if value.(*wsconn.Session).State() == wsconn.StateOpen {
			count++
		}
		return true
	})
	return count
}

// # Description
//
// Send a message to every open session. Sessions which are not open are skipped.
//
// # Inputs
//
//   - ctx: Context used to abort pending sends.
//   - msgType: Type of message to send.
//   - payload: Message payload.
//
// # Returns
//
// The number of sessions the message has been sent to and the joined send errors if any.
func (r *Registry) Broadcast(ctx context.Context, msgType wsframe.MessageType, payload []byte) (int, error) {
	sent := 0
	var errs []error
	for _, session := range r.Snapshot() {
		if session.State() != wsconn.StateOpen {
			continue
		}
		if err := session.Send(ctx, msgType, payload); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// # Description
//
// Send a message to a single session. Sending to an unknown ID is a silent no-op.
func (r *Registry) SendTo(ctx context.Context, id string, msgType wsframe.MessageType, payload []byte) error {
	session, ok := r.Get(id)
	if !ok {
		return nil
	}
	return session.Send(ctx, msgType, payload)
}

// # Description
//
// Close every registered session, sessions still in their opening handshake included. The method
// does not wait for the sessions to be torn down.
//
// # Returns
//
// The number of sessions asked to close.
func (r *Registry) CloseAll(code wsframe.StatusCode, reason string) int {
	count := 0
	for _, session := range r.Snapshot() {
		// Sessions which are already closing report ErrNotOpen
		session.Close(code, reason)
		count++
	}
	return count
}
