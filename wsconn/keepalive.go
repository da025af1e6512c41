package wsconn

import (
	"sync/atomic"
	"time"
)

// Tracks the activity of a connection to decide when a keep-alive ping is due and whether the
// last ping has been answered in time.
//
// All methods are safe for concurrent use: the read loop marks receptions, writers mark sends
// and the keep-alive timer checks and arms.
type keepAliveTracker struct {
	// Period of keep-alive checks
	interval time.Duration
	// Delay to receive any frame after a ping
	timeout time.Duration
	// Last send time (unix nanoseconds)
	lastSend atomic.Int64
	// Last receive time (unix nanoseconds)
	lastReceive atomic.Int64
	// Deadline of the pending ping (unix nanoseconds), 0 if no ping is pending
	deadline atomic.Int64
	// Single-slot guard held during a check
	busy atomic.Bool
}

// Factory which creates a new tracker. Activity timestamps start at now.
func newKeepAliveTracker(interval time.Duration, timeout time.Duration, now time.Time) *keepAliveTracker {
	k := &keepAliveTracker{interval: interval, timeout: timeout}
	k.lastSend.Store(now.UnixNano())
	k.lastReceive.Store(now.UnixNano())
	return k
}

// Record a send.
func (k *keepAliveTracker) MarkSent(now time.Time) {
	k.lastSend.Store(now.UnixNano())
}

// Record a reception. Any received frame clears the pending ping.
func (k *keepAliveTracker) MarkReceived(now time.Time) {
	k.lastReceive.Store(now.UnixNano())
	k.deadline.Store(0)
}

// Whether nothing has been sent or received during a whole interval.
func (k *keepAliveTracker) PingDue(now time.Time) bool {
	last := k.lastSend.Load()
	if r := k.lastReceive.Load(); r > last {
		last = r
	}
	return now.UnixNano()-last >= int64(k.interval)
}

// Record a ping sent at now: the peer must send a frame before now + timeout.
func (k *keepAliveTracker) Arm(now time.Time) {
	k.deadline.Store(now.Add(k.timeout).UnixNano())
}

// Whether a ping is waiting for an answer.
func (k *keepAliveTracker) Pending() bool {
	return k.deadline.Load() != 0
}

// Whether the pending ping has not been answered in time.
func (k *keepAliveTracker) Expired(now time.Time) bool {
	deadline := k.deadline.Load()
	return deadline != 0 && now.UnixNano() >= deadline
}

// Try to take the single check slot. Overlapping checks return false.
func (k *keepAliveTracker) TryAcquire() bool {
	return k.busy.CompareAndSwap(false, true)
}

// Release the check slot.
func (k *keepAliveTracker) Release() {
	k.busy.Store(false)
}
