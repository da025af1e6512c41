package wsbuffer

import "sync/atomic"

// Guard over a buffer borrowed from a pool.
//
// Release returns the buffer to its pool the first time it is called and is a no-op afterwards,
// so a buffer can never be returned twice. Bytes returns nil once the lease has been released.
type Lease struct {
	// Pool the buffer is returned to. Nil for buffers allocated outside of a pool.
	pool Pool
	// Leased buffer
	buf []byte
	// Set once the buffer has been released
	released atomic.Bool
}

// # Description
//
// Borrow a buffer of at least size bytes. The buffer comes from pool when it fits in the pool
// buffers, otherwise a dedicated buffer is allocated and simply dropped on release.
func Borrow(pool Pool, size int) *Lease {
	if pool != nil && size <= pool.BufferSize() {
		return &Lease{pool: pool, buf: pool.Get()}
	}
	return &Lease{buf: make([]byte, size)}
}

// Leased buffer or nil if the lease has been released.
func (l *Lease) Bytes() []byte {
	if l == nil || l.released.Load() {
		return nil
	}
	return l.buf
}

// Capacity of the leased buffer, 0 once released.
func (l *Lease) Cap() int {
	return len(l.Bytes())
}

// Whether the lease has been released.
func (l *Lease) Released() bool {
	return l == nil || l.released.Load()
}

// Return the buffer to its pool. Safe to call multiple times and from multiple goroutines.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	if l.pool != nil {
		l.pool.Put(l.buf)
	}
}
