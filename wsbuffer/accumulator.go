package wsbuffer

import (
	"errors"
	"fmt"
	"io"
)

var (
	// Returned by Shift when asked to remove more bytes than the accumulator holds
	ErrShiftOutOfRange = errors.New("shift exceeds the number of buffered bytes")
	// Returned when the accumulator is used after Release
	ErrReleased = errors.New("accumulator has been released")
)

// Growable receive buffer.
//
// The accumulator holds Len() valid bytes starting at offset 0 of a leased buffer. When more
// room is needed the buffer is replaced by a larger one (at least twice the capacity), valid
// bytes are copied forward and the old buffer goes back to its pool. Consumed bytes are removed
// from the front with Shift.
//
// An accumulator is not safe for concurrent use.
type Accumulator struct {
	// Pool used to borrow buffers
	pool Pool
	// Current buffer
	lease *Lease
	// Number of valid bytes
	count int
}

// # Description
//
// Factory which creates a new accumulator with an initial buffer borrowed from pool. If pool is
// nil, buffers are allocated with DefaultBufferSize as initial capacity.
func NewAccumulator(pool Pool) *Accumulator {
	size := DefaultBufferSize
	if pool != nil {
		size = pool.BufferSize()
	}
	return &Accumulator{
		pool:  pool,
		lease: Borrow(pool, size),
	}
}

// Valid bytes. The returned slice aliases the internal buffer and is invalidated by any other
// method call.
func (a *Accumulator) Bytes() []byte {
	buf := a.lease.Bytes()
	if buf == nil {
		return nil
	}
	return buf[:a.count]
}

// Number of valid bytes.
func (a *Accumulator) Len() int {
	return a.count
}

// Capacity of the current buffer.
func (a *Accumulator) Cap() int {
	return a.lease.Cap()
}

// # Description
//
// Ensure the accumulator can hold n more bytes without replacing its buffer. When the buffer is
// too small it is replaced by a buffer of max(2 * capacity, Len() + n) bytes.
func (a *Accumulator) Reserve(n int) error {
	if a.lease.Released() {
		return ErrReleased
	}
	if n < 0 {
		return fmt.Errorf("negative reservation: %d", n)
	}
	capacity := a.lease.Cap()
	if a.count+n <= capacity {
		return nil
	}
	newCap := 2 * capacity
	if newCap < a.count+n {
		newCap = a.count + n
	}
	a.replace(newCap)
	return nil
}

// Copy-and-swap the current buffer with a buffer of size bytes.
func (a *Accumulator) replace(size int) {
	next := Borrow(a.pool, size)
	copy(next.Bytes(), a.lease.Bytes()[:a.count])
	a.lease.Release()
	a.lease = next
}

// Append p to the valid bytes, growing the buffer if needed.
func (a *Accumulator) Append(p []byte) error {
	if err := a.Reserve(len(p)); err != nil {
		return err
	}
	copy(a.lease.Bytes()[a.count:], p)
	a.count += len(p)
	return nil
}

// # Description
//
// Perform a single Read from r into the free space of the buffer, growing it first when it is
// full.
//
// # Returns
//
// The number of bytes read and the error returned by r if any.
func (a *Accumulator) Fill(r io.Reader) (int, error) {
	if a.lease.Released() {
		return 0, ErrReleased
	}
	if a.count == a.lease.Cap() {
		if err := a.Reserve(1); err != nil {
			return 0, err
		}
	}
	n, err := r.Read(a.lease.Bytes()[a.count:])
	if n > 0 {
		a.count += n
	}
	return n, err
}

// # Description
//
// Remove the first n bytes and move the remaining bytes to offset 0. When nothing remains the
// count is reset without moving or reallocating anything.
//
// # Returns
//
// ErrShiftOutOfRange if n is negative or greater than Len(). The accumulator is left untouched.
func (a *Accumulator) Shift(n int) error {
	if a.lease.Released() {
		return ErrReleased
	}
	if n < 0 || n > a.count {
		return ErrShiftOutOfRange
	}
	if n == a.count {
		a.count = 0
		return nil
	}
	buf := a.lease.Bytes()
	// copy handles overlapping slices
	copy(buf, buf[n:a.count])
	a.count -= n
	return nil
}

// Reset the count of valid bytes to 0.
func (a *Accumulator) Reset() {
	a.count = 0
}

// Return the current buffer to its pool. Any later use returns ErrReleased.
func (a *Accumulator) Release() {
	a.count = 0
	a.lease.Release()
}
