// Package wsbuffer provides the buffers used to accumulate bytes received from a websocket
// stream: a pool of fixed-size buffers, a lease guard which returns a borrowed buffer exactly
// once and a growable accumulator with append, shift and replace operations.
package wsbuffer

import (
	"sync"
)

// Default size of the buffers handed out by a pool
const DefaultBufferSize = 4096

// Interface for a pool of fixed-size buffers. Implementations must be safe for concurrent use.
type Pool interface {
	// Borrow a buffer. The returned slice has length and capacity equal to BufferSize.
	Get() []byte
	// Return a buffer previously obtained with Get. Buffers with an unexpected capacity are
	// dropped.
	Put(buf []byte)
	// Size of the buffers handed out by the pool
	BufferSize() int
}

// Pool of fixed-size buffers backed by a sync.Pool.
type FixedPool struct {
	// Size of the buffers
	size int
	// Underlying pool storing *[]byte to avoid allocations on Put
	pool sync.Pool
}

// # Description
//
// Factory which creates a new FixedPool. A size lower or equal to 0 selects DefaultBufferSize.
func NewFixedPool(size int) *FixedPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &FixedPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *FixedPool) Get() []byte {
	buf := p.pool.Get().(*[]byte)
	return (*buf)[:p.size]
}

func (p *FixedPool) Put(buf []byte) {
	if cap(buf) != p.size {
		// Not one of ours
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

func (p *FixedPool) BufferSize() int {
	return p.size
}
