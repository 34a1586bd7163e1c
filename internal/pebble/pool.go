// Package pebble implements the fixed-capacity event-buffer arena (the
// "pebble" pool): a power-of-two set of equally sized buffers, a freelist
// that never blocks the DMA path, and a parallel small-buffer arena for
// transition datagrams.
package pebble

import "fmt"

// Pool is a fixed-capacity arena of equally sized event buffers indexed
// 0..N-1. Allocate never blocks: it either returns a free buffer or
// reports exhaustion immediately, since the DMA reader must never stall
// waiting for one. Free is safe to call concurrently with Allocate (the
// Matcher frees a pebble once the contributor has accepted its datagram), and is
// idempotent-per-index only under the precondition that it is never
// called twice for the same outstanding allocation.
type Pool struct {
	bufs []([]byte)
	free chan uint32
}

// New creates a pool of n buffers of bufSize bytes each. n must be a
// power of two, matching the driver's event-counter-modulo-N indexing
// scheme.
func New(n, bufSize int) (*Pool, error) {
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("pebble: nbuffers %d must be a power of two", n)
	}
	if bufSize <= 0 {
		return nil, fmt.Errorf("pebble: bufferSize must be > 0")
	}

	p := &Pool{
		bufs: make([][]byte, n),
		free: make(chan uint32, n),
	}
	for i := range p.bufs {
		p.bufs[i] = make([]byte, bufSize)
		p.free <- uint32(i)
	}
	return p, nil
}

// Allocate returns the index and backing buffer of a free pebble, or
// ok=false if the arena is exhausted. Never blocks.
func (p *Pool) Allocate() (index uint32, buf []byte, ok bool) {
	select {
	case idx := <-p.free:
		return idx, p.bufs[idx], true
	default:
		return 0, nil, false
	}
}

// Free returns a pebble to the freelist. It never blocks: the freelist's
// capacity equals the arena size, so a correct caller (one Free per prior
// Allocate) can never overflow it.
func (p *Pool) Free(index uint32) {
	select {
	case p.free <- index:
	default:
		// A correct caller never triggers this: it implies Free was
		// called without a matching Allocate having been taken first.
	}
}

// Buffer returns the backing byte slice for index without taking
// ownership; callers must already hold the pebble (via a prior Allocate
// or a handoff through the pending-event queue).
func (p *Pool) Buffer(index uint32) []byte { return p.bufs[index] }

// NBuffers returns N, the arena's buffer count.
func (p *Pool) NBuffers() int { return len(p.bufs) }

// BufferSize returns the upper bound on a single L1Accept payload.
func (p *Pool) BufferSize() int {
	if len(p.bufs) == 0 {
		return 0
	}
	return len(p.bufs[0])
}

// Available reports how many pebbles are currently free, for metrics and
// tests; it is a snapshot and may be stale the instant it returns.
func (p *Pool) Available() int { return len(p.free) }
