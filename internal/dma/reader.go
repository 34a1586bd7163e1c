package dma

import (
	"sync/atomic"

	"github.com/gadorlhiac/pvdrp/internal/pebble"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// Stats is a snapshot of a Reader's error/skip counters.
type Stats struct {
	ReadErrors     uint64
	Broken         uint64
	PebbleExhausted uint64
	LastPgpIndex   uint32
}

// Reader drains batches of DMA completions and turns each good one into a
// pebble holding a constructed event datagram. It maintains its own
// (available, current) cursor over the last batch read from the driver so
// a single ReadBulk call can satisfy many Next calls.
type Reader struct {
	driver      Driver
	pool        *pebble.Pool
	nDmaBuffers uint32
	maxRetCnt   int

	batch []Completion
	cur   int

	readErrors     atomic.Uint64
	broken         atomic.Uint64
	pebbleExhaust  atomic.Uint64
	lastPgpIndex   atomic.Uint32
}

// NewReader creates a Reader over driver, allocating pebbles from pool.
// nDmaBuffers is the DMA ring's buffer count, used only to derive the PGP
// index recorded alongside each event for diagnostics; maxRetCnt bounds
// how many completions a single ReadBulk call may return.
func NewReader(driver Driver, pool *pebble.Pool, nDmaBuffers uint32, maxRetCnt int) *Reader {
	return &Reader{driver: driver, pool: pool, nDmaBuffers: nDmaBuffers, maxRetCnt: maxRetCnt}
}

// Next returns the next constructed event, if one is available. It never
// blocks beyond whatever bound the underlying Driver.ReadBulk imposes; ok
// is false if the ring is currently empty, letting the Matcher fall
// through to its timeout housekeeping.
func (r *Reader) Next() (pebbleIndex uint32, hdr xtc.Header, payload []byte, ok bool) {
	for {
		if r.cur >= len(r.batch) {
			batch, err := r.driver.ReadBulk(r.maxRetCnt)
			if err != nil {
				r.readErrors.Add(1)
				return 0, xtc.Header{}, nil, false
			}
			if len(batch) == 0 {
				return 0, xtc.Header{}, nil, false
			}
			r.batch = batch
			r.cur = 0
		}

		for r.cur < len(r.batch) {
			c := r.batch[r.cur]
			r.cur++

			if c.RetLen == 0 || c.Flags&FlagBroken != 0 {
				r.broken.Add(1)
				r.driver.Return([]uint32{c.BufferIndex})
				continue
			}

			decodedHdr, evtCounter, body, err := decodeHeader(c.Data[:c.RetLen])
			if err != nil {
				r.broken.Add(1)
				r.driver.Return([]uint32{c.BufferIndex})
				continue
			}
			r.lastPgpIndex.Store(uint32(evtCounter % uint64(r.nDmaBuffers)))

			idx, dst, allocOK := r.pool.Allocate()
			if !allocOK {
				r.pebbleExhaust.Add(1)
				r.driver.Return([]uint32{c.BufferIndex})
				continue
			}
			n := copy(dst, body)
			r.driver.Return([]uint32{c.BufferIndex})
			return idx, decodedHdr, dst[:n], true
		}
	}
}

// Stats returns a snapshot of the Reader's counters.
func (r *Reader) Stats() Stats {
	return Stats{
		ReadErrors:      r.readErrors.Load(),
		Broken:          r.broken.Load(),
		PebbleExhausted: r.pebbleExhaust.Load(),
		LastPgpIndex:    r.lastPgpIndex.Load(),
	}
}
