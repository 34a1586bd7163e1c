package teb

import (
	"fmt"
	"sync"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// Received is one datagram the Loopback contributor accepted, retained
// for the inspect CLI and for tests that run the pipeline end-to-end
// without a real event builder.
type Received struct {
	PebbleIndex uint32
	Header      xtc.Header
	Payload     []byte
	Damage      xtc.Damage
}

// loopbackSlot is a scratch buffer standing in for a contributor-owned
// slot.
type loopbackSlot struct {
	buf     []byte
	hdr     xtc.Header
	damage  xtc.Damage
	written int
}

func (s *loopbackSlot) Write(hdr xtc.Header, payload []byte, damage xtc.Damage) error {
	if len(payload) > len(s.buf) {
		return fmt.Errorf("teb: loopback slot too small for %d bytes", len(payload))
	}
	s.hdr = hdr
	s.damage = damage
	s.written = copy(s.buf, payload)
	return nil
}

func (s *loopbackSlot) Capacity() int { return len(s.buf) }

// Loopback is a Contributor that accepts every datagram into an in-memory
// ring, standing in for the real event-builder collaborator when running
// the pipeline standalone, in tests, and in the CLI's demo mode.
type Loopback struct {
	mu       sync.Mutex
	capacity int
	received []Received
	maxKeep  int
}

// NewLoopback creates a Loopback whose slots are sized to capacity bytes
// and that retains at most maxKeep of the most recent received records
// for inspection.
func NewLoopback(capacity, maxKeep int) *Loopback {
	return &Loopback{capacity: capacity, maxKeep: maxKeep}
}

func (l *Loopback) Fetch(pebbleIndex uint32) (Slot, error) {
	return &loopbackSlot{buf: make([]byte, l.capacity)}, nil
}

func (l *Loopback) Post(pebbleIndex uint32, slot Slot) error {
	s, ok := slot.(*loopbackSlot)
	if !ok {
		return fmt.Errorf("teb: loopback received a foreign slot type")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, Received{
		PebbleIndex: pebbleIndex,
		Header:      s.hdr,
		Payload:     append([]byte(nil), s.buf[:s.written]...),
		Damage:      s.damage,
	})
	if l.maxKeep > 0 && len(l.received) > l.maxKeep {
		l.received = l.received[len(l.received)-l.maxKeep:]
	}
	return nil
}

func (l *Loopback) Tick() {}

// Drained returns a snapshot of the retained records, oldest first.
func (l *Loopback) Drained() []Received {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Received(nil), l.received...)
}
