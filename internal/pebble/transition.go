package pebble

import "sync"

// TransitionPool is a separate small arena for transition datagrams, one
// slot per pebble index, sized for the worst-case transition payload
// (maxTrSize, default 256 KiB). It is a distinct arena from the L1Accept
// pebbles so the two flows fail independently: a misbehaving transition
// payload cannot starve event buffers and vice versa.
//
// A slot may be nil during shutdown (the original's "nullptr-permitted
// during shutdown"); callers that copy a transition must check for this.
type TransitionPool struct {
	mu   sync.RWMutex
	bufs [][]byte
}

// NewTransitionPool allocates n slots of maxTrSize bytes each, indexed by
// the same pebble index used by the L1Accept arena.
func NewTransitionPool(n, maxTrSize int) *TransitionPool {
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = make([]byte, maxTrSize)
	}
	return &TransitionPool{bufs: bufs}
}

// Buffer returns the transition slot for index, or nil if the pool has
// been shut down.
func (t *TransitionPool) Buffer(index uint32) []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(index) >= len(t.bufs) {
		return nil
	}
	return t.bufs[index]
}

// Shutdown clears every slot to nil, matching the original's behavior of
// the transition dgram pointer going away under shutdown.
func (t *TransitionPool) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.bufs {
		t.bufs[i] = nil
	}
}

// Reopen reallocates every slot at maxTrSize bytes, undoing a prior
// Shutdown for the next configure.
func (t *TransitionPool) Reopen(maxTrSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.bufs {
		t.bufs[i] = make([]byte, maxTrSize)
	}
}
