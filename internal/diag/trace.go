// Package diag keeps a rolling trace of recent match decisions and async
// warnings for a debug/inspect surface, the same role
// internal/lua/lua_output_collector.go fills for Lua output: a fixed-size
// ring buffer that silently drops the oldest entry on overflow rather than
// blocking the hot path, drained on demand by a CLI subcommand.
package diag

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Kind identifies what an Entry records.
type Kind int

const (
	KindMatch Kind = iota
	KindMissingData
	KindTimedOut
	KindPVDiscarded
	KindPVMissed
	KindWarning
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindMissingData:
		return "missing_data"
	case KindTimedOut:
		return "timed_out"
	case KindPVDiscarded:
		return "pv_discarded"
	case KindPVMissed:
		return "pv_missed"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one recorded decision or notification.
type Entry struct {
	Time    time.Time
	Kind    Kind
	PulseId uint64
	Detail  string
}

// MaxCapacity bounds the trace buffer size against accidental
// misconfiguration, mirroring LuaOutputCollector's MaxBufferSize guard.
const MaxCapacity uint32 = 65536

// Trace is a fixed-capacity, thread-safe ring buffer of recent Entry
// values. Recording never blocks: a full buffer overwrites its oldest
// entry.
type Trace struct {
	buffer      mpmc.RichOverlappedRingBuffer[Entry]
	overwritten atomic.Uint64
}

// NewTrace creates a Trace holding up to capacity entries.
func NewTrace(capacity uint32) (*Trace, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("diag: capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("diag: capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	return &Trace{buffer: mpmc.NewOverlappedRingBuffer[Entry](capacity)}, nil
}

// Record appends an entry, overwriting the oldest one if the buffer is
// full.
func (t *Trace) Record(kind Kind, pulseId uint64, detail string) {
	overwrites, err := t.buffer.EnqueueM(Entry{
		Time:    time.Now(),
		Kind:    kind,
		PulseId: pulseId,
		Detail:  detail,
	})
	if err != nil {
		// The ring buffer rejects only a nil/zero-capacity buffer, which
		// NewTrace already excludes.
		return
	}
	t.overwritten.Add(uint64(overwrites))
}

// Drain removes and returns every entry currently buffered, oldest
// first.
func (t *Trace) Drain() []Entry {
	var out []Entry
	for !t.buffer.IsEmpty() {
		e, err := t.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

// Overwritten reports how many entries have been dropped for the
// buffer being full since the Trace was created.
func (t *Trace) Overwritten() uint64 {
	return t.overwritten.Load()
}
