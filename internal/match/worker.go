// Package match implements the Matcher/Worker (C4): the single-threaded
// loop that pulls detector events off the DMA reader, pairs each
// L1Accept with every subscribed PV under a bounded-lateness policy, and
// emits exactly one record per event to the downstream contributor,
// possibly damaged.
//
// compare() is implemented for all three timestamp-matching degrees, but
// degree 0 is never invoked by matchUp against a real PV timestamp:
// degree 0 is reached by matchUp treating every head PV as an immediate
// match without calling Compare at all (Worker.degreeZeroMatch
// short-circuits the result loop). Compare degree 0 exists only so the
// function's contract is complete; timeout() does not call Compare at
// all, it ages entries out with TimeStamp.After against its watermark.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/ringqueue"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// MaxPVs bounds the number of PVs a single run can subscribe to: Remaining
// is a uint32 bitmask, so bit positions 0..31 are all that fit.
const MaxPVs = 32

// EventSource is the DMA Reader contract the Worker drains (C2). It never
// blocks beyond whatever bound the implementation imposes.
type EventSource interface {
	Next() (pebbleIndex uint32, hdr xtc.Header, payload []byte, ok bool)
}

// PVSource is the subset of a PV Monitor (C3) the Worker needs: peeking
// and consuming its queue head, releasing a datagram's buffer, and aging
// out stale entries at a watermark.
type PVSource interface {
	ID() uint32
	Peek() (dg *pv.Datagram, ok bool)
	Pop() (dg *pv.Datagram, ok bool)
	Release(dg *pv.Datagram)
	Timeout(watermark xtc.TimeStamp) bool
}

// BufferPool is the C1 Buffer Pool contract the Worker needs for L1Accept
// pebbles.
type BufferPool interface {
	Buffer(index uint32) []byte
	BufferSize() int
	Free(index uint32)
}

// TransitionPool is the C1 transition-arena contract.
type TransitionPool interface {
	Buffer(index uint32) []byte
}

// Contributor is the downstream collaborator (C5) a completed datagram is
// handed to. Send may block, since the contributor is the pipeline's
// single point of backpressure, but an error is always fatal: it means
// the pipeline can no longer make forward progress and must abort. Tick
// drives the contributor's own timeout housekeeping once per idle pass.
type Contributor interface {
	Send(pebbleIndex uint32, hdr xtc.Header, payload []byte, damage xtc.Damage) error
	Tick()
}

// Recorder receives per-decision counters. A nil Recorder is valid; every
// call site checks for nil before calling a method.
type Recorder interface {
	MatchOK()
	MatchMissingData()
	MatchTimedOut()
	PVDiscarded()
	PVMissed()
	TimeDiff(d time.Duration)
	QueueDepths(input, output int)
}

// Config configures a Worker. Degree, Timeout, and MaxTrSize are
// process-wide and fixed for the life of a configure.
type Config struct {
	Degree    int           // tsMatchDegree: 0, 1 (disabled at CLI), or 2
	Timeout   time.Duration // tmo: soft-timeout watermark age
	MaxTrSize int           // upper bound on a transition datagram's payload
}

// Worker is the Matcher: single-threaded, not safe for concurrent use of
// Run from more than one goroutine.
type Worker struct {
	cfg Config

	reader   EventSource
	pool     BufferPool
	trPool   TransitionPool
	monitors []PVSource

	pending *ringqueue.Queue[*PendingEvent]

	contributor Contributor
	rec         Recorder
	log         logrus.FieldLogger

	running bool
	clock   func() time.Time
}

// New creates a Worker. queueDepth sizes the pending-event queue and
// should match the buffer pool's nbuffers, the C1 invariant that bounds
// in-flight events. monitors is indexed by PV id; id i must equal
// monitors[i].ID().
func New(cfg Config, reader EventSource, pool BufferPool, trPool TransitionPool, monitors []PVSource, contributor Contributor, rec Recorder, log logrus.FieldLogger, queueDepth int) (*Worker, error) {
	if len(monitors) > MaxPVs {
		return nil, fmt.Errorf("match: %d PVs exceeds the %d-bit remaining mask", len(monitors), MaxPVs)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		cfg:         cfg,
		reader:      reader,
		pool:        pool,
		trPool:      trPool,
		monitors:    monitors,
		pending:     ringqueue.New[*PendingEvent](queueDepth),
		contributor: contributor,
		rec:         rec,
		log:         log,
		clock:       time.Now,
	}, nil
}

// Run drains the event source and drives matching/timeout housekeeping
// until ctx is cancelled. It returns nil on a clean ctx cancellation and
// a non-nil error on a fatal condition (buffer overrun per §4.4c), which
// the control plane treats as a pipeline abort.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pebbleIndex, hdr, payload, ok := w.reader.Next()
		if ok {
			if err := w.admit(pebbleIndex, hdr, payload); err != nil {
				return err
			}
			if err := w.matchUp(); err != nil {
				return err
			}
			continue
		}

		if err := w.matchUp(); err != nil {
			return err
		}
		watermark := xtc.FromTime(w.clock()).Sub(w.cfg.Timeout)
		if err := w.timeout(watermark); err != nil {
			return err
		}
	}
}

func (w *Worker) admit(pebbleIndex uint32, hdr xtc.Header, payload []byte) error {
	evt := &PendingEvent{PebbleIndex: pebbleIndex, Header: hdr}
	if hdr.Service == xtc.L1Accept {
		evt.Remaining = allPVMask(len(w.monitors))
		evt.Xtc = xtc.NewXtc(w.pool.Buffer(pebbleIndex))
		if err := evt.Xtc.Skip(len(payload)); err != nil {
			return fmt.Errorf("match: event on pebble %d: %w", pebbleIndex, err)
		}
	} else {
		evt.rawPayload = payload
	}
	if !w.pending.Push(evt) {
		return fmt.Errorf("match: pending queue overflow admitting pebble %d", pebbleIndex)
	}
	if w.rec != nil {
		w.rec.QueueDepths(w.pending.Len(), 0)
	}
	return nil
}

// matchUp drains the pending queue while its head can make progress,
// attempting to pair each L1Accept's outstanding PV bits and passing
// transitions straight through.
func (w *Worker) matchUp() error {
	for {
		evt, ok := w.pending.Peek()
		if !ok {
			return nil
		}

		if evt.Header.Service == xtc.L1Accept {
			if w.cfg.Degree == 0 {
				w.matchAllDegreeZero(evt)
			} else if done := w.matchPVs(evt); !done {
				return nil
			}
			if evt.Remaining != 0 {
				return nil
			}
		} else {
			if err := w.handleTransition(evt); err != nil {
				return err
			}
		}

		w.pending.Pop()
		if err := w.dispatch(evt); err != nil {
			return err
		}
	}
}

// matchAllDegreeZero treats every still-outstanding PV as already matched,
// the only path by which degree-0's "everything matches" behavior is
// reached (see package doc): it never calls Compare against a live PV
// timestamp.
func (w *Worker) matchAllDegreeZero(evt *PendingEvent) {
	for _, id := range setBitsAscending(evt.Remaining) {
		mon := w.monitors[id]
		dg, ok := mon.Pop()
		if !ok {
			continue
		}
		w.copyPVInto(evt, dg)
		mon.Release(dg)
		evt.Remaining &^= 1 << id
	}
}

// matchPVs applies the three comparison rules to every outstanding PV bit
// of evt, in ascending id order. It returns false if the inner loop broke
// early on an "event newer" (PV older) result (§4.4 step 2's "break inner loop"), which
// the caller (matchUp) must treat the same as "remaining != 0": wait for
// more PVs or a timeout.
func (w *Worker) matchPVs(evt *PendingEvent) bool {
	for _, id := range setBitsAscending(evt.Remaining) {
		mon := w.monitors[id]
		dg, ok := mon.Peek()
		if !ok {
			continue // leave bit set
		}

		switch result := Compare(evt.Header.Time, dg.Time, w.cfg.Degree); {
		case result == 0:
			mon.Pop()
			w.copyPVInto(evt, dg)
			mon.Release(dg)
			evt.Remaining &^= 1 << id
			if w.rec != nil {
				w.rec.TimeDiff(0)
			}

		case result < 0: // event older: no earlier PV will ever arrive
			evt.Xtc.Damage.Increase(xtc.DamageMissingData)
			evt.Remaining &^= 1 << id

		default: // result > 0, event newer: this PV is stale, discard it
			mon.Pop()
			mon.Release(dg)
			if w.rec != nil {
				w.rec.PVDiscarded()
			}
			return false
		}
	}
	return true
}

func (w *Worker) copyPVInto(evt *PendingEvent, dg *pv.Datagram) {
	if err := xtc.WriteRawArray(evt.Xtc, dg.Shape, dg.Payload); err != nil {
		// The PV does not fit in the remaining pebble space. Alloc has
		// refused to write anything, so the event is marked MissingData
		// here; the over-size guard in dispatch never sees this case.
		evt.Xtc.Damage.Increase(xtc.DamageMissingData)
		return
	}
	if dg.Truncated {
		evt.Xtc.Damage.Increase(xtc.DamageTruncated)
	}
}

// handleTransition copies a transition's payload into its paired
// transition-pool slot and updates run state on Enable/Disable. A nil
// slot (shutdown in progress) is not an error: the transition is still
// dispatched, just without a payload.
func (w *Worker) handleTransition(evt *PendingEvent) error {
	if buf := w.trPool.Buffer(evt.PebbleIndex); buf != nil {
		trXtc := xtc.NewXtc(buf)
		if _, err := trXtc.Alloc(len(evt.rawPayload)); err != nil {
			return fmt.Errorf("match: transition %s payload exceeds maxTrSize: %w", evt.Header.Service, err)
		}
		copy(buf, evt.rawPayload)
		evt.Xtc = trXtc
	} else {
		evt.Xtc = xtc.NewXtc(nil)
	}

	switch evt.Header.Service {
	case xtc.Enable:
		w.running = true
	case xtc.Disable:
		w.running = false
	}
	w.pool.Free(evt.PebbleIndex)
	return nil
}

// dispatch sends evt downstream, enforcing an over-size guard. In
// practice this can only trip for a configuration bug: evt.Xtc already
// wraps a buffer sized to BufferSize (L1Accept) or
// MaxTrSize (transition), so WriteRawArray/Alloc refuse any write that
// would overflow it before dispatch is ever reached.
func (w *Worker) dispatch(evt *PendingEvent) error {
	limit := w.pool.BufferSize()
	if evt.Header.Service.IsTransition() {
		limit = w.cfg.MaxTrSize
	}
	if evt.Xtc.Len() > limit {
		return fmt.Errorf("match: datagram for pebble %d is %d bytes, exceeds limit %d", evt.PebbleIndex, evt.Xtc.Len(), limit)
	}

	if err := w.contributor.Send(evt.PebbleIndex, evt.Header, evt.Xtc.Payload(), evt.Xtc.Damage); err != nil {
		return fmt.Errorf("match: send to contributor: %w", err)
	}
	if evt.Header.Service == xtc.L1Accept {
		// The contributor has accepted the datagram; the pebble can be
		// reused. Transition pebbles are freed in handleTransition.
		w.pool.Free(evt.PebbleIndex)
	}

	if w.rec != nil {
		switch {
		case evt.Xtc.Damage.Has(xtc.DamageTimedOut):
			w.rec.MatchTimedOut()
		case evt.Xtc.Damage.Has(xtc.DamageMissingData):
			w.rec.MatchMissingData()
		default:
			w.rec.MatchOK()
		}
	}
	return nil
}

// timeout ages out stale PV entries and, if the pending queue's head is a
// stale L1Accept, damages and dispatches it.
func (w *Worker) timeout(watermark xtc.TimeStamp) error {
	for _, mon := range w.monitors {
		for mon.Timeout(watermark) {
			if w.rec != nil {
				w.rec.PVMissed()
			}
		}
	}

	evt, ok := w.pending.Peek()
	if ok && evt.Header.Service == xtc.L1Accept && !evt.Header.Time.After(watermark) {
		w.pending.Pop()
		evt.Xtc.Damage.Increase(xtc.DamageTimedOut)
		if err := w.dispatch(evt); err != nil {
			return err
		}
	}

	w.contributor.Tick()
	return nil
}

// Running reports whether the pipeline has most recently seen an Enable
// transition without a subsequent Disable.
func (w *Worker) Running() bool { return w.running }
