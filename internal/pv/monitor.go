// Package pv implements the per-PV connect-time state machine (C3): the
// NotReady -> Armed -> Ready progression that discovers a live PV's shape,
// the freelist/queue pair that hands matched datagrams to the worker, and
// the PV spec grammar the control plane parses at connect time.
package pv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gadorlhiac/pvdrp/internal/ringqueue"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// Datagram is one PV update, queued between the transport callback
// (producer) and the Matcher (consumer). buf is the full-capacity backing
// array; Payload is the prefix of it actually written by the most recent
// Fetch.
type Datagram struct {
	Time      xtc.TimeStamp
	PvIndex   uint32
	Shape     [xtc.MaxRank]uint32
	Payload   []byte
	Truncated bool

	buf []byte
}

// Stats is a snapshot of a Monitor's update counters.
type Stats struct {
	Updates   uint64
	Missed    uint64
	Truncated uint64
}

// Monitor tracks one PV's connect-time state machine and the bounded
// freelist/queue pair that moves its updates to the Matcher. A Monitor is
// safe for concurrent use: Updated is called from the transport's callback
// goroutine, GetParams from the control plane's configure goroutine, and
// Pop/Peek/Timeout/Release from the Matcher's worker goroutine.
type Monitor struct {
	id               uint32
	spec             Spec
	firstDimOverride uint32

	transport Transport
	notify    chan<- Notification
	log       logrus.FieldLogger

	state atomic.Int32

	mu          sync.Mutex
	dataType    xtc.DataType
	nElem       int
	rank        int
	payloadSize int
	request     string
	armed       chan struct{}
	armedClosed bool

	freelist *ringqueue.Queue[*Datagram]
	pvQueue  *ringqueue.Queue[*Datagram]

	nUpdates   atomic.Uint64
	nMissed    atomic.Uint64
	nTruncated atomic.Uint64

	paramWait time.Duration
}

// paramWait bounds how long GetParams waits for the first update to report
// usable type information, matching the original's 3-second bound.
const paramWait = 3 * time.Second

// NewMonitor creates a Monitor for spec, identified within its run by id
// (the bit position in a PendingEvent's remaining bitmask). notify may be
// nil, in which case disconnect/probe-failure warnings are only logged.
func NewMonitor(id uint32, spec Spec, transport Transport, notify chan<- Notification, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		id:               id,
		spec:             spec,
		firstDimOverride: spec.FirstDim,
		transport:        transport,
		notify:           notify,
		log:              log.WithField("pv", spec.Alias),
		armed:            make(chan struct{}),
		paramWait:        paramWait,
	}
}

// paramWaitOverrideForTest shortens the Armed wait bound for tests that
// need to exercise the timeout path without actually waiting 3 seconds.
func (m *Monitor) paramWaitOverrideForTest(d time.Duration) { m.paramWait = d }

func (m *Monitor) ID() uint32        { return m.id }
func (m *Monitor) Alias() string     { return m.spec.Alias }
func (m *Monitor) PVName() string    { return m.spec.PVName }
func (m *Monitor) Provider() string  { return m.spec.Provider }
func (m *Monitor) Field() string     { return m.spec.Field }
func (m *Monitor) State() State      { return State(m.state.Load()) }

// Request returns the pvRequest string built by the most recent
// GetParams, or "" if the monitor has not reached Ready.
func (m *Monitor) Request() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.request
}

func (m *Monitor) Stats() Stats {
	return Stats{
		Updates:   m.nUpdates.Load(),
		Missed:    m.nMissed.Load(),
		Truncated: m.nTruncated.Load(),
	}
}

// Updated is the transport callback entry point, invoked once per live PV
// update. In NotReady/Armed it probes for parameters; in Ready it enqueues
// a datagram.
func (m *Monitor) Updated() {
	if m.State() == Ready {
		m.onReadyUpdate()
		return
	}
	m.tryArm()
}

func (m *Monitor) onReadyUpdate() {
	ts, err := m.transport.Timestamp()
	if err != nil {
		m.warn(fmt.Sprintf("timestamp read failed: %v", err))
		return
	}
	m.nUpdates.Add(1)

	dg, ok := m.freelist.Pop()
	if !ok {
		m.nMissed.Add(1)
		return
	}

	shape, n, truncated, err := m.transport.Fetch(dg.buf)
	if err != nil {
		m.freelist.Push(dg)
		m.warn(fmt.Sprintf("data fetch failed: %v", err))
		return
	}

	dg.Time = ts
	dg.PvIndex = m.id
	dg.Shape = m.applyFirstDimOverride(shape)
	dg.Payload = dg.buf[:n]
	dg.Truncated = truncated
	if truncated {
		m.nTruncated.Add(1)
	}

	if !m.pvQueue.Push(dg) {
		m.freelist.Push(dg)
		m.nMissed.Add(1)
	}
}

func (m *Monitor) applyFirstDimOverride(shape [xtc.MaxRank]uint32) [xtc.MaxRank]uint32 {
	if m.firstDimOverride == 0 {
		return shape
	}
	// Reinterpret the delivered shape as [firstDim, total/firstDim].
	total := shape[0]
	for _, dim := range shape[1:] {
		if dim == 0 {
			break
		}
		total *= dim
	}
	return [xtc.MaxRank]uint32{m.firstDimOverride, total / m.firstDimOverride}
}

// tryArm attempts the NotReady -> Armed transition. It is called both from
// Updated (the async path) and from GetParams (the synchronous fast path,
// matching the original's "parameters already available" branch).
func (m *Monitor) tryArm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if State(m.state.Load()) != NotReady {
		return
	}
	dt, nElem, rank, ok, err := m.transport.TryGetParams()
	if err != nil {
		m.warn(fmt.Sprintf("parameter probe failed: %v", err))
		return
	}
	if !ok {
		return
	}
	m.dataType, m.nElem, m.rank = dt, nElem, rank
	m.state.Store(int32(Armed))
	if !m.armedClosed {
		m.armedClosed = true
		close(m.armed)
	}
}

// GetParams blocks (up to paramWait, or until ctx is cancelled) for the PV
// to reach Armed, then completes the Armed -> Ready transition: it sizes
// the per-PV freelist and pvQueue to nBuffers entries of the reported
// element size and opens them for business. It returns the field name,
// reported element type, the (possibly firstDim-overridden) rank, and the
// request string built for this PV's provider.
func (m *Monitor) GetParams(ctx context.Context, nBuffers int) (field string, dataType xtc.DataType, rank int, request string, err error) {
	if m.State() == NotReady {
		m.tryArm()
		if m.State() == NotReady {
			select {
			case <-m.armed:
			case <-time.After(m.paramWait):
				return "", 0, 0, "", fmt.Errorf("pv %s: timed out waiting for parameters", m.spec.Alias)
			case <-ctx.Done():
				return "", 0, 0, "", ctx.Err()
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if State(m.state.Load()) == NotReady {
		return "", 0, 0, "", fmt.Errorf("pv %s: parameters never arrived", m.spec.Alias)
	}

	effectiveRank := m.rank
	if m.firstDimOverride != 0 {
		if effectiveRank != 2 {
			m.log.Warnf("firstDim override forces rank 2 (reported rank was %d)", effectiveRank)
		}
		effectiveRank = 2
	}
	m.rank = effectiveRank
	m.payloadSize = m.nElem * xtc.ElementSize(m.dataType)
	m.request = BuildRequest(m.spec.Provider, m.spec.Field, effectiveRank)
	if err := m.transport.Configure(m.request); err != nil {
		return "", 0, 0, "", fmt.Errorf("pv %s: configure request %q: %w", m.spec.Alias, m.request, err)
	}

	m.allocateLocked(nBuffers)
	m.state.Store(int32(Ready))

	return m.spec.Field, m.dataType, effectiveRank, m.request, nil
}

func (m *Monitor) allocateLocked(nBuffers int) {
	m.freelist = ringqueue.New[*Datagram](nBuffers)
	m.pvQueue = ringqueue.New[*Datagram](nBuffers)
	for i := 0; i < nBuffers; i++ {
		m.freelist.Push(&Datagram{buf: make([]byte, m.payloadSize)})
	}
}

// Shutdown returns the Monitor to NotReady, closes its queues, and resets
// its counters, ready for a subsequent configure to call GetParams again.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(int32(NotReady))
	if m.pvQueue != nil {
		m.pvQueue.Close()
	}
	if m.freelist != nil {
		m.freelist.Close()
	}
	m.nUpdates.Store(0)
	m.nMissed.Store(0)
	m.nTruncated.Store(0)
	m.armed = make(chan struct{})
	m.armedClosed = false
}

// OnConnect logs a successful channel connection. It does not affect the
// state machine: Updated still gates progress on a real update arriving.
func (m *Monitor) OnConnect() {
	m.log.Info("connected")
}

// OnDisconnect surfaces a warning without touching the state machine: a
// stale Ready monitor keeps matching against whatever it already queued,
// and will time out normally if no further update arrives.
func (m *Monitor) OnDisconnect() {
	m.warn("disconnected")
}

// Peek returns the head of the PV queue without consuming it.
func (m *Monitor) Peek() (*Datagram, bool) { return m.pvQueue.Peek() }

// Pop consumes and returns the head of the PV queue.
func (m *Monitor) Pop() (*Datagram, bool) { return m.pvQueue.Pop() }

// Release returns a consumed datagram's buffer to the freelist.
func (m *Monitor) Release(dg *Datagram) { m.freelist.Push(dg) }

// Timeout discards the head PV datagram if it is no newer than watermark,
// returning its buffer to the freelist and reporting whether it did so.
func (m *Monitor) Timeout(watermark xtc.TimeStamp) bool {
	dg, ok := m.pvQueue.Peek()
	if !ok {
		return false
	}
	if dg.Time.After(watermark) {
		return false
	}
	m.pvQueue.Pop()
	m.freelist.Push(dg)
	return true
}

func (m *Monitor) warn(msg string) {
	m.log.Warn(msg)
	if m.notify == nil {
		return
	}
	select {
	case m.notify <- Notification{Alias: m.spec.Alias, Message: msg, Level: LevelWarn}:
	default:
	}
}
