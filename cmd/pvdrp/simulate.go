package main

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gadorlhiac/pvdrp/internal/dma"
	"github.com/gadorlhiac/pvdrp/internal/groutine"
	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// simTransport is a software stand-in for the external PV transport
// library: it reports a fixed scalar-array shape after a short warmup
// and, once started,
// calls back into a Monitor on its own ticker, the same callback-thread
// contract a real pvAccess/channel-access client would offer.
//
// jitter lets the run subcommand model a PV that lags or leads the DMA
// stream, which is what actually exercises the three compare() outcomes
// in a live demo rather than only in unit tests.
type simTransport struct {
	nElem    int
	dataType xtc.DataType
	rank     int

	armed atomic.Bool

	mu        sync.Mutex
	payload   []byte
	timestamp xtc.TimeStamp
	request   string
}

func newSimTransport(nElem int, dataType xtc.DataType, rank int) *simTransport {
	return &simTransport{nElem: nElem, dataType: dataType, rank: rank}
}

func (t *simTransport) TryGetParams() (xtc.DataType, int, int, bool, error) {
	if !t.armed.Load() {
		return 0, 0, 0, false, nil
	}
	return t.dataType, t.nElem, t.rank, true, nil
}

func (t *simTransport) Timestamp() (xtc.TimeStamp, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timestamp, nil
}

// Configure records the pvRequest string a real client would use to open
// the live subscription. The simulator already free-runs its own ticker,
// so there is nothing to (re)subscribe to; recording the string is enough
// to let a demo print what would have been sent over the wire.
func (t *simTransport) Configure(request string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.request = request
	return nil
}

func (t *simTransport) Fetch(buf []byte) (shape [xtc.MaxRank]uint32, n int, truncated bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	shape[0] = uint32(t.nElem)
	n = copy(buf, t.payload)
	truncated = n < len(t.payload)
	return shape, n, truncated, nil
}

// run starts delivering updates every period, offset from the wall clock
// by jitter (which may be negative to model a lagging PV), until ctx is
// cancelled. mon is notified once per tick via Updated, matching the
// transport-callback-thread contract a real PV client offers.
func (t *simTransport) run(ctx context.Context, mon *pv.Monitor, period, jitter time.Duration) {
	elemSize := xtc.ElementSize(t.dataType)
	payload := make([]byte, t.nElem*elemSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	mon.OnConnect()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.mu.Lock()
			t.payload = payload
			t.timestamp = xtc.FromTime(now.Add(jitter))
			t.mu.Unlock()
			t.armed.Store(true)
			mon.Updated()
		}
	}
}

// simDMAProducer drives a dma.SimDriver with synthetic L1Accept
// completions at a fixed rate, standing in for the external DMA/PGP
// driver. evtCounter increments once per completion and is what
// dma.Reader derives the (diagnostic-only) pgpIndex from.
type simDMAProducer struct {
	driver   *dma.SimDriver
	nBuffers int
	bufSize  int

	evtCounter uint64
}

func newSimDMAProducer(driver *dma.SimDriver, nBuffers, bufSize int) *simDMAProducer {
	return &simDMAProducer{driver: driver, nBuffers: nBuffers, bufSize: bufSize}
}

// run pushes one L1Accept completion every period until ctx is
// cancelled, round-robining through the driver's mapped buffers.
func (p *simDMAProducer) run(ctx context.Context, period time.Duration) {
	body := make([]byte, 64)
	rng := rand.New(rand.NewSource(1))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rng.Read(body)
			bufIdx := uint32(p.evtCounter % uint64(p.nBuffers))
			buf := p.driver.Buffer(bufIdx)
			hdr := xtc.Header{Time: xtc.FromTime(now), Service: xtc.L1Accept, Source: 0}
			n := dma.EncodeHeader(buf, hdr, p.evtCounter, body)
			p.evtCounter++
			_ = p.driver.Push(dma.Completion{BufferIndex: bufIdx, RetLen: n, Data: buf})
		}
	}
}

// startSimulation wires a simDMAProducer and one simTransport per monitor
// and launches them as named goroutines, returning a stop function.
func startSimulation(driver *dma.SimDriver, nBuffers, bufSize int, dmaPeriod time.Duration, monitors []*pv.Monitor, transports []*simTransport, pvPeriod, pvJitter time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())

	producer := newSimDMAProducer(driver, nBuffers, bufSize)
	groutine.Go(ctx, "pvdrp-sim-dma", func(ctx context.Context) { producer.run(ctx, dmaPeriod) })

	for i, mon := range monitors {
		i, mon, tr := i, mon, transports[i]
		groutine.Go(ctx, "pvdrp-sim-pv", func(ctx context.Context) {
			// Stagger each PV's phase slightly so a multi-PV demo
			// actually exercises partial-match behavior instead of
			// every PV reporting in lockstep.
			tr.run(ctx, mon, pvPeriod, pvJitter+time.Duration(i)*time.Millisecond)
		})
	}

	return cancel
}
