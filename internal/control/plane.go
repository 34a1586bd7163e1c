// Package control implements the Control Plane (C6): the JSON command-bus
// handler that translates external transitions into lifecycle operations
// on the buffer pool, DMA reader, PV monitors, and Matcher, and carries
// configuration (PV specs, names lookup) through the pipeline.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/gadorlhiac/pvdrp/internal/config"
	"github.com/gadorlhiac/pvdrp/internal/dma"
	"github.com/gadorlhiac/pvdrp/internal/groutine"
	"github.com/gadorlhiac/pvdrp/internal/match"
	"github.com/gadorlhiac/pvdrp/internal/pebble"
	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/teb"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// TransportFactory constructs the external PV transport for one parsed
// spec; it is the seam between this repo's domain and the out-of-scope
// PV client library.
type TransportFactory func(spec pv.Spec) (pv.Transport, error)

// Plane is the Control Plane (C6). It owns the long-lived collaborators
// (buffer pools, DMA reader, PV registry) across configure/unconfigure
// cycles and the Matcher's lifecycle within one.
type Plane struct {
	params  *config.Parameters
	driver  dma.Driver
	newTr   TransportFactory
	contrib teb.Contributor
	trigger teb.TriggerPrimitive
	rec     match.Recorder
	log     logrus.FieldLogger

	notify         chan pv.Notification
	async          chan AsyncNotification
	notifyPumpOnce sync.Once

	// connected is true between a successful connect and the matching
	// disconnect/reset; it gates configure.
	connected bool
	monitors  []*pv.Monitor
	byAlias   *hashmap.Map[string, *pv.Monitor]

	pool        *pebble.Pool
	trPool      *pebble.TransitionPool
	reader      *dma.Reader
	namesLookup xtc.NamesLookup

	worker       *match.Worker
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	// infoRecord is the pvdetinfo record built at configure time: the
	// declared alias list and PV name list, comma/newline-delimited, so a
	// consumer can round-trip an alias back to its full PV name. It is
	// exposed for the inspect CLI surface; nothing downstream in this repo
	// consumes it, since the real destination (the event-builder's
	// pvdetinfo_<detName> record) is the out-of-scope container format's
	// concern.
	infoRecord []byte

	// pendingUnconfigure implements the phase-1/phase-2 transition split:
	// an unconfigure received while the Matcher reports Running() is
	// deferred until a subsequent endrun/disable observes running has
	// gone false.
	pendingUnconfigure bool
}

// New creates a Plane. params must already be defaulted and validated
// (internal/config.Parameters.WithDefaults/Validate). contributor and
// trigger are the C5 collaborators; trigger may be nil.
func New(params *config.Parameters, driver dma.Driver, newTransport TransportFactory, contributor teb.Contributor, trigger teb.TriggerPrimitive, rec match.Recorder, log logrus.FieldLogger) *Plane {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Plane{
		params:  params,
		driver:  driver,
		newTr:   newTransport,
		contrib: contributor,
		trigger: trigger,
		rec:     rec,
		log:     log,
		notify:  make(chan pv.Notification, 64),
		async:   make(chan AsyncNotification, 64),
		byAlias: hashmap.New[string, *pv.Monitor](),
	}
}

// Notifications returns the channel a CLI subcommand drains for async
// disconnect/probe-failure reports carried on the async_error/async_warn
// side channel.
func (p *Plane) Notifications() <-chan AsyncNotification { return p.async }

// InfoRecord returns the pvdetinfo record built at the most recent
// configure, or nil if not currently configured.
func (p *Plane) InfoRecord() []byte { return p.infoRecord }

// NamesLookup returns the names-lookup table built at the most recent
// configure, or nil if not currently configured.
func (p *Plane) NamesLookup() xtc.NamesLookup { return p.namesLookup }

// MonitorByAlias looks up a connected PV's Monitor by alias, for the
// inspect CLI surface.
func (p *Plane) MonitorByAlias(alias string) (*pv.Monitor, bool) {
	return p.byAlias.Get(alias)
}

// Running reports whether the Matcher is currently configured and
// reports itself running (between an Enable and the next Disable).
func (p *Plane) Running() bool {
	return p.worker != nil && p.worker.Running()
}

// PoolAvailable reports how many L1Accept pebbles are currently free, or
// 0 if not configured. For the inspect CLI surface.
func (p *Plane) PoolAvailable() int {
	if p.pool == nil {
		return 0
	}
	return p.pool.Available()
}

// ReaderStats reports the DMA reader's error/skip counters, or a zero
// value if not configured. For the inspect CLI surface.
func (p *Plane) ReaderStats() dma.Stats {
	if p.reader == nil {
		return dma.Stats{}
	}
	return p.reader.Stats()
}

// pumpNotifications forwards PV monitor notifications onto the public
// async channel until ctx is cancelled, converting the pv package's
// internal Notification shape into AsyncNotification.
func (p *Plane) pumpNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.notify:
			select {
			case p.async <- fromPVNotification(n):
			default:
			}
		}
	}
}

// Dispatch decodes and executes one command-bus message, returning the
// response to send back over the bus.
func (p *Plane) Dispatch(ctx context.Context, msg Message) Response {
	var err error
	switch msg.Header.Key {
	case KeyConnect:
		err = p.handleConnect(msg.Body)
	case KeyDisconnect:
		err = p.handleDisconnect()
	case KeyConfigure:
		err = p.handleConfigure(ctx)
	case KeyUnconfigure:
		err = p.handleUnconfigure()
	case KeyBeginRun:
		err = p.handleBeginRun()
	case KeyEndRun:
		err = p.handleEndRun()
	case KeyEnable:
		err = p.handleEnable()
	case KeyDisable:
		err = p.handleDisable()
	case KeyReset:
		err = p.handleReset()
	default:
		err = fmt.Errorf("control: unrecognized command key %q", msg.Header.Key)
	}
	if err != nil {
		p.log.WithField("key", msg.Header.Key).WithError(err).Warn("command failed")
		return fail(msg.Header, err)
	}
	return ok(msg.Header)
}

// handleConnect parses PV specs (up to MaxPVs), constructs a Transport
// and Monitor for each in declared order,
// and populates the alias registry. It does not size the monitors'
// freelists: that happens at configure, once GetParams can block for
// parameters.
func (p *Plane) handleConnect(body json.RawMessage) error {
	if p.connected {
		return fmt.Errorf("control: already connected")
	}

	var cb connectBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &cb); err != nil {
			return fmt.Errorf("control: decode connect body: %w", err)
		}
	}
	if len(cb.PVs) > match.MaxPVs {
		return fmt.Errorf("control: %d PVs exceeds the %d-PV maximum", len(cb.PVs), match.MaxPVs)
	}

	specs := orderedmap.New[string, pv.Spec]()
	for _, raw := range cb.PVs {
		spec, err := pv.ParseSpec(raw, p.params.Alias, 0)
		if err != nil {
			return err
		}
		if _, exists := specs.Get(spec.Alias); exists {
			return fmt.Errorf("control: duplicate pv alias %q", spec.Alias)
		}
		specs.Set(spec.Alias, spec)
	}

	var monitors []*pv.Monitor
	var id uint32
	for pair := specs.Oldest(); pair != nil; pair = pair.Next() {
		transport, err := p.newTr(pair.Value)
		if err != nil {
			return fmt.Errorf("control: pv %s: open transport: %w", pair.Key, err)
		}
		mon := pv.NewMonitor(id, pair.Value, transport, p.notify, p.log)
		monitors = append(monitors, mon)
		p.byAlias.Insert(pair.Key, mon)
		id++
	}

	p.monitors = monitors
	p.connected = true
	p.notifyPumpOnce.Do(func() {
		groutine.Go(context.Background(), "pvdrp-notify-pump", p.pumpNotifications)
	})
	return nil
}

// handleDisconnect tears down every PV monitor and clears the registry.
// It is a no-op if nothing is connected.
func (p *Plane) handleDisconnect() error {
	if p.worker != nil {
		return fmt.Errorf("control: disconnect while configured; unconfigure first")
	}
	for _, mon := range p.monitors {
		mon.Shutdown()
		p.byAlias.Del(mon.Alias())
	}
	p.monitors = nil
	p.connected = false
	return nil
}

// handleConfigure sizes the buffer pools, blocks (bounded, per PV) for
// every monitor's parameters, builds the names-lookup and info record,
// and spawns the Matcher.
func (p *Plane) handleConfigure(ctx context.Context) error {
	if !p.connected {
		return fmt.Errorf("control: configure before connect")
	}
	if p.worker != nil {
		return fmt.Errorf("control: already configured")
	}

	pool, err := pebble.New(p.params.NBuffers, p.params.BufferSize)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}
	trPool := pebble.NewTransitionPool(p.params.NBuffers, p.params.MaxTrSize)
	reader := dma.NewReader(p.driver, pool, uint32(p.params.NBuffers), p.params.NBuffers)

	fields := make([]pvFieldInfo, len(p.monitors))
	pvSources := make([]match.PVSource, len(p.monitors))
	for i, mon := range p.monitors {
		field, dataType, rank, _, err := mon.GetParams(ctx, p.params.NBuffers)
		if err != nil {
			return fmt.Errorf("control: pv %s: %w", mon.Alias(), err)
		}
		fields[i] = pvFieldInfo{field: field, dataType: dataType, rank: rank}
		pvSources[i] = mon
	}

	p.namesLookup = buildNamesLookup(p.params.DetType, p.params.SerNo, p.monitors, fields)

	keys, names := buildInfoRecord(p.monitors)
	infoBuf := make([]byte, 4+len(keys)+4+len(names))
	infoXtc := xtc.NewXtc(infoBuf)
	if err := xtc.WriteInfoRecord(infoXtc, keys, names); err != nil {
		return fmt.Errorf("control: build info record: %w", err)
	}
	p.infoRecord = infoXtc.Payload()

	adapter := teb.New(p.contrib, p.trigger)
	cfg := match.Config{Degree: p.params.TsMatchDegree, Timeout: p.params.MatchTimeout(), MaxTrSize: p.params.MaxTrSize}
	worker, err := match.New(cfg, reader, pool, trPool, pvSources, adapter, p.rec, p.log, p.params.NBuffers)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}

	p.pool, p.trPool, p.reader, p.worker = pool, trPool, reader, worker

	runCtx, cancel := context.WithCancel(context.Background())
	p.workerCancel = cancel
	p.workerDone = make(chan struct{})
	groutine.Go(runCtx, "pvdrp-matcher", func(ctx context.Context) {
		defer close(p.workerDone)
		if err := worker.Run(ctx); err != nil {
			p.log.WithError(err).Error("matcher aborted")
		}
	})
	return nil
}

// handleUnconfigure stops the Matcher and releases its resources. A
// mid-run unconfigure (Matcher still Running()) is deferred: see
// pendingUnconfigure.
func (p *Plane) handleUnconfigure() error {
	if p.worker == nil {
		return nil
	}
	if p.worker.Running() {
		p.pendingUnconfigure = true
		return nil
	}
	return p.doUnconfigure()
}

func (p *Plane) doUnconfigure() error {
	p.workerCancel()
	<-p.workerDone

	for _, mon := range p.monitors {
		mon.Shutdown()
	}
	p.trPool.Shutdown()
	p.namesLookup = nil
	p.infoRecord = nil
	p.pool = nil
	p.reader = nil
	p.worker = nil
	p.workerCancel = nil
	p.workerDone = nil
	p.pendingUnconfigure = false
	return nil
}

// handleBeginRun and handleEndRun acknowledge the administrative
// command-bus transition; the matching detector-side BeginRun/EndRun
// service code arrives separately as a transition datagram through the
// DMA stream and is handled by the Matcher.
func (p *Plane) handleBeginRun() error {
	if p.worker == nil {
		return fmt.Errorf("control: beginrun before configure")
	}
	return nil
}

func (p *Plane) handleEndRun() error {
	if p.worker == nil {
		return fmt.Errorf("control: endrun before configure")
	}
	return p.completePendingUnconfigure()
}

func (p *Plane) handleEnable() error {
	if p.worker == nil {
		return fmt.Errorf("control: enable before configure")
	}
	return nil
}

func (p *Plane) handleDisable() error {
	if p.worker == nil {
		return fmt.Errorf("control: disable before configure")
	}
	return p.completePendingUnconfigure()
}

// completePendingUnconfigure finishes a deferred unconfigure once the
// Matcher reports it is no longer running.
func (p *Plane) completePendingUnconfigure() error {
	if p.pendingUnconfigure && p.worker != nil && !p.worker.Running() {
		return p.doUnconfigure()
	}
	return nil
}

// handleReset forces a full teardown: unconfigure then disconnect.
func (p *Plane) handleReset() error {
	if p.worker != nil {
		p.pendingUnconfigure = false
		if err := p.doUnconfigure(); err != nil {
			return err
		}
	}
	if p.connected {
		if err := p.handleDisconnect(); err != nil {
			return err
		}
	}
	return nil
}
