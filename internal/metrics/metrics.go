// Package metrics exposes the pipeline's per-run drp_* counters and
// gauges as prometheus collectors. A Recorder is created once by the CLI
// through New, against its own fresh registry; configure and unconfigure
// neither create nor unregister it, so counters accumulate across
// configure cycles of one process. The wire protocol a real exporter
// would speak is out of scope; the counters themselves are the in-scope
// ambient observability surface.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Recorder implements match.Recorder and the DMA-side counters, backed
// by a dedicated prometheus.Registry so its metrics stay separate from
// the default registry.
type Recorder struct {
	reg *prometheus.Registry

	matchCount   prometheus.Counter
	emptyCount   prometheus.Counter
	missCount    prometheus.Counter
	tooOldCount  prometheus.Counter
	timeoutCount prometheus.Counter
	timeDiff     prometheus.Histogram
	inputDepth   prometheus.Gauge
	outputDepth  prometheus.Gauge

	dmaReadErrors prometheus.Counter
	dmaBroken     prometheus.Counter
	dmaExhausted  prometheus.Counter
}

// New creates a Recorder and registers its collectors on a fresh
// registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		matchCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_match_count", Help: "L1Accept events dispatched with no damage.",
		}),
		emptyCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_empty_count", Help: "PV updates discarded because a fresher event pushed past them.",
		}),
		missCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_miss_count", Help: "PV updates aged out at the timeout watermark without being matched.",
		}),
		tooOldCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_tooOld_count", Help: "L1Accept events dispatched with MissingData damage.",
		}),
		timeoutCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_timeout_count", Help: "L1Accept events dispatched with TimedOut damage.",
		}),
		timeDiff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "drp_time_diff", Help: "Seconds between an event's timestamp and its matched PV's timestamp.",
		}),
		inputDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drp_worker_input_queue", Help: "Pending-event queue depth after the most recent admit.",
		}),
		outputDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drp_worker_output_queue", Help: "Contributor-bound queue depth, if the contributor reports one.",
		}),
		dmaReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_dma_read_errors", Help: "DMA ring read errors.",
		}),
		dmaBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_dma_broken", Help: "DMA completions skipped for zero length or a broken flag.",
		}),
		dmaExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drp_dma_pebble_exhausted", Help: "DMA completions dropped because the pebble pool was exhausted.",
		}),
	}
	reg.MustRegister(
		r.matchCount, r.emptyCount, r.missCount, r.tooOldCount, r.timeoutCount,
		r.timeDiff, r.inputDepth, r.outputDepth,
		r.dmaReadErrors, r.dmaBroken, r.dmaExhausted,
	)
	return r
}

// Registry returns the recorder's registry, for the CLI's -M
// prometheusDir exposition.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) MatchOK()          { r.matchCount.Inc() }
func (r *Recorder) MatchMissingData() { r.tooOldCount.Inc() }
func (r *Recorder) MatchTimedOut()    { r.timeoutCount.Inc() }
func (r *Recorder) PVDiscarded()      { r.emptyCount.Inc() }
func (r *Recorder) PVMissed()         { r.missCount.Inc() }

func (r *Recorder) TimeDiff(d time.Duration) {
	r.timeDiff.Observe(d.Seconds())
}

func (r *Recorder) QueueDepths(input, output int) {
	r.inputDepth.Set(float64(input))
	r.outputDepth.Set(float64(output))
}

func (r *Recorder) DMAReadError()     { r.dmaReadErrors.Inc() }
func (r *Recorder) DMABroken()        { r.dmaBroken.Inc() }
func (r *Recorder) DMAExhausted()     { r.dmaExhausted.Inc() }

// WriteTextfile gathers the registry's current state and writes it as a
// node_exporter textfile-collector file named name under dir, via a
// temp-file-then-rename so a concurrent scrape of dir never observes a
// partial write. This backs the CLI's -M prometheusDir flag.
func (r *Recorder) WriteTextfile(dir, name string) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("metrics: create textfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close textfile: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
