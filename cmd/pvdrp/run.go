package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gadorlhiac/pvdrp/internal/config"
	"github.com/gadorlhiac/pvdrp/internal/control"
	"github.com/gadorlhiac/pvdrp/internal/diag"
	"github.com/gadorlhiac/pvdrp/internal/dma"
	"github.com/gadorlhiac/pvdrp/internal/match"
	"github.com/gadorlhiac/pvdrp/internal/metrics"
	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/teb"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

var runCmd = &cobra.Command{
	Use:   "run [pvspec ...]",
	Short: "Connect, configure, and run the pipeline until interrupted",
	Long: `Connects to up to 32 PVs, configures
the pipeline, enables it, and drives a simulated DMA/PV workload until
interrupted (Ctrl+C), at which point it disables, unconfigures, and
disconnects cleanly and prints a summary.

pvspec := [alias "="] [provider "/"] pvName ["." field] ["," firstDim]

Example: sig=pva/XPP:GON:01.value,128`,
	RunE: runRun,
}

var (
	runPartition      string
	runDevice         string
	runAlias          string
	runLaneMask       uint32
	runDetType        string
	runSerNo          string
	runCollectionHost string
	runKwargs         []string
	runInstrument     string
	runPrometheusDir  string
	runDegreeZero     bool
	runVerbose        bool

	runDuration  time.Duration
	runDMARate   time.Duration
	runPVRate    time.Duration
	runPVJitter  time.Duration
)

func init() {
	runCmd.Flags().StringVarP(&runPartition, "partition", "p", "", "Partition name (required)")
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "DMA device path (required)")
	runCmd.Flags().StringVarP(&runAlias, "alias", "u", "", "Detector alias, must end with _<segment> (required)")
	runCmd.Flags().Uint32VarP(&runLaneMask, "lane-mask", "l", 0, "Lane mask, exactly one bit (required)")
	runCmd.Flags().StringVarP(&runDetType, "det-type", "D", "", "Detector type")
	runCmd.Flags().StringVarP(&runSerNo, "ser-no", "S", "", "Serial number")
	runCmd.Flags().StringVarP(&runCollectionHost, "collection-host", "C", "", "Collection host")
	runCmd.Flags().StringArrayVarP(&runKwargs, "kwarg", "k", nil, "Extra key=value kwarg (repeatable); see internal/config.AllowedKwargs")
	runCmd.Flags().StringVarP(&runInstrument, "instrument", "P", "", "Instrument name")
	runCmd.Flags().StringVarP(&runPrometheusDir, "prometheus-dir", "M", "", "Directory for a node_exporter textfile-collector drop")
	runCmd.Flags().BoolVarP(&runDegreeZero, "ts-match-degree-0", "0", false, "Use ts-match-degree 0 (match everything)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose logging")

	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Run for this long then shut down automatically (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&runDMARate, "dma-period", 20*time.Millisecond, "Simulated DMA event period")
	runCmd.Flags().DurationVar(&runPVRate, "pv-period", 200*time.Millisecond, "Simulated PV update period")
	runCmd.Flags().DurationVar(&runPVJitter, "pv-jitter", 0, "Simulated PV timestamp offset from wall clock (negative lags the DMA stream)")

	for _, name := range []string{"partition", "device", "alias", "lane-mask"} {
		if err := runCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if len(args) > match.MaxPVs {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyPVs, len(args), match.MaxPVs)
	}
	if _, _, err := splitAlias(runAlias); runAlias != "" && err != nil {
		return err
	}

	kwargs, err := parseKwargs(runKwargs)
	if err != nil {
		return err
	}
	if err := config.ValidateKwargs(kwargs); err != nil {
		return err
	}

	params := &config.Parameters{
		Partition:      runPartition,
		Device:         runDevice,
		Alias:          runAlias,
		LaneMask:       runLaneMask,
		DetType:        runDetType,
		SerNo:          runSerNo,
		CollectionHost: runCollectionHost,
		Instrument:     runInstrument,
		PrometheusDir:  runPrometheusDir,
		Verbose:        runVerbose,
		Kwargs:         kwargs,
	}
	applyKwargOverrides(params, kwargs)
	params.WithDefaults()
	if runDegreeZero {
		params.TsMatchDegree = 0
	}
	if err := params.Validate(); err != nil {
		return err
	}

	specs := make([]pv.Spec, len(args))
	for i, raw := range args {
		spec, err := pv.ParseSpec(raw, params.Alias, 0)
		if err != nil {
			return err
		}
		specs[i] = spec
	}

	rec := metrics.New()
	trace, err := diag.NewTrace(4096)
	if err != nil {
		return err
	}
	wrappedRec := diag.NewRecorder(rec, trace)

	driver, err := dma.NewSimDriver(params.NBuffers, params.BufferSize, 250)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer driver.Close()

	contributor := teb.NewLoopback(params.BufferSize+4096, 256)

	var transports []*simTransport
	newTransport := func(spec pv.Spec) (pv.Transport, error) {
		tr := newSimTransport(16, xtc.Float64, 1)
		transports = append(transports, tr)
		return tr, nil
	}

	plane := control.New(params, driver, newTransport, contributor, nil, wrappedRec, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if resp := plane.Dispatch(ctx, connectMessage(args)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("run: connect: %s", resp.Body.ErrInfo.Message)
	}
	if resp := plane.Dispatch(ctx, keyMessage(control.KeyConfigure)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("run: configure: %s", resp.Body.ErrInfo.Message)
	}
	if resp := plane.Dispatch(ctx, keyMessage(control.KeyEnable)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("run: enable: %s", resp.Body.ErrInfo.Message)
	}

	monitors := make([]*pv.Monitor, len(specs))
	for i, spec := range specs {
		mon, ok := plane.MonitorByAlias(spec.Alias)
		if !ok {
			return fmt.Errorf("run: pv %s: monitor not found after configure", spec.Alias)
		}
		monitors[i] = mon
	}
	stopSim := startSimulation(driver, params.NBuffers, params.BufferSize, runDMARate, monitors, transports, runPVRate, runPVJitter)

	isTerm := term.IsTerminal(int(os.Stdout.Fd()))
	logger.WithFields(logrus.Fields{
		"partition": params.Partition,
		"alias":     params.Alias,
		"pvs":       len(specs),
		"degree":    params.TsMatchDegree,
		"terminal":  isTerm,
	}).Info("pipeline running")

	var deadlineCh <-chan time.Time
	if runDuration > 0 {
		deadlineCh = time.After(runDuration)
	}
	statsTicker := time.NewTicker(2 * time.Second)
	defer statsTicker.Stop()

runLoop:
	for {
		select {
		case <-sigCh:
			logger.Info("interrupt received, shutting down")
			break runLoop
		case <-deadlineCh:
			logger.Info("duration elapsed, shutting down")
			break runLoop
		case <-statsTicker.C:
			logStats(logger, plane)
			if params.PrometheusDir != "" {
				if err := rec.WriteTextfile(params.PrometheusDir, "pvdrp.prom"); err != nil {
					logger.WithError(err).Warn("textfile export failed")
				}
			}
		case n := <-plane.Notifications():
			logger.WithField("pv", n.Alias).Warnf("async %s: %s", n.Level, n.Message)
		}
	}

	stopSim()
	_ = plane.Dispatch(ctx, keyMessage(control.KeyDisable))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyEndRun))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyUnconfigure))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyDisconnect))

	logFinalSummary(logger, contributor, trace)
	return nil
}

// applyKwargOverrides maps the allowlisted buffer-sizing kwargs onto
// Parameters fields that have no dedicated CLI flag: these are accepted
// kwargs, not flags.
func applyKwargOverrides(params *config.Parameters, kwargs map[string]string) {
	if v, ok := kwargs["pebbleBufCount"]; ok {
		if n, err := parseIntKwarg(v); err == nil {
			params.NBuffers = n
		}
	}
	if v, ok := kwargs["pebbleBufSize"]; ok {
		if n, err := parseIntKwarg(v); err == nil {
			params.BufferSize = n
		}
	}
	if v, ok := kwargs["match_tmo_ms"]; ok {
		if n, err := parseIntKwarg(v); err == nil {
			params.MatchTimeoutMs = n
		}
	}
}

func parseIntKwarg(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func connectMessage(raws []string) control.Message {
	body, _ := json.Marshal(struct {
		PVs []string `json:"pvs"`
	}{PVs: raws})
	return control.Message{Header: control.Header{Key: control.KeyConnect, MsgId: "run"}, Body: body}
}

func keyMessage(key string) control.Message {
	return control.Message{Header: control.Header{Key: key, MsgId: "run"}}
}

func logStats(logger logrus.FieldLogger, plane *control.Plane) {
	logger.WithFields(logrus.Fields{
		"running":   plane.Running(),
		"available": plane.PoolAvailable(),
		"reader":    fmt.Sprintf("%+v", plane.ReaderStats()),
	}).Info("status")
}

func logFinalSummary(logger logrus.FieldLogger, contributor *teb.Loopback, trace *diag.Trace) {
	received := contributor.Drained()
	var ok, missing, timedOut int
	for _, r := range received {
		switch {
		case r.Damage.Has(xtc.DamageTimedOut):
			timedOut++
		case r.Damage.Has(xtc.DamageMissingData):
			missing++
		default:
			ok++
		}
	}
	logger.WithFields(logrus.Fields{
		"total":        len(received),
		"ok":           ok,
		"missing_data": missing,
		"timed_out":    timedOut,
		"trace_dropped": trace.Overwritten(),
	}).Info("shutdown summary")
}
