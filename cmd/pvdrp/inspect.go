package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gadorlhiac/pvdrp/internal/config"
	"github.com/gadorlhiac/pvdrp/internal/control"
	"github.com/gadorlhiac/pvdrp/internal/diag"
	"github.com/gadorlhiac/pvdrp/internal/dma"
	"github.com/gadorlhiac/pvdrp/internal/metrics"
	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/teb"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [pvspec ...]",
	Short: "Run a bounded demo session and report match decisions",
	Long: `Connects to up to 32 PVs, configures and enables the pipeline, runs a
simulated DMA/PV workload for a fixed duration, then prints a colorized
table of the most recent match decisions and the final damage counts.
Intended to answer "what did the matcher just do" without a live
event-builder or PV fabric attached.`,
	RunE: runInspect,
}

var (
	inspectDuration time.Duration
	inspectVerbose  bool
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectDuration, "duration", 3*time.Second, "How long to run the demo session")
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "Verbose logging")
}

func runInspect(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if len(args) == 0 {
		args = []string{"sig=pva/XPP:GON:01.value,128"}
	}

	params := (&config.Parameters{
		Partition: "inspect",
		Device:    "/dev/sim",
		Alias:     "pv_0",
		LaneMask:  1,
	}).WithDefaults()

	specs := make([]pv.Spec, len(args))
	for i, raw := range args {
		spec, err := pv.ParseSpec(raw, params.Alias, 0)
		if err != nil {
			return err
		}
		specs[i] = spec
	}

	rec := metrics.New()
	trace, err := diag.NewTrace(1024)
	if err != nil {
		return err
	}
	wrappedRec := diag.NewRecorder(rec, trace)

	driver, err := dma.NewSimDriver(params.NBuffers, params.BufferSize, 250)
	if err != nil {
		return err
	}
	defer driver.Close()

	contributor := teb.NewLoopback(params.BufferSize+4096, 64)

	var transports []*simTransport
	newTransport := func(spec pv.Spec) (pv.Transport, error) {
		tr := newSimTransport(16, xtc.Float64, 1)
		transports = append(transports, tr)
		return tr, nil
	}

	plane := control.New(params, driver, newTransport, contributor, nil, wrappedRec, logger)
	ctx := context.Background()

	if resp := plane.Dispatch(ctx, connectMessage(args)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("inspect: connect: %s", resp.Body.ErrInfo.Message)
	}
	if resp := plane.Dispatch(ctx, keyMessage(control.KeyConfigure)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("inspect: configure: %s", resp.Body.ErrInfo.Message)
	}
	if resp := plane.Dispatch(ctx, keyMessage(control.KeyEnable)); resp.Body.ErrInfo != nil {
		return fmt.Errorf("inspect: enable: %s", resp.Body.ErrInfo.Message)
	}

	monitors := make([]*pv.Monitor, len(specs))
	for i, spec := range specs {
		mon, ok := plane.MonitorByAlias(spec.Alias)
		if !ok {
			return fmt.Errorf("inspect: pv %s: monitor not found after configure", spec.Alias)
		}
		monitors[i] = mon
	}
	stopSim := startSimulation(driver, params.NBuffers, params.BufferSize, 20*time.Millisecond, monitors, transports, 200*time.Millisecond, 0)

	time.Sleep(inspectDuration)

	stopSim()
	_ = plane.Dispatch(ctx, keyMessage(control.KeyDisable))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyEndRun))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyUnconfigure))
	_ = plane.Dispatch(ctx, keyMessage(control.KeyDisconnect))

	printTrace(trace.Drain())
	printSummary(contributor.Drained())
	return nil
}

func printTrace(entries []diag.Entry) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND")
	for _, e := range entries {
		var line string
		switch e.Kind {
		case diag.KindMissingData:
			line = red.Sprint(e.Kind)
		case diag.KindTimedOut:
			line = yellow.Sprint(e.Kind)
		case diag.KindMatch:
			line = green.Sprint(e.Kind)
		default:
			line = e.Kind.String()
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Time.Format(time.RFC3339Nano), line)
	}
	w.Flush()
}

func printSummary(received []teb.Received) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

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
	fmt.Printf("\n%d records received: %s, %s, %s\n",
		len(received),
		green.Sprintf("%d ok", ok),
		red.Sprintf("%d missing_data", missing),
		yellow.Sprintf("%d timed_out", timedOut),
	)
}
