package diag

import "time"

// Recorder wraps an inner match.Recorder (by structural satisfaction, no
// import needed) and mirrors every decision into a Trace, so the debug
// CLI subcommand can answer "what did the matcher just do" without the
// counters losing their own collaborator.
type Recorder struct {
	inner interface {
		MatchOK()
		MatchMissingData()
		MatchTimedOut()
		PVDiscarded()
		PVMissed()
		TimeDiff(d time.Duration)
		QueueDepths(input, output int)
	}
	trace *Trace
}

// NewRecorder wraps inner, recording every call into trace. inner may be
// nil, matching the Worker's own nil-safe Recorder convention.
func NewRecorder(inner interface {
	MatchOK()
	MatchMissingData()
	MatchTimedOut()
	PVDiscarded()
	PVMissed()
	TimeDiff(d time.Duration)
	QueueDepths(input, output int)
}, trace *Trace) *Recorder {
	return &Recorder{inner: inner, trace: trace}
}

func (r *Recorder) MatchOK() {
	r.trace.Record(KindMatch, 0, "")
	if r.inner != nil {
		r.inner.MatchOK()
	}
}

func (r *Recorder) MatchMissingData() {
	r.trace.Record(KindMissingData, 0, "")
	if r.inner != nil {
		r.inner.MatchMissingData()
	}
}

func (r *Recorder) MatchTimedOut() {
	r.trace.Record(KindTimedOut, 0, "")
	if r.inner != nil {
		r.inner.MatchTimedOut()
	}
}

func (r *Recorder) PVDiscarded() {
	r.trace.Record(KindPVDiscarded, 0, "")
	if r.inner != nil {
		r.inner.PVDiscarded()
	}
}

func (r *Recorder) PVMissed() {
	r.trace.Record(KindPVMissed, 0, "")
	if r.inner != nil {
		r.inner.PVMissed()
	}
}

func (r *Recorder) TimeDiff(d time.Duration) {
	if r.inner != nil {
		r.inner.TimeDiff(d)
	}
}

func (r *Recorder) QueueDepths(input, output int) {
	if r.inner != nil {
		r.inner.QueueDepths(input, output)
	}
}

// Warning records an async notification (internal/pv.Notification) into
// the trace without touching any counter.
func (r *Recorder) Warning(detail string) {
	r.trace.Record(KindWarning, 0, detail)
}

// Error records a fatal pipeline error into the trace.
func (r *Recorder) Error(detail string) {
	r.trace.Record(KindError, 0, detail)
}
