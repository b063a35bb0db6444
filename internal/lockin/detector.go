package lockin

import (
	"math"
	"time"
)

// Outcome identifies how a single-point measurement ended, or that it has
// not ended yet.
type Outcome int

const (
	Undecided Outcome = iota // measurement still running
	Converged                // window deviation fell under the tolerance
	TimedOut                 // tolerance never reached before the timeout; values are degraded but usable
	Aborted                  // the operator cancelled
	Faulted                  // an unrecoverable acquisition error
)

var outcomeNames = map[Outcome]string{
	Undecided: "undecided",
	Converged: "converged",
	TimedOut:  "timed-out",
	Aborted:   "aborted",
	Faulted:   "faulted",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether the outcome ends the measurement.
func (o Outcome) Terminal() bool { return o != Undecided }

// ParseOutcome is the inverse of Outcome.String. It reports false for
// strings naming no outcome.
func ParseOutcome(s string) (Outcome, bool) {
	for o, name := range outcomeNames {
		if name == s {
			return o, true
		}
	}
	return Undecided, false
}

// Verdict is the detector's decision after consuming a sample. Every verdict
// carries the last known window aggregates, so even Aborted and Faulted
// measurements report the values they had when they stopped.
type Verdict struct {
	Outcome   Outcome
	Magnitude float64 // window mean magnitude at the stop point
	Phase     float64 // window mean phase at the stop point
	Deviation float64 // window deviation at the stop point, percent
	Elapsed   time.Duration
	Cause     error // fault cause, nil otherwise
}

// Detector is the convergence state machine for one measurement point. It
// consumes one sample per tick and decides, in strict priority order, whether
// the measurement continues or ends. A terminal verdict latches: once
// reached, every further call returns it unchanged.
//
// Priority per tick: abort and fault always win (the caller signals those
// via Abort and Fault before offering a sample); an under-filled window never
// converges nor times out; a full, overload-free window within tolerance
// converges only after the minimum settle time; the timeout fires regardless
// of overload. Overload suppressing convergence even at low deviation is
// deliberate: one flagged sample taints the window until it ages out.
type Detector struct {
	profile   TuningProfile
	tolerance float64 // percent
	window    *Window

	verdict Verdict
	done    bool
}

// NewDetector creates a detector for one measurement point. Tolerance is the
// acceptable window deviation in percent of the mean magnitude.
func NewDetector(profile TuningProfile, tolerance float64) *Detector {
	return &Detector{
		profile:   profile,
		tolerance: tolerance,
		window:    NewWindow(profile.WindowCapacity),
		// No data yet: the deviation fails closed until the first sample,
		// so an abort before any tick never reads like a clean measurement.
		verdict: Verdict{Deviation: math.Inf(1)},
	}
}

// Offer consumes the next sample and returns the window aggregates together
// with the verdict. After a terminal verdict the sample is discarded and the
// latched verdict is returned.
func (d *Detector) Offer(s Sample) (Stats, Verdict) {
	if d.done {
		return d.lastStats(), d.verdict
	}

	st := d.window.Push(s)
	d.verdict = Verdict{
		Outcome:   Undecided,
		Magnitude: st.MeanMagnitude,
		Phase:     st.MeanPhase,
		Deviation: st.Deviation,
		Elapsed:   s.Offset,
	}

	if !st.Full {
		return st, d.verdict
	}

	switch {
	case !st.Overloaded && st.Deviation <= d.tolerance && s.Offset >= d.profile.MinSettle:
		d.verdict.Outcome = Converged
		d.done = true

	case s.Offset >= d.profile.Timeout:
		d.verdict.Outcome = TimedOut
		d.done = true
	}

	return st, d.verdict
}

// Abort ends the measurement on operator cancellation. It preempts any other
// outcome unless the measurement already ended.
func (d *Detector) Abort() Verdict {
	if !d.done {
		d.verdict.Outcome = Aborted
		d.done = true
	}
	return d.verdict
}

// Fault ends the measurement on an unrecoverable acquisition error.
func (d *Detector) Fault(cause error) Verdict {
	if !d.done {
		d.verdict.Outcome = Faulted
		d.verdict.Cause = cause
		d.done = true
	}
	return d.verdict
}

// Verdict returns the current verdict without consuming anything.
func (d *Detector) Verdict() Verdict { return d.verdict }

func (d *Detector) lastStats() Stats {
	return Stats{
		Count:         d.window.Len(),
		Full:          d.window.Full(),
		MeanMagnitude: d.verdict.Magnitude,
		MeanPhase:     d.verdict.Phase,
		Deviation:     d.verdict.Deviation,
	}
}
