package lockin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultPointGrace is the extra wall time a sweep point is allowed past its
// profile timeout before the orchestrator forcibly cancels it. The loop's own
// timeout normally fires first; the hard deadline is the backstop for a
// sub-measurement stuck inside the link.
const DefaultPointGrace = 30 * time.Second

// Plan describes one frequency sweep. Frequencies run from StartFrequency
// down to StopFrequency by default (high to low, the way the instrument
// settles fastest), geometrically spaced with PointsPerDecade points per
// decade.
type Plan struct {
	StartFrequency   float64 // Hz, high end
	StopFrequency    float64 // Hz, low end
	PointsPerDecade  int
	Ascending        bool    // sweep low to high instead
	Tolerance        float64 // convergence tolerance, percent
	Harmonic         int     // detection harmonic, 1 for fundamental
	Phase            float64 // reference phase offset, degrees
	ReferenceVoltage float64 // sine output amplitude, VRMS; also the gain reference
}

// Validate checks the plan for internal consistency.
func (p Plan) Validate() error {
	switch {
	case p.StartFrequency <= 0 || p.StopFrequency <= 0:
		return errors.New("sweep frequencies must be positive")
	case p.StartFrequency < p.StopFrequency:
		return errors.New("start frequency must not be below stop frequency")
	case p.PointsPerDecade <= 0:
		return errors.New("points per decade must be positive")
	case p.Tolerance <= 0:
		return errors.New("tolerance must be positive")
	case p.Harmonic <= 0:
		return errors.New("harmonic must be positive")
	case p.ReferenceVoltage <= 0:
		return errors.New("reference voltage must be positive")
	}
	return nil
}

// Frequencies returns the geometric frequency sequence of the plan, in sweep
// order. The count covers the span at PointsPerDecade density, endpoints
// included.
func (p Plan) Frequencies() []float64 {
	if p.StartFrequency == p.StopFrequency {
		return []float64{p.StartFrequency}
	}

	decades := math.Log10(p.StartFrequency / p.StopFrequency)
	n := int(math.Round(decades*float64(p.PointsPerDecade))) + 1
	if n < 2 {
		n = 2
	}

	freqs := make([]float64, n)
	if p.Ascending {
		floats.LogSpan(freqs, p.StopFrequency, p.StartFrequency)
	} else {
		floats.LogSpan(freqs, p.StartFrequency, p.StopFrequency)
	}
	return freqs
}

// WithTuner overrides the orchestrator's auto-tuner.
func WithTuner(t *Tuner) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.tuner = t
	}
}

// WithClock sets the clock used by the orchestrator and its sample loops.
func WithClock(c Clock) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithObserver sets the observer receiving per-tick samples and completed
// sweep points.
func WithObserver(obs Observer) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPointGrace overrides the hard-deadline grace beyond each point's
// profile timeout.
func WithPointGrace(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.pointGrace = d
	}
}

// Orchestrator sweeps the single-point measurement across a frequency plan.
// Points run strictly one after another: the instrument link is a single
// exclusively-owned resource, so there is never more than one sample loop
// touching it.
type Orchestrator struct {
	link  Link
	tuner *Tuner
	clock Clock

	observer Observer
	logger   *slog.Logger

	pointGrace time.Duration
}

// NewOrchestrator creates a sweep orchestrator over the given link.
func NewOrchestrator(link Link, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		link:       link,
		tuner:      NewTuner(),
		clock:      SystemClock(),
		observer:   NopObserver{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		pointGrace: DefaultPointGrace,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run verifies the instrument identity and executes the whole sweep,
// returning the points produced in sweep order. Cancellation mid-sweep is
// not an error: the points collected so far are returned. Only a failed
// identity check aborts the run, since without a valid link no measurement
// is possible.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) ([]Point, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep plan: %w", err)
	}

	idn, err := o.link.Identify(ctx)
	if err != nil {
		return nil, fmt.Errorf("identifying instrument: %w", err)
	}
	o.logger.Info("instrument identified", slog.String("idn", idn))

	var points []Point
	for point := range o.Points(ctx, plan) {
		points = append(points, point)
	}
	return points, nil
}

// Points lazily produces the sweep points one by one. Breaking out of the
// range stops the sweep: no further point is launched and the in-flight
// sub-measurement is cancelled. The caller is expected to have verified the
// link identity (Run does both).
func (o *Orchestrator) Points(ctx context.Context, plan Plan) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		reset := true
		for i, freq := range plan.Frequencies() {
			if ctx.Err() != nil {
				o.logger.Info("sweep cancelled", slog.Int("pointsDone", i))
				return
			}

			point, ok := o.measurePoint(ctx, plan, freq, reset)
			reset = false
			if !ok {
				// Cancelled mid-point: keep what we have, record nothing.
				o.logger.Info("sweep cancelled mid-point",
					slog.Float64("frequency", freq),
					slog.Int("pointsDone", i))
				return
			}

			o.observer.ObservePoint(point)
			if !yield(point) {
				return
			}
		}
	}
}

// measurePoint runs one bounded single-point measurement. It reports ok as
// false only when the sweep-level context was cancelled; every other outcome,
// degraded or not, produces a point. Partial sweep results beat none.
func (o *Orchestrator) measurePoint(ctx context.Context, plan Plan, freq float64, reset bool) (Point, bool) {
	logger := o.logger.With(slog.Float64("frequency", freq))

	profile, err := o.tuner.Tune(freq)
	if err != nil {
		logger.Error(fmt.Sprintf("tuning failed: %s", err))
		return faultedPoint(freq), true
	}

	logger.Info("measuring sweep point",
		slog.Duration("timeConstant", profile.TimeConstant),
		slog.Duration("interval", profile.SampleInterval),
		slog.Duration("timeout", profile.Timeout),
		slog.Int("window", profile.WindowCapacity))

	settings := Settings{
		Frequency:    freq,
		Harmonic:     plan.Harmonic,
		Phase:        plan.Phase,
		SineVoltage:  plan.ReferenceVoltage,
		TimeConstant: profile.TimeConstant,
		FilterSlope:  profile.FilterSlope,
		FullReset:    reset,
	}
	if err := o.link.Apply(ctx, settings); err != nil {
		if ctx.Err() != nil {
			return Point{}, false
		}
		logger.Error(fmt.Sprintf("applying settings: %s", err))
		return faultedPoint(freq), true
	}

	// Hard upper bound per point: even if the loop's own timeout logic never
	// fires, the deadline cancels the sub-measurement.
	pointCtx, cancel := context.WithTimeout(ctx, profile.Timeout+o.pointGrace)
	defer cancel()

	loop := NewLoop(o.link,
		WithLoopClock(o.clock),
		WithLoopObserver(o.observer),
		WithLoopLogger(logger))
	verdict := loop.Run(pointCtx, profile, plan.Tolerance)

	if verdict.Outcome == Aborted && ctx.Err() != nil {
		return Point{}, false
	}

	point := Point{
		Frequency: freq,
		Magnitude: verdict.Magnitude,
		Phase:     verdict.Phase,
		Deviation: verdict.Deviation,
		GainDB:    20 * math.Log10(verdict.Magnitude/plan.ReferenceVoltage),
		Outcome:   verdict.Outcome,
	}

	switch verdict.Outcome {
	case Converged:
		logger.Info("sweep point converged",
			slog.Float64("magnitude", point.Magnitude),
			slog.Float64("phase", point.Phase),
			slog.Float64("deviation", point.Deviation),
			slog.Duration("elapsed", verdict.Elapsed))
	case Faulted:
		logger.Error(fmt.Sprintf("sweep point faulted: %s", verdict.Cause))
	default:
		// Point-level deadline shows up here as an Aborted verdict with the
		// sweep context still live; it is recorded like a timeout.
		logger.Warn("sweep point degraded",
			slog.String("outcome", verdict.Outcome.String()),
			slog.Float64("magnitude", point.Magnitude),
			slog.Float64("deviation", point.Deviation))
	}

	return point, true
}

func faultedPoint(freq float64) Point {
	return Point{
		Frequency: freq,
		Deviation: math.Inf(1),
		GainDB:    math.Inf(-1),
		Outcome:   Faulted,
	}
}
