package lockin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// WithLoopClock sets the clock driving the loop's tick schedule.
func WithLoopClock(c Clock) func(*Loop) {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLoopObserver sets the observer receiving per-tick sample points.
func WithLoopObserver(o Observer) func(*Loop) {
	return func(l *Loop) {
		l.observer = o
	}
}

// WithLoopLogger sets the logger for the loop.
func WithLoopLogger(logger *slog.Logger) func(*Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "sampleLoop"))
	}
}

// Loop runs one single-point measurement: it ticks at the profile's sample
// interval, pulls exactly one reading from the link per tick, feeds the
// convergence detector and stops on the first terminal verdict or on
// cancellation. A Loop is reusable across points but runs one at a time.
type Loop struct {
	link     Link
	clock    Clock
	observer Observer
	logger   *slog.Logger
}

// NewLoop creates a sample loop over the given link with a discard logger,
// the system clock and no observer unless options say otherwise.
func NewLoop(link Link, options ...func(*Loop)) *Loop {
	l := Loop{
		link:     link,
		clock:    SystemClock(),
		observer: NopObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Run executes the measurement described by the profile and blocks until a
// terminal verdict. Cancellation is polled before every acquisition and
// while waiting for the next tick; an in-flight read is never interrupted.
//
// Ticks are scheduled against absolute deadlines from the loop start, so a
// slow tick does not accumulate drift: the loop sleeps only the remaining
// slack before the next deadline.
func (l *Loop) Run(ctx context.Context, profile TuningProfile, tolerance float64) Verdict {
	det := NewDetector(profile, tolerance)

	l.logger.Debug("starting sample loop",
		slog.Float64("frequency", profile.Frequency),
		slog.Duration("interval", profile.SampleInterval),
		slog.Duration("timeout", profile.Timeout),
		slog.Int("window", profile.WindowCapacity))

	start := l.clock.Now()
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return det.Abort()
		}

		// Acquire immediately at the tick to keep sample spacing consistent.
		reading, err := l.link.Read(ctx)
		if err != nil {
			return det.Fault(fmt.Errorf("reading sample: %w", err))
		}

		sample := Sample{
			Index:     i,
			Offset:    time.Duration(i) * profile.SampleInterval,
			Magnitude: reading.Magnitude,
			Phase:     reading.Phase,
			Overload:  reading.Overload,
		}

		stats, verdict := det.Offer(sample)
		l.observer.ObserveSample(SamplePoint{
			Sample:            sample,
			Frequency:         profile.Frequency,
			SmoothedMagnitude: stats.MeanMagnitude,
			SmoothedPhase:     stats.MeanPhase,
			Deviation:         stats.Deviation,
		})

		if verdict.Outcome.Terminal() {
			l.logger.Debug("sample loop finished",
				slog.String("outcome", verdict.Outcome.String()),
				slog.Int("samples", i+1))
			return verdict
		}

		deadline := start.Add(time.Duration(i+1) * profile.SampleInterval)
		if wait := deadline.Sub(l.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return det.Abort()
			case <-l.clock.After(wait):
			}
		}
	}
}
