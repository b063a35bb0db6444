package lockin

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultOversampling is the number of samples taken per time constant.
	DefaultOversampling = 20

	// DefaultMinInterval is the hardware floor on the sample interval; the
	// instrument cannot be polled faster than this over the serial link.
	DefaultMinInterval = 200 * time.Millisecond

	// DefaultMinWindow is the smallest usable window: coarse sample
	// intervals must not shrink the window below this many samples.
	DefaultMinWindow = 5

	// DefaultWindowTaus is the window length in time constants.
	DefaultWindowTaus = 1

	timeoutTaus   = 100 // measurement timeout, in time constants
	minSettleTaus = 10  // earliest allowed convergence, in time constants
)

// ErrFrequencyOutOfRange is returned by Tune for frequencies outside the
// supported band of the tuning tables.
var ErrFrequencyOutOfRange = errors.New("frequency out of tunable range")

// TuningProfile holds the acquisition parameters derived for one frequency.
// A profile is computed once at point start and is immutable afterwards.
type TuningProfile struct {
	Frequency      float64       // Hz
	TimeConstant   time.Duration // demodulator low-pass time constant
	FilterSlope    int           // dB/octave
	SampleInterval time.Duration // tick period of the sample loop
	MinSettle      time.Duration // earliest time convergence may be declared
	Timeout        time.Duration // total time before the point is given up
	WindowCapacity int           // sliding window size in samples
}

// Frequency-threshold tables, ascending. For a requested frequency the entry
// with the smallest threshold >= the frequency applies: the tightest filter
// that still settles above that frequency.
var (
	timeConstantBands = []struct {
		maxFreq float64
		tau     time.Duration
	}{
		{0.34, 30 * time.Second},
		{1, 10 * time.Second},
		{10, 3 * time.Second},
		{100, time.Second},
		{1_000, 100 * time.Millisecond},
		{10_000, 10 * time.Millisecond},
		{102_000, time.Millisecond},
	}

	filterSlopeBands = []struct {
		maxFreq float64
		slope   int
	}{
		{102_000, 24},
	}
)

// Tuner derives acquisition profiles from frequency. The zero value is not
// usable; construct with NewTuner and override fields before first use if
// the defaults do not fit.
type Tuner struct {
	Oversampling int           // samples per time constant
	MinInterval  time.Duration // hardware floor on the sample interval
	MinWindow    int           // floor on the window capacity in samples
	WindowTaus   int           // window length in time constants
}

// NewTuner returns a Tuner with the default acquisition parameters.
func NewTuner() *Tuner {
	return &Tuner{
		Oversampling: DefaultOversampling,
		MinInterval:  DefaultMinInterval,
		MinWindow:    DefaultMinWindow,
		WindowTaus:   DefaultWindowTaus,
	}
}

// Tune derives the acquisition profile for the given frequency. It is pure:
// the same frequency always produces the same profile.
func (t *Tuner) Tune(frequency float64) (TuningProfile, error) {
	if frequency <= 0 {
		return TuningProfile{}, fmt.Errorf("tune %g Hz: %w", frequency, ErrFrequencyOutOfRange)
	}

	var tau time.Duration
	var ok bool
	for _, band := range timeConstantBands {
		if band.maxFreq >= frequency {
			tau, ok = band.tau, true
			break
		}
	}
	if !ok {
		return TuningProfile{}, fmt.Errorf("tune %g Hz: %w", frequency, ErrFrequencyOutOfRange)
	}

	var slope int
	ok = false
	for _, band := range filterSlopeBands {
		if band.maxFreq >= frequency {
			slope, ok = band.slope, true
			break
		}
	}
	if !ok {
		return TuningProfile{}, fmt.Errorf("tune %g Hz: %w", frequency, ErrFrequencyOutOfRange)
	}

	interval := tau / time.Duration(t.Oversampling)
	capacity := t.WindowTaus * t.Oversampling
	if interval < t.MinInterval {
		// The interval hits the serial polling floor; size the window by
		// time instead of sample count so it still spans WindowTaus time
		// constants, but never let it collapse below MinWindow samples.
		interval = t.MinInterval
		capacity = int(math.Round(float64(t.WindowTaus) * tau.Seconds() / interval.Seconds()))
		if capacity < t.MinWindow {
			capacity = t.MinWindow
		}
	}

	return TuningProfile{
		Frequency:      frequency,
		TimeConstant:   tau,
		FilterSlope:    slope,
		SampleInterval: interval,
		MinSettle:      minSettleTaus * tau,
		Timeout:        timeoutTaus * tau,
		WindowCapacity: capacity,
	}, nil
}
