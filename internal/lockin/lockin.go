// Package lockin implements the adaptive convergence engine for lock-in
// amplifier measurements: auto-tuning of acquisition parameters from the
// requested frequency, a sliding statistical window over the incoming
// magnitude/phase readings, a convergence state machine that decides when a
// single-point measurement has settled, and a sweep orchestrator that runs
// one settled measurement per frequency of a geometric sequence.
//
// The package never talks to instrument hardware directly; it drives the
// Link contract, which a transport-specific collaborator implements.
package lockin

import (
	"context"
	"time"
)

// Reading is a single raw acquisition returned by the instrument.
type Reading struct {
	Magnitude float64 // VRMS
	Phase     float64 // degrees, wrapped to [-180, 180]
	Overload  bool    // any of the input/filter/output stages saturated
}

// Settings is the subset of instrument state the engine controls. Apply is
// called once per sweep point; FullReset is requested for the first point
// only, subsequent points change just the frequency-dependent fields.
type Settings struct {
	Frequency    float64       // reference frequency in Hz
	Harmonic     int           // detection harmonic, 1 for fundamental
	Phase        float64       // reference phase offset in degrees
	SineVoltage  float64       // internal sine output amplitude in VRMS
	TimeConstant time.Duration // low-pass filter time constant
	FilterSlope  int           // low-pass filter roll-off in dB/octave
	FullReset    bool          // reset to standard settings before configuring
}

// Link is the instrument collaborator contract. The engine owns the link
// exclusively for the duration of one measurement; implementations do not
// need to be safe for concurrent use.
//
// Identify must fail if the connected device is not the expected instrument.
// Read returns the current magnitude/phase pair together with the overload
// state. In-flight calls are never interrupted by cancellation; the engine
// only checks the context between calls.
type Link interface {
	Identify(ctx context.Context) (string, error)
	Apply(ctx context.Context, s Settings) error
	Read(ctx context.Context) (Reading, error)
	Shutdown(ctx context.Context) error
}

// Sample is one tick of a measurement: a raw reading stamped with its
// position in the acquisition sequence. Samples are immutable once produced.
type Sample struct {
	Index     int           // sequence index, starting at 0
	Offset    time.Duration // time since the first sample, Index * sample interval
	Magnitude float64
	Phase     float64
	Overload  bool
}

// SamplePoint is the per-tick payload pushed to an Observer: the raw sample
// plus the window aggregates current as of this sample.
type SamplePoint struct {
	Sample

	Frequency         float64 // frequency being measured
	SmoothedMagnitude float64 // window mean magnitude
	SmoothedPhase     float64 // window mean phase
	Deviation         float64 // max deviation from the window mean, percent
}

// Point is one completed sweep point: the settled (or degraded) values for a
// single frequency.
type Point struct {
	Frequency float64
	Magnitude float64 // settled magnitude in VRMS
	Phase     float64 // settled phase in degrees
	Deviation float64 // residual deviation at the stop point, percent
	GainDB    float64 // 20*log10(Magnitude / reference voltage)
	Outcome   Outcome // how the point's measurement ended
}

// Observer receives measurement progress as it is produced. Delivery is
// synchronous and in production order; implementations must not block for
// long, the engine fires and continues.
type Observer interface {
	ObserveSample(SamplePoint)
	ObservePoint(Point)
}

// NopObserver discards everything. It is the default observer.
type NopObserver struct{}

func (NopObserver) ObserveSample(SamplePoint) {}
func (NopObserver) ObservePoint(Point)        {}
