package sr830

import (
	"context"
	"math"
	"math/rand"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
)

// simIdentity mimics the instrument's *IDN? response.
const simIdentity = "Stanford_Research_Systems,SR830,s/n00000,ver1.07"

// settleReads controls how fast the simulated output approaches its steady
// value: the transient decays with this many reads per time constant, which
// matches the engine's oversampling of the real filter.
const settleReads = 20

// Simulator implements lockin.Link against a synthetic device under test: a
// single-pole RC network driven by the sine output. Readings settle with a
// first-order transient after every Apply and carry seeded noise, so runs
// are reproducible.
type Simulator struct {
	Amplitude     float64 // passband response in VRMS
	PoleFrequency float64 // Hz
	Noise         float64 // relative magnitude noise, e.g. 0.005

	// OverloadReads flags the first N readings after an Apply as overloaded,
	// for exercising the overload handling.
	OverloadReads int

	rng   *rand.Rand
	freq  float64
	reads int
}

// NewSimulator creates a simulator for a single-pole DUT with the given
// passband amplitude and pole frequency. The seed fixes the noise sequence.
func NewSimulator(amplitude, poleFrequency float64, noise float64, seed int64) *Simulator {
	return &Simulator{
		Amplitude:     amplitude,
		PoleFrequency: poleFrequency,
		Noise:         noise,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) Identify(ctx context.Context) (string, error) {
	return simIdentity, ctx.Err()
}

// Apply restarts the settling transient at the new frequency.
func (s *Simulator) Apply(ctx context.Context, settings lockin.Settings) error {
	s.freq = settings.Frequency
	s.reads = 0
	return ctx.Err()
}

// Read returns the DUT response at the configured frequency, scaled by the
// settling transient and perturbed by noise.
func (s *Simulator) Read(ctx context.Context) (lockin.Reading, error) {
	if err := ctx.Err(); err != nil {
		return lockin.Reading{}, err
	}

	ratio := s.freq / s.PoleFrequency
	steady := s.Amplitude / math.Sqrt(1+ratio*ratio)
	phase := -math.Atan(ratio) * 180 / math.Pi

	settle := 1 - math.Exp(-float64(s.reads)/settleReads)
	noise := 1 + s.Noise*(2*s.rng.Float64()-1)

	overload := s.reads < s.OverloadReads
	s.reads++

	return lockin.Reading{
		Magnitude: steady * settle * noise,
		Phase:     phase,
		Overload:  overload,
	}, nil
}

func (s *Simulator) Shutdown(ctx context.Context) error { return nil }
