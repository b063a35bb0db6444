package lockin

import (
	"context"
	"errors"
	"math"
	"testing"
)

// dutLink behaves like a flat device under test: every frequency settles to
// the same magnitude immediately, so each point converges as soon as its
// window fills and the settle gate passes.
type dutLink struct {
	magnitude  float64
	applied    []Settings
	identifyOK bool
	reads      int
}

func newDUTLink(magnitude float64) *dutLink {
	return &dutLink{magnitude: magnitude, identifyOK: true}
}

func (l *dutLink) Identify(context.Context) (string, error) {
	if !l.identifyOK {
		return "", errors.New("device is not the expected instrument")
	}
	return "Scripted_Instruments,SR830,s/n12345,ver9.99", nil
}

func (l *dutLink) Apply(_ context.Context, s Settings) error {
	l.applied = append(l.applied, s)
	return nil
}

func (l *dutLink) Read(context.Context) (Reading, error) {
	l.reads++
	return Reading{Magnitude: l.magnitude, Phase: -30}, nil
}

func (l *dutLink) Shutdown(context.Context) error { return nil }

func testPlan() Plan {
	return Plan{
		StartFrequency:   1_000,
		StopFrequency:    10,
		PointsPerDecade:  1,
		Tolerance:        2.0,
		Harmonic:         1,
		ReferenceVoltage: 0.010,
	}
}

func TestPlan_Frequencies(t *testing.T) {
	plan := testPlan()

	freqs := plan.Frequencies()
	want := []float64{1_000, 100, 10}
	if len(freqs) != len(want) {
		t.Fatalf("expected %d frequencies, got %d: %v", len(want), len(freqs), freqs)
	}
	for i, f := range want {
		if math.Abs(freqs[i]-f)/f > 1e-9 {
			t.Errorf("frequency %d: expected %g, got %g", i, f, freqs[i])
		}
	}

	plan.Ascending = true
	freqs = plan.Frequencies()
	if math.Abs(freqs[0]-10)/10 > 1e-9 || math.Abs(freqs[2]-1_000)/1_000 > 1e-9 {
		t.Errorf("ascending sweep out of order: %v", freqs)
	}

	plan.StartFrequency, plan.StopFrequency = 440, 440
	if freqs = plan.Frequencies(); len(freqs) != 1 || freqs[0] != 440 {
		t.Errorf("degenerate sweep: expected [440], got %v", freqs)
	}
}

func TestOrchestrator_SweepOrder(t *testing.T) {
	link := newDUTLink(0.050)
	o := NewOrchestrator(link, WithClock(newFakeClock()))

	points, err := o.Run(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}

	for i, p := range points {
		if p.Outcome != Converged {
			t.Errorf("point %d (%g Hz): expected Converged, got %s", i, p.Frequency, p.Outcome)
		}
		if i > 0 && points[i].Frequency >= points[i-1].Frequency {
			t.Errorf("points out of descending order: %g before %g", points[i-1].Frequency, points[i].Frequency)
		}

		// Gain of a 50 mV response against the 10 mV drive.
		want := 20 * math.Log10(0.050/0.010)
		if math.Abs(p.GainDB-want) > 1e-6 {
			t.Errorf("point %d: expected gain %.3f dB, got %.3f dB", i, want, p.GainDB)
		}
	}

	// The first point carries the full reset, the rest only retune.
	if len(link.applied) != 3 {
		t.Fatalf("expected 3 Apply calls, got %d", len(link.applied))
	}
	if !link.applied[0].FullReset {
		t.Error("first point should request a full reset")
	}
	for i, s := range link.applied[1:] {
		if s.FullReset {
			t.Errorf("point %d requested a redundant full reset", i+1)
		}
	}
}

func TestOrchestrator_Deterministic(t *testing.T) {
	run := func() []Point {
		o := NewOrchestrator(newDUTLink(0.050), WithClock(newFakeClock()))
		points, err := o.Run(context.Background(), testPlan())
		if err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
		return points
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("runs disagree on point count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("point %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestOrchestrator_EarlyStopCancelsSweep(t *testing.T) {
	link := newDUTLink(0.050)
	o := NewOrchestrator(link, WithClock(newFakeClock()))

	var points []Point
	for p := range o.Points(context.Background(), testPlan()) {
		points = append(points, p)
		if len(points) == 1 {
			break
		}
	}

	if len(points) != 1 {
		t.Fatalf("expected 1 point after early stop, got %d", len(points))
	}
	if len(link.applied) != 1 {
		t.Errorf("expected no further points to launch after early stop, got %d Apply calls", len(link.applied))
	}

	// The prefix matches what an uncancelled sweep produces.
	full, err := NewOrchestrator(newDUTLink(0.050), WithClock(newFakeClock())).Run(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("reference sweep failed: %v", err)
	}
	if points[0] != full[0] {
		t.Errorf("early-stopped prefix diverges: %+v vs %+v", points[0], full[0])
	}
}

func TestOrchestrator_CancelMidSweepKeepsCollectedPoints(t *testing.T) {
	link := newDUTLink(0.050)
	o := NewOrchestrator(link, WithClock(newFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())

	var points []Point
	for p := range o.Points(ctx, testPlan()) {
		points = append(points, p)
		if len(points) == 2 {
			cancel() // operator abort between points
		}
	}
	cancel()

	if len(points) != 2 {
		t.Errorf("expected the 2 points collected before the cancel, got %d", len(points))
	}
}

func TestOrchestrator_IdentityMismatchAbortsRun(t *testing.T) {
	link := newDUTLink(0.050)
	link.identifyOK = false
	o := NewOrchestrator(link, WithClock(newFakeClock()))

	if _, err := o.Run(context.Background(), testPlan()); err == nil {
		t.Fatal("expected an identity error to abort the sweep")
	}
	if len(link.applied) != 0 {
		t.Errorf("no settings should be applied on identity failure, got %d Apply calls", len(link.applied))
	}
}

func TestOrchestrator_OutOfRangePointIsFaultedNotFatal(t *testing.T) {
	plan := testPlan()
	plan.StartFrequency, plan.StopFrequency = 200_000, 200_000 // above the tuning tables

	o := NewOrchestrator(newDUTLink(0.050), WithClock(newFakeClock()))
	points, err := o.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("out-of-range point must not fail the sweep: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Outcome != Faulted {
		t.Errorf("expected Faulted point, got %s", points[0].Outcome)
	}
}

func TestOrchestrator_InvalidPlan(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"zero start", func(p *Plan) { p.StartFrequency = 0 }},
		{"inverted range", func(p *Plan) { p.StartFrequency, p.StopFrequency = 10, 1_000 }},
		{"no points", func(p *Plan) { p.PointsPerDecade = 0 }},
		{"zero tolerance", func(p *Plan) { p.Tolerance = 0 }},
		{"zero harmonic", func(p *Plan) { p.Harmonic = 0 }},
		{"zero reference", func(p *Plan) { p.ReferenceVoltage = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := testPlan()
			tt.mutate(&plan)

			o := NewOrchestrator(newDUTLink(0.050), WithClock(newFakeClock()))
			if _, err := o.Run(context.Background(), plan); err == nil {
				t.Error("expected an invalid plan to be rejected")
			}
		})
	}
}
