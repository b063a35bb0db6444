package lockin

import (
	"math"
	"testing"
	"time"
)

func sampleAt(i int, magnitude, phase float64, overload bool) Sample {
	return Sample{
		Index:     i,
		Offset:    time.Duration(i) * 200 * time.Millisecond,
		Magnitude: magnitude,
		Phase:     phase,
		Overload:  overload,
	}
}

func TestWindow_Eviction(t *testing.T) {
	const capacity = 5
	w := NewWindow(capacity)

	// Push capacity + k samples; only the most recent capacity remain.
	var st Stats
	for i := 0; i < capacity+3; i++ {
		st = w.Push(sampleAt(i, float64(i), 0, false))
	}

	if st.Count != capacity {
		t.Fatalf("expected count %d, got %d", capacity, st.Count)
	}
	if !st.Full {
		t.Fatal("expected window to be full")
	}

	// Samples 3..7 remain; their mean is 5.
	if st.MeanMagnitude != 5 {
		t.Errorf("expected mean magnitude 5, got %g", st.MeanMagnitude)
	}
}

func TestWindow_NotFullBeforeCapacity(t *testing.T) {
	w := NewWindow(4)

	for i := 0; i < 3; i++ {
		st := w.Push(sampleAt(i, 1, 0, false))
		if st.Full {
			t.Fatalf("window reported full after %d of 4 samples", i+1)
		}
	}
	if st := w.Push(sampleAt(3, 1, 0, false)); !st.Full {
		t.Fatal("window not full after capacity samples")
	}
}

func TestWindow_ZeroDeviationForIdenticalSamples(t *testing.T) {
	w := NewWindow(5)

	var st Stats
	for i := 0; i < 5; i++ {
		st = w.Push(sampleAt(i, 0.125, -42.5, false))
	}

	if st.Deviation != 0 {
		t.Errorf("expected zero deviation, got %g", st.Deviation)
	}
	if st.MeanMagnitude != 0.125 {
		t.Errorf("expected mean magnitude 0.125, got %g", st.MeanMagnitude)
	}
	if st.MeanPhase != -42.5 {
		t.Errorf("expected mean phase -42.5, got %g", st.MeanPhase)
	}
}

func TestWindow_DeviationPercent(t *testing.T) {
	w := NewWindow(5)

	var st Stats
	for i, m := range []float64{1.00, 1.01, 0.99, 1.00, 1.00} {
		st = w.Push(sampleAt(i, m, 0, false))
	}

	// Mean is exactly 1.00; the extremes are ±0.01 away, so 1%.
	if math.Abs(st.Deviation-1.0) > 1e-9 {
		t.Errorf("expected deviation 1%%, got %g%%", st.Deviation)
	}
}

func TestWindow_ZeroMeanFailsClosed(t *testing.T) {
	w := NewWindow(3)

	var st Stats
	for i := 0; i < 3; i++ {
		st = w.Push(sampleAt(i, 0, 0, false))
	}

	if !math.IsInf(st.Deviation, 1) {
		t.Errorf("expected unbounded deviation for zero mean, got %g", st.Deviation)
	}
}

func TestWindow_OverloadTaintsUntilAgedOut(t *testing.T) {
	const capacity = 3
	w := NewWindow(capacity)

	st := w.Push(sampleAt(0, 1, 0, true))
	if !st.Overloaded {
		t.Fatal("expected overload flag after flagged sample")
	}

	// The flagged sample stays in the window for capacity-1 more pushes.
	for i := 1; i < capacity; i++ {
		if st = w.Push(sampleAt(i, 1, 0, false)); !st.Overloaded {
			t.Fatalf("expected overload to persist at push %d", i)
		}
	}

	// One more clean push evicts the flagged sample.
	if st = w.Push(sampleAt(capacity, 1, 0, false)); st.Overloaded {
		t.Error("expected overload to age out with its sample")
	}
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(2)
	w.Push(sampleAt(0, 1, 0, false))
	w.Push(sampleAt(1, 2, 0, false))

	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("expected empty window after reset, got %d samples", w.Len())
	}

	st := w.Push(sampleAt(0, 3, 0, false))
	if st.MeanMagnitude != 3 {
		t.Errorf("expected mean 3 after reset, got %g", st.MeanMagnitude)
	}
}
