package lockin

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats is the aggregate view of the window contents after a push. Deviation
// and Overloaded only gate convergence once Full is true; an under-filled
// window must never look converged.
type Stats struct {
	Count         int
	Full          bool
	MeanMagnitude float64
	MeanPhase     float64
	Deviation     float64 // max |mean - extreme| as a percentage of the mean magnitude
	Overloaded    bool    // at least one sample in the window is flagged
}

// Window is a fixed-capacity FIFO over the most recent samples with exact
// running statistics. Once full, pushing evicts the oldest sample first.
// Window is owned by a single sample loop and is not safe for concurrent use.
type Window struct {
	capacity int
	samples  []Sample
	head     int // index of the oldest sample
	count    int

	// scratch buffers for the statistics pass, reused between pushes
	mags, phases []float64
}

// NewWindow creates an empty window. Capacity must be positive.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic("lockin: window capacity must be positive")
	}
	return &Window{
		capacity: capacity,
		samples:  make([]Sample, capacity),
		mags:     make([]float64, 0, capacity),
		phases:   make([]float64, 0, capacity),
	}
}

// Push appends a sample, evicting the oldest one if the window is full, and
// returns the updated aggregate view.
func (w *Window) Push(s Sample) Stats {
	if w.count < w.capacity {
		w.samples[(w.head+w.count)%w.capacity] = s
		w.count++
	} else {
		w.samples[w.head] = s
		w.head = (w.head + 1) % w.capacity
	}
	return w.stats()
}

// Full reports whether the window holds capacity samples.
func (w *Window) Full() bool { return w.count == w.capacity }

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.count }

// Reset empties the window without releasing its backing storage.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}

// stats recomputes the means over the current contents. The mean is exact,
// not incremental; the windows are small and exactness matters there.
func (w *Window) stats() Stats {
	st := Stats{Count: w.count, Full: w.Full()}
	if w.count == 0 {
		st.Deviation = math.Inf(1)
		return st
	}

	w.mags = w.mags[:0]
	w.phases = w.phases[:0]
	for i := 0; i < w.count; i++ {
		s := w.samples[(w.head+i)%w.capacity]
		w.mags = append(w.mags, s.Magnitude)
		w.phases = append(w.phases, s.Phase)
		if s.Overload {
			st.Overloaded = true
		}
	}

	st.MeanMagnitude = stat.Mean(w.mags, nil)
	st.MeanPhase = stat.Mean(w.phases, nil)

	absDev := math.Max(
		math.Abs(st.MeanMagnitude-floats.Max(w.mags)),
		math.Abs(st.MeanMagnitude-floats.Min(w.mags)),
	)
	if st.MeanMagnitude == 0 {
		// A zero mean makes the relative deviation meaningless; fail closed
		// so a dead signal can never satisfy the tolerance check.
		st.Deviation = math.Inf(1)
	} else {
		st.Deviation = 100 * absDev / math.Abs(st.MeanMagnitude)
	}
	return st
}
