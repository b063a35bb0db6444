package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "sweep.sqlite"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return s
}

func TestSqliteStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "sr830", "/dev/ttyUSB0", map[string]any{"tolerance": 1.0})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected a positive session ID, got %d", id)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("reading session: %v", err)
	}
	if sess.Instrument != "sr830" || sess.Port != "/dev/ttyUSB0" {
		t.Errorf("unexpected session metadata: %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"tolerance":1}` {
		t.Errorf("unexpected session config: %v", sess.Config)
	}
	if time.Since(sess.StartTime) > time.Minute {
		t.Errorf("session start time not recent: %v", sess.StartTime)
	}

	if _, err = s.CreateSession(ctx, "sr830", "sim", nil); err != nil {
		t.Fatalf("creating second session: %v", err)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, sess := range sessions {
		if sess.Port == "sim" && sess.Config != nil {
			t.Errorf("expected nil config for the sim session, got %q", *sess.Config)
		}
	}
}

func TestSqliteStore_SweepPointRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "sr830", "sim", nil)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	points := []lockin.Point{
		{Frequency: 1_000, Magnitude: 0.035, Phase: -44.8, Deviation: 0.42, GainDB: 10.88, Outcome: lockin.Converged},
		{Frequency: 100, Magnitude: 0.049, Phase: -5.7, Deviation: 3.1, GainDB: 13.80, Outcome: lockin.TimedOut},
		{Frequency: 10, Deviation: math.Inf(1), GainDB: math.Inf(-1), Outcome: lockin.Faulted},
	}
	for _, p := range points {
		if err := s.StoreSweepPoint(ctx, id, p); err != nil {
			t.Fatalf("storing point at %g Hz: %v", p.Frequency, err)
		}
	}

	got, err := s.SweepPoints(ctx, id)
	if err != nil {
		t.Fatalf("reading sweep points: %v", err)
	}
	if len(got) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(got))
	}
	for i, want := range points {
		if got[i] != want {
			t.Errorf("point %d: expected %+v, got %+v", i, want, got[i])
		}
	}
}

func TestSqliteStore_BatchStoreSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "sr830", "sim", nil)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	samples := make([]lockin.SamplePoint, 10)
	for i := range samples {
		samples[i] = lockin.SamplePoint{
			Sample: lockin.Sample{
				Index:     i,
				Offset:    time.Duration(i) * 200 * time.Millisecond,
				Magnitude: 0.030 + float64(i)*0.001,
				Phase:     -40,
				Overload:  i == 0,
			},
			Frequency:         1_000,
			SmoothedMagnitude: 0.032,
			SmoothedPhase:     -40,
			Deviation:         1.5,
		}
	}

	if err := s.BatchStoreSamples(ctx, id, samples); err != nil {
		t.Fatalf("storing samples: %v", err)
	}

	// An empty batch is a no-op, not an error.
	if err := s.BatchStoreSamples(ctx, id, nil); err != nil {
		t.Errorf("empty batch should be a no-op: %v", err)
	}
}

func TestSqliteStore_CloseIsIdempotent(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "sweep.sqlite"))

	if _, err := s.CreateSession(context.Background(), "sr830", "sim", nil); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
