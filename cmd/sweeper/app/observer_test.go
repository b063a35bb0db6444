package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	"github.com/Laogeodritt/lockin-sweep/internal/storage"
)

// fakeStore records what gets written to it.
type fakeStore struct {
	sessions []string // instrument identity per created session
	batches  [][]lockin.SamplePoint
	points   []lockin.Point
	fail     bool
}

var _ storage.Store = (*fakeStore)(nil)

func (s *fakeStore) CreateSession(_ context.Context, instrument, _ string, _ any) (int64, error) {
	s.sessions = append(s.sessions, instrument)
	return int64(len(s.sessions)), nil
}

func (s *fakeStore) Session(context.Context, int64) (*storage.Session, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) Sessions(context.Context) ([]*storage.Session, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) StoreSweepPoint(_ context.Context, _ int64, p lockin.Point) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.points = append(s.points, p)
	return nil
}

func (s *fakeStore) SweepPoints(context.Context, int64) ([]lockin.Point, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) BatchStoreSamples(_ context.Context, _ int64, samples []lockin.SamplePoint) error {
	if s.fail {
		return errors.New("disk full")
	}
	batch := make([]lockin.SamplePoint, len(samples))
	copy(batch, samples)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreObserver_BatchesSamples(t *testing.T) {
	store := &fakeStore{}
	obs := newStoreObserver(store, 1, 4, discardLogger())

	for i := 0; i < 10; i++ {
		obs.ObserveSample(lockin.SamplePoint{Sample: lockin.Sample{Index: i}})
	}

	// Two full batches of four; the remainder stays buffered.
	if len(store.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(store.batches))
	}
	for i, batch := range store.batches {
		if len(batch) != 4 {
			t.Errorf("batch %d: expected 4 samples, got %d", i, len(batch))
		}
	}

	obs.Flush()
	if len(store.batches) != 3 || len(store.batches[2]) != 2 {
		t.Fatalf("expected the final flush to write the 2 buffered samples, got %v", store.batches)
	}

	// The samples arrive in production order.
	next := 0
	for _, batch := range store.batches {
		for _, sp := range batch {
			if sp.Index != next {
				t.Fatalf("expected sample index %d, got %d", next, sp.Index)
			}
			next++
		}
	}

	obs.Flush() // nothing left, no empty batch
	if len(store.batches) != 3 {
		t.Errorf("empty flush should not write a batch, got %d batches", len(store.batches))
	}
}

func TestStoreObserver_PointFlushesItsSamples(t *testing.T) {
	store := &fakeStore{}
	obs := newStoreObserver(store, 1, 100, discardLogger())

	obs.ObserveSample(lockin.SamplePoint{Sample: lockin.Sample{Index: 0}})
	obs.ObserveSample(lockin.SamplePoint{Sample: lockin.Sample{Index: 1}})
	obs.ObservePoint(lockin.Point{Frequency: 1_000, Outcome: lockin.Converged})

	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("expected the point to flush its 2 samples first, got %v", store.batches)
	}
	if len(store.points) != 1 || store.points[0].Frequency != 1_000 {
		t.Fatalf("expected 1 stored point at 1 kHz, got %v", store.points)
	}
}

func TestStoreObserver_StorageErrorsDoNotPanic(t *testing.T) {
	store := &fakeStore{fail: true}
	obs := newStoreObserver(store, 1, 2, discardLogger())

	for i := 0; i < 5; i++ {
		obs.ObserveSample(lockin.SamplePoint{Sample: lockin.Sample{Index: i}})
	}
	obs.ObservePoint(lockin.Point{Outcome: lockin.TimedOut})
	obs.Flush()
}
