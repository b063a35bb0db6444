package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	"github.com/Laogeodritt/lockin-sweep/internal/storage"
)

const maxBatchSize = 100

// storeObserver persists measurement progress: per-tick samples are buffered
// and flushed to the store in batches, sweep points are written as they
// complete. Storage errors are logged, never propagated; losing a row must
// not kill a running measurement.
type storeObserver struct {
	store     storage.Store
	sessionID int64
	logger    *slog.Logger

	batchSize int
	pending   []lockin.SamplePoint
}

func newStoreObserver(store storage.Store, sessionID int64, batchSize int, logger *slog.Logger) *storeObserver {
	if batchSize <= 0 {
		batchSize = maxBatchSize
	}
	return &storeObserver{
		store:     store,
		sessionID: sessionID,
		logger:    logger,
		batchSize: batchSize,
		pending:   make([]lockin.SamplePoint, 0, batchSize),
	}
}

func (o *storeObserver) ObserveSample(sp lockin.SamplePoint) {
	o.pending = append(o.pending, sp)
	if len(o.pending) >= o.batchSize {
		o.flush()
	}
}

func (o *storeObserver) ObservePoint(p lockin.Point) {
	o.flush() // point rows follow all of their samples

	if err := o.store.StoreSweepPoint(context.Background(), o.sessionID, p); err != nil {
		o.logger.Error(fmt.Sprintf("storing sweep point: %s", err))
	}
}

// Flush writes out any buffered samples. Called once more after the sweep
// finishes so an aborted point's samples are not lost.
func (o *storeObserver) Flush() {
	o.flush()
}

func (o *storeObserver) flush() {
	if len(o.pending) == 0 {
		return
	}

	if err := o.store.BatchStoreSamples(context.Background(), o.sessionID, o.pending); err != nil {
		o.logger.Error(fmt.Sprintf("storing samples: %s", err))
	}
	o.pending = o.pending[:0]
}
