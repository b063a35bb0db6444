package storage

import (
	"context"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists sweep sessions, their per-tick samples and the settled
// sweep points. Writes are atomic; batched sample inserts run in a single
// transaction.
type Store interface {
	// CreateSession records the start of a sweep run and returns its ID.
	// Config may be a string, []byte or any JSON-serializable value.
	CreateSession(ctx context.Context, instrument, port string, config any) (sessionID int64, err error)

	// Session returns one session by ID.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all recorded sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreSweepPoint appends one settled (or degraded) sweep point.
	StoreSweepPoint(ctx context.Context, sessionID int64, p lockin.Point) error

	// SweepPoints returns a session's sweep points in production order.
	SweepPoints(ctx context.Context, sessionID int64) ([]lockin.Point, error)

	// BatchStoreSamples appends per-tick samples in one transaction.
	BatchStoreSamples(ctx context.Context, sessionID int64, samples []lockin.SamplePoint) error

	// Close releases the database connections. Safe to call more than once.
	Close() error
}
