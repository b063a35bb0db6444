package storage

import (
	"database/sql"
	"time"
)

// Session is the metadata of one sweep run.
type Session struct {
	ID         int64     `json:"id"`
	StartTime  time.Time `json:"startTime"`
	Instrument string    `json:"instrument"`       // instrument identity string
	Port       string    `json:"port"`             // transport the instrument was reached on
	Config     *string   `json:"config,omitempty"` // sweep configuration as JSON, if recorded
}

type pointData struct {
	SessionID int64
	Frequency float64
	Magnitude sql.NullFloat64
	Phase     sql.NullFloat64
	Deviation sql.NullFloat64
	GainDB    sql.NullFloat64
	Outcome   string
}

type sampleData struct {
	SessionID         int64
	Frequency         float64
	Index             int
	OffsetSeconds     float64
	Magnitude         float64
	Phase             float64
	SmoothedMagnitude sql.NullFloat64
	SmoothedPhase     sql.NullFloat64
	Deviation         sql.NullFloat64
	Overload          bool
}
