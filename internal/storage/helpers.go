package storage

import (
	"database/sql"
	"math"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

// nullFloat maps non-finite values to NULL; sqlite has no representation for
// the infinities the engine uses for unbounded deviation and silent gain.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrInf(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.Inf(1)
	}
	return f.Float64
}

// floatOrNegInf restores a NULL gain: no measurable response means silence.
func floatOrNegInf(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.Inf(-1)
	}
	return f.Float64
}

func toPointData(sessionID int64, p lockin.Point) *pointData {
	return &pointData{
		SessionID: sessionID,
		Frequency: p.Frequency,
		Magnitude: nullFloat(p.Magnitude),
		Phase:     nullFloat(p.Phase),
		Deviation: nullFloat(p.Deviation),
		GainDB:    nullFloat(p.GainDB),
		Outcome:   p.Outcome.String(),
	}
}

func toSampleData(sessionID int64, sp lockin.SamplePoint) *sampleData {
	return &sampleData{
		SessionID:         sessionID,
		Frequency:         sp.Frequency,
		Index:             sp.Index,
		OffsetSeconds:     sp.Offset.Seconds(),
		Magnitude:         sp.Magnitude,
		Phase:             sp.Phase,
		SmoothedMagnitude: nullFloat(sp.SmoothedMagnitude),
		SmoothedPhase:     nullFloat(sp.SmoothedPhase),
		Deviation:         nullFloat(sp.Deviation),
		Overload:          sp.Overload,
	}
}
