package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      instrument,
                      port,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    instrument,
    port,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    instrument,
    port,
    config
FROM sessions
ORDER BY start_time`

	insertSweepPointSQL = `
INSERT INTO sweep_points (session_id,
                          frequency,
                          magnitude,
                          phase,
                          deviation,
                          gain_db,
                          outcome)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectSweepPointsSQL = `
SELECT
    frequency,
    magnitude,
    phase,
    deviation,
    gain_db,
    outcome
FROM sweep_points
WHERE
    session_id = ?
ORDER BY id`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     frequency,
                     sample_index,
                     offset_seconds,
                     magnitude,
                     phase,
                     smoothed_magnitude,
                     smoothed_phase,
                     deviation,
                     overload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

//go:embed schema.sql
var initSchemaSQL string
