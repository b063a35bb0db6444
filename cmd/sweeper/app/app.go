package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	"github.com/Laogeodritt/lockin-sweep/internal/sr830"
	"github.com/Laogeodritt/lockin-sweep/internal/storage"
)

const storageDir = "data"

// Simulator defaults: a 50 mV single-pole device with its knee at 10 kHz,
// enough structure to make a dry-run Bode plot interesting.
const (
	simAmplitude = 50e-3
	simPole      = 10_000
	simNoise     = 0.002
	simSeed      = 1
)

// Run executes one sweep: opens the instrument link (or the simulator),
// records a session and streams every sample and sweep point into storage.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, dbPath, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()
	logger.Info("storing results", slog.String("path", dbPath))

	link, port, err := createLink(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create instrument link: %w", err)
	}
	defer func() {
		if err := link.Shutdown(context.Background()); err != nil {
			logger.Error(fmt.Sprintf("shutting down instrument link: %s", err))
		}
	}()

	return runSweep(ctx, store, link, port, config, logger)
}

func runSweep(ctx context.Context, store storage.Store, link lockin.Link, port string, config *Config, logger *slog.Logger) error {
	plan := lockin.Plan{
		StartFrequency:   config.Sweep.StartFrequency,
		StopFrequency:    config.Sweep.StopFrequency,
		PointsPerDecade:  config.Sweep.PointsPerDecade,
		Ascending:        config.Sweep.Ascending,
		Tolerance:        config.Sweep.Tolerance,
		Harmonic:         config.Sweep.Harmonic,
		Phase:            config.Sweep.Phase,
		ReferenceVoltage: config.Sweep.SineVoltage,
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid sweep plan: %w", err)
	}

	// Verify the instrument before recording anything; a failed identity
	// check must not leave an empty session behind.
	idn, err := link.Identify(ctx)
	if err != nil {
		return fmt.Errorf("identifying instrument: %w", err)
	}
	logger.Info("instrument identified", slog.String("idn", idn))

	sessionID, err := store.CreateSession(ctx, idn, port, config.Sweep)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	observer := newStoreObserver(store, sessionID, config.Storage.MaxBatchSize, logger)
	orchestrator := lockin.NewOrchestrator(link,
		lockin.WithObserver(observer),
		lockin.WithLogger(logger))

	var points []lockin.Point
	for point := range orchestrator.Points(ctx, plan) {
		points = append(points, point)
	}
	observer.Flush()

	logSummary(logger, sessionID, points)
	return nil
}

func createLink(config *Config, logger *slog.Logger) (lockin.Link, string, error) {
	if config.Instrument.Simulate {
		logger.Warn("SIMULATION MODE: using the built-in instrument simulator")
		return sr830.NewSimulator(simAmplitude, simPole, simNoise, simSeed), "simulator", nil
	}

	conn, err := sr830.Dial(
		config.Instrument.Port,
		config.Instrument.BaudRate,
		time.Duration(config.Instrument.ReadTimeout),
		connOptions(config, logger)...)
	if err != nil {
		return nil, "", err
	}
	return conn, config.Instrument.Port, nil
}

func connOptions(config *Config, logger *slog.Logger) []func(*sr830.Conn) {
	options := []func(*sr830.Conn){sr830.WithConnLogger(logger)}
	if config.Instrument.GPIB {
		options = append(options, sr830.WithGPIB())
	}
	return options
}

func createStorage(config *StorageConfig) (storage.Store, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbDir := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbDir = filepath.Join(wd, config.DataDirectory)
	}

	stat, err := os.Stat(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("storage directory '%s' does not exist: %w", dbDir, err)
		}
		return nil, "", fmt.Errorf("inspecting storage directory '%s': %w", dbDir, err)
	}
	if !stat.IsDir() {
		return nil, "", fmt.Errorf("invalid storage directory '%s'", dbDir)
	}

	dbPath := filepath.Join(dbDir, fmt.Sprintf("sweep_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), dbPath, nil
}

func logSummary(logger *slog.Logger, sessionID int64, points []lockin.Point) {
	converged := 0
	for _, p := range points {
		if p.Outcome == lockin.Converged {
			converged++
		}
	}

	attrs := []any{
		slog.Int64("session", sessionID),
		slog.Int("points", len(points)),
		slog.Int("converged", converged),
	}
	if len(points) > 0 {
		first, last := points[0].Frequency, points[len(points)-1].Frequency
		firstSI, firstSuffix := humanize.ComputeSI(first)
		lastSI, lastSuffix := humanize.ComputeSI(last)
		attrs = append(attrs,
			slog.String("from", fmt.Sprintf("%.3g %sHz", firstSI, firstSuffix)),
			slog.String("to", fmt.Sprintf("%.3g %sHz", lastSI, lastSuffix)))
	}

	logger.Info("sweep complete", attrs...)
}
