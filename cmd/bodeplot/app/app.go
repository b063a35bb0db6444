package app

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	"github.com/Laogeodritt/lockin-sweep/internal/storage"
)

// Run renders the Bode plot of one stored sweep session into a PNG file.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading session %d: %w", config.SessionID, err)
	}

	points, err := store.SweepPoints(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading sweep points: %w", err)
	}

	// Faulted points carry no usable values; plot the rest.
	plottable := points[:0:0]
	for _, p := range points {
		if p.Outcome != lockin.Faulted {
			plottable = append(plottable, p)
		}
	}
	if len(plottable) < 2 {
		return fmt.Errorf("session %d has %d plottable points, need at least 2", config.SessionID, len(plottable))
	}

	logger.Info("rendering Bode plot",
		slog.Int64("session", session.ID),
		slog.Int("points", len(plottable)),
		slog.Int("skipped", len(points)-len(plottable)))

	renderer := NewRenderer(config.Width, config.Height)
	img := renderer.Render(plottable)

	if !config.NoAnnotations {
		annotator, err := NewAnnotator(config.FontPath)
		if err != nil {
			return fmt.Errorf("creating annotator: %w", err)
		}
		if err = annotator.Annotate(img, renderer, session, plottable); err != nil {
			return fmt.Errorf("annotating: %w", err)
		}
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err = png.Encode(out, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}

	logger.Info("wrote Bode plot", slog.String("path", config.OutputFile))
	return nil
}
