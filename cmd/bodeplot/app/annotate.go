package app

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
	"github.com/Laogeodritt/lockin-sweep/internal/storage"
)

const (
	dpi      float64 = 72
	fontSize float64 = 14
	tickLen  int     = 5
)

type Annotator struct {
	context *freetype.Context
}

// NewAnnotator loads the TTF font and prepares a drawing context for it.
func NewAnnotator(fontPath string) (*Annotator, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(fontSize)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

// Annotate draws the axis scales, curve labels and the session title.
func (a *Annotator) Annotate(img *image.RGBA, r *Renderer, session *storage.Session, points []lockin.Point) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Renderer, *storage.Session, []lockin.Point) error
	}{
		{"drawing frequency scale", a.drawFrequencyScale},
		{"drawing gain scale", a.drawGainScale},
		{"drawing phase scale", a.drawPhaseScale},
		{"drawing title", a.drawTitle},
	}
	for _, op := range ops {
		if err := op.fn(img, r, session, points); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *Annotator) drawFrequencyScale(img *image.RGBA, r *Renderer, _ *storage.Session, _ []lockin.Point) error {
	a.context.SetSrc(image.NewUniform(frameColor))
	plot := r.Plot()

	for _, hz := range r.Decades() {
		x := r.XFreq(hz)
		for i := 0; i < tickLen; i++ {
			img.SetRGBA(x, plot.Max.Y+i, frameColor)
		}

		fract, suffix := humanize.ComputeSI(hz)
		label := fmt.Sprintf("%g %sHz", fract, suffix)

		pt := freetype.Pt(x-12, plot.Max.Y+22)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}

	pt := freetype.Pt(plot.Min.X+plot.Dx()/2-40, img.Bounds().Max.Y-12)
	_, err := a.context.DrawString("Frequency", pt)
	return err
}

func (a *Annotator) drawGainScale(img *image.RGBA, r *Renderer, _ *storage.Session, _ []lockin.Point) error {
	a.context.SetSrc(image.NewUniform(gainColor))
	plot := r.Plot()

	for _, db := range r.GainTicks() {
		y := r.YGain(db)
		for i := 0; i < tickLen; i++ {
			img.SetRGBA(plot.Min.X-1-i, y, frameColor)
		}

		pt := freetype.Pt(8, y+5)
		if _, err := a.context.DrawString(fmt.Sprintf("%+.0f", db), pt); err != nil {
			return err
		}
	}

	pt := freetype.Pt(8, plot.Min.Y-10)
	_, err := a.context.DrawString("Gain (dB)", pt)
	return err
}

func (a *Annotator) drawPhaseScale(img *image.RGBA, r *Renderer, _ *storage.Session, _ []lockin.Point) error {
	a.context.SetSrc(image.NewUniform(phaseColor))
	plot := r.Plot()

	for deg := -180.0; deg <= 180; deg += 90 {
		y := r.YPhase(deg)
		for i := 0; i < tickLen; i++ {
			img.SetRGBA(plot.Max.X+1+i, y, frameColor)
		}

		pt := freetype.Pt(plot.Max.X+10, y+5)
		if _, err := a.context.DrawString(fmt.Sprintf("%+.0f", deg), pt); err != nil {
			return err
		}
	}

	pt := freetype.Pt(plot.Max.X-60, plot.Min.Y-10)
	_, err := a.context.DrawString("Phase (deg)", pt)
	return err
}

func (a *Annotator) drawTitle(img *image.RGBA, r *Renderer, session *storage.Session, points []lockin.Point) error {
	a.context.SetSrc(image.Black)

	fMin, fMax := r.FreqRange()
	minSI, minSuffix := humanize.ComputeSI(fMin)
	maxSI, maxSuffix := humanize.ComputeSI(fMax)

	title := fmt.Sprintf("%s  session %d  %s   %.3g %sHz - %.3g %sHz  (%d points)",
		session.Instrument,
		session.ID,
		session.StartTime.UTC().Format(time.DateTime),
		minSI, minSuffix,
		maxSI, maxSuffix,
		len(points))

	pt := freetype.Pt(leftBorder, 24)
	_, err := a.context.DrawString(title, pt)
	return err
}
