package app

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
)

// Border sizes in pixels around the plot area.
const (
	topBorder    = 50
	leftBorder   = 80
	bottomBorder = 60
	rightBorder  = 80
)

// gainStep is the spacing of the gain gridlines in dB.
const gainStep = 10.0

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	frameColor      = color.RGBA{40, 40, 40, 255}
	gridColor       = color.RGBA{220, 220, 220, 255}
	gainColor       = color.RGBA{0, 90, 200, 255}
	phaseColor      = color.RGBA{200, 60, 0, 255}
)

// Renderer maps sweep points onto the image plane: frequency on a log10
// horizontal axis, gain in dB on the left vertical axis and phase in degrees
// on a fixed [-180, 180] right vertical axis.
type Renderer struct {
	width, height int
	plot          image.Rectangle

	logFMin, logFMax float64
	gainMin, gainMax float64
}

// NewRenderer creates a renderer for the given image size.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		width:  width,
		height: height,
		plot:   image.Rect(leftBorder, topBorder, width-rightBorder, height-bottomBorder),
	}
}

// Render scales the axes to the data and draws the grid and both curves.
func (r *Renderer) Render(points []lockin.Point) *image.RGBA {
	r.fitAxes(points)

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	r.drawGrid(img)

	r.drawCurve(img, points, gainColor, func(p lockin.Point) int { return r.YGain(p.GainDB) })
	r.drawCurve(img, points, phaseColor, func(p lockin.Point) int { return r.YPhase(p.Phase) })

	r.drawFrame(img)
	return img
}

// Plot returns the plot area rectangle.
func (r *Renderer) Plot() image.Rectangle { return r.plot }

// FreqRange returns the frequency axis bounds in Hz.
func (r *Renderer) FreqRange() (min, max float64) {
	return math.Pow(10, r.logFMin), math.Pow(10, r.logFMax)
}

// GainRange returns the gain axis bounds in dB.
func (r *Renderer) GainRange() (min, max float64) { return r.gainMin, r.gainMax }

// XFreq maps a frequency to a horizontal pixel position.
func (r *Renderer) XFreq(f float64) int {
	frac := (math.Log10(f) - r.logFMin) / (r.logFMax - r.logFMin)
	return r.plot.Min.X + int(frac*float64(r.plot.Dx()))
}

// YGain maps a gain in dB to a vertical pixel position.
func (r *Renderer) YGain(db float64) int {
	frac := (db - r.gainMin) / (r.gainMax - r.gainMin)
	return r.plot.Max.Y - int(frac*float64(r.plot.Dy()))
}

// YPhase maps a phase in degrees to a vertical pixel position.
func (r *Renderer) YPhase(deg float64) int {
	frac := (deg + 180) / 360
	return r.plot.Max.Y - int(frac*float64(r.plot.Dy()))
}

func (r *Renderer) fitAxes(points []lockin.Point) {
	fMin, fMax := math.Inf(1), math.Inf(-1)
	gMin, gMax := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		fMin = math.Min(fMin, p.Frequency)
		fMax = math.Max(fMax, p.Frequency)
		if !math.IsInf(p.GainDB, 0) && !math.IsNaN(p.GainDB) {
			gMin = math.Min(gMin, p.GainDB)
			gMax = math.Max(gMax, p.GainDB)
		}
	}

	r.logFMin = math.Log10(fMin)
	r.logFMax = math.Log10(fMax)
	if r.logFMax == r.logFMin {
		r.logFMax = r.logFMin + 1
	}

	// Pad the gain range to whole gridline steps so curves never touch the
	// frame.
	r.gainMin = gainStep * math.Floor(gMin/gainStep-0.5)
	r.gainMax = gainStep * math.Ceil(gMax/gainStep+0.5)
}

// Decades returns the frequencies of whole-decade gridlines within range.
func (r *Renderer) Decades() []float64 {
	var decades []float64
	for d := math.Ceil(r.logFMin); d <= math.Floor(r.logFMax); d++ {
		decades = append(decades, math.Pow(10, d))
	}
	return decades
}

// GainTicks returns the gain gridline values within range.
func (r *Renderer) GainTicks() []float64 {
	var ticks []float64
	for g := r.gainMin; g <= r.gainMax; g += gainStep {
		ticks = append(ticks, g)
	}
	return ticks
}

func (r *Renderer) drawGrid(img *image.RGBA) {
	for _, f := range r.Decades() {
		x := r.XFreq(f)
		drawLine(img, x, r.plot.Min.Y, x, r.plot.Max.Y, gridColor)
	}
	for _, g := range r.GainTicks() {
		y := r.YGain(g)
		drawLine(img, r.plot.Min.X, y, r.plot.Max.X, y, gridColor)
	}
}

func (r *Renderer) drawFrame(img *image.RGBA) {
	drawLine(img, r.plot.Min.X, r.plot.Min.Y, r.plot.Max.X, r.plot.Min.Y, frameColor)
	drawLine(img, r.plot.Min.X, r.plot.Max.Y, r.plot.Max.X, r.plot.Max.Y, frameColor)
	drawLine(img, r.plot.Min.X, r.plot.Min.Y, r.plot.Min.X, r.plot.Max.Y, frameColor)
	drawLine(img, r.plot.Max.X, r.plot.Min.Y, r.plot.Max.X, r.plot.Max.Y, frameColor)
}

func (r *Renderer) drawCurve(img *image.RGBA, points []lockin.Point, c color.RGBA, yOf func(lockin.Point) int) {
	for i := 1; i < len(points); i++ {
		x0, y0 := r.XFreq(points[i-1].Frequency), yOf(points[i-1])
		x1, y1 := r.XFreq(points[i].Frequency), yOf(points[i])
		drawThickLine(img, x0, y0, x1, y1, c)
	}
}

// drawLine draws a one-pixel line with the integer Bresenham walk.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawThickLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	drawLine(img, x0, y0, x1, y1, c)
	drawLine(img, x0, y0+1, x1, y1+1, c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
