package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0

	defaultWidth  = 1200
	defaultHeight = 400

	defaultTopBorder    = 20
	defaultLeftBorder   = 90
	defaultBottomBorder = 60
	defaultRightBorder  = 30
)

var (
	traceColor     = color.RGBA{R: 0x1f, G: 0x4e, B: 0xa8, A: 0xff}
	thresholdColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	markerColor    = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	frameColor     = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// BorderConfig is the white space around the plot area
type BorderConfig struct {
	Top    int
	Left   int // y scale
	Bottom int // x scale and info bar
	Right  int
}

// RenderConfig holds the plot options. Width and Height size the plot area
// of traces; waterfalls are drawn one pixel per bin and row.
type RenderConfig struct {
	Width        int
	Height       int
	FontSize     float64
	ColorTheme   ColorTheme
	BorderConfig BorderConfig
}

// Trace is a series plotted against its sample index
type Trace struct {
	Values    []float64
	Offset    int     // sample index of Values[0] in the capture
	Rate      float64 // samples per second, zero labels the axis in samples
	Threshold *float64
	Markers   []int // indices into Values
	Info      string
}

// Waterfall is a sequence of spectra, DC in the middle of every row
type Waterfall struct {
	Rows        [][]float64 // dBFS
	Rate        float64     // zero labels the axis in bins
	Center      float64
	RowDuration time.Duration
	Info        string
}

// Renderer draws traces and waterfalls with their scales
type Renderer struct {
	config RenderConfig
}

func NewRenderer(config RenderConfig) *Renderer {
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig == (BorderConfig{}) {
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}
	return &Renderer{config: config}
}

func (r *Renderer) canvas(width, height int) (*image.RGBA, image.Rectangle) {
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, width+b.Left+b.Right, height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img, image.Rect(b.Left, b.Top, b.Left+width, b.Top+height)
}

// RenderTrace draws the min/max envelope of the trace, one column per pixel
func (r *Renderer) RenderTrace(t *Trace) (*image.RGBA, error) {
	n := len(t.Values)
	if n == 0 {
		return nil, errors.New("empty trace")
	}

	img, area := r.canvas(r.config.Width, r.config.Height)

	lo, hi := valueRange(t.Values)
	if t.Threshold != nil {
		lo, hi = math.Min(lo, *t.Threshold), math.Max(hi, *t.Threshold)
	}
	if hi == lo {
		lo, hi = lo-1, hi+1
	}

	w, h := area.Dx(), area.Dy()
	toY := func(v float64) int {
		return area.Min.Y + int((hi-v)/(hi-lo)*float64(h-1))
	}

	for x := 0; x < w; x++ {
		i0 := x * n / w
		i1 := max(i0+1, (x+1)*n/w)
		cLo, cHi := valueRange(t.Values[i0:i1])
		for y := toY(cHi); y <= toY(cLo); y++ {
			img.Set(area.Min.X+x, y, traceColor)
		}
	}

	if t.Threshold != nil {
		y := toY(*t.Threshold)
		for x := area.Min.X; x < area.Max.X; x++ {
			if (x/4)%2 == 0 {
				img.Set(x, y, thresholdColor)
			}
		}
	}

	for _, m := range t.Markers {
		if m < 0 || m >= n {
			continue
		}
		x := area.Min.X + m*w/n
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, markerColor)
		}
	}

	drawFrame(img, area)

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	xMin, xMax, xLabel := float64(t.Offset), float64(t.Offset+n), formatSamples
	if t.Rate > 0 {
		xMin, xMax, xLabel = xMin/t.Rate, xMax/t.Rate, formatSeconds
	}

	err = ann.annotate(img, []annotation{
		{"drawing x scale", func() error { return ann.drawXScale(img, area, xMin, xMax, xLabel) }},
		{"drawing y scale", func() error { return ann.drawYScale(img, area, hi, lo, formatValue) }},
		{"drawing info", func() error { return ann.drawInfo(img, t.Info) }},
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// RenderWaterfall draws every spectrum as a row, the first at the top
func (r *Renderer) RenderWaterfall(wf *Waterfall, bounds PowerBounds) (*image.RGBA, error) {
	if len(wf.Rows) == 0 || len(wf.Rows[0]) == 0 {
		return nil, errors.New("empty waterfall")
	}

	width, height := len(wf.Rows[0]), len(wf.Rows)
	img, area := r.canvas(width, height)

	cm := NewColorMapper(r.config.ColorTheme, bounds)
	for y, row := range wf.Rows {
		for x, power := range row {
			img.Set(area.Min.X+x, area.Min.Y+y, cm.Color(power))
		}
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	fMin, fMax, fLabel := -float64(width)/2, float64(width)/2, formatBins
	if wf.Rate > 0 {
		fMin, fMax, fLabel = wf.Center-wf.Rate/2, wf.Center+wf.Rate/2, formatFrequency
	}

	tMax, tLabel := float64(height), formatRows
	if wf.RowDuration > 0 {
		tMax, tLabel = wf.RowDuration.Seconds()*float64(height), formatSeconds
	}

	info := fmt.Sprintf("%s; power %0.1f to %0.1f dBFS", wf.Info, bounds.Min, bounds.Max)

	err = ann.annotate(img, []annotation{
		{"drawing frequency scale", func() error { return ann.drawXScale(img, area, fMin, fMax, fLabel) }},
		{"drawing time scale", func() error { return ann.drawYScale(img, area, 0, tMax, tLabel) }},
		{"drawing info", func() error { return ann.drawInfo(img, info) }},
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func valueRange(x []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range x {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X - 1; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y-1, frameColor)
		img.Set(x, area.Max.Y, frameColor)
	}
	for y := area.Min.Y - 1; y <= area.Max.Y; y++ {
		img.Set(area.Min.X-1, y, frameColor)
		img.Set(area.Max.X, y, frameColor)
	}
}

type annotation struct {
	msg string
	fn  func() error
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	borders  BorderConfig
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		borders: config.BorderConfig,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, ops []annotation) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawXScale labels the bottom edge of area, from lo at the left to hi at the right
func (a *annotator) drawXScale(img *image.RGBA, area image.Rectangle, lo, hi float64, label func(float64) string) error {
	if hi <= lo {
		return nil
	}
	step := niceStep(hi-lo, area.Dx())
	textY := area.Max.Y + tickMarkLength + a.fontHeight()

	for k := math.Ceil(lo / step); k*step <= hi; k++ {
		v := k * step
		x := area.Min.X + int((v-lo)/(hi-lo)*float64(area.Dx()-1))
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		s := label(v)
		width := font.MeasureString(a.fontFace, s).Round()
		if _, err := a.context.DrawString(s, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

// drawYScale labels the left edge of area, from top at the top to bottom at the bottom
func (a *annotator) drawYScale(img *image.RGBA, area image.Rectangle, top, bottom float64, label func(float64) string) error {
	lo, hi := math.Min(top, bottom), math.Max(top, bottom)
	if hi <= lo {
		return nil
	}
	step := niceStep(hi-lo, area.Dy())
	descent := a.fontFace.Metrics().Descent.Round()

	for k := math.Ceil(lo / step); k*step <= hi; k++ {
		v := k * step
		y := area.Min.Y + int((v-top)/(bottom-top)*float64(area.Dy()-1))
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		s := label(v)
		width := font.MeasureString(a.fontFace, s).Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-3-width, y+a.fontHeight()/2-descent)
		if _, err := a.context.DrawString(s, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfo(img *image.RGBA, info string) error {
	if info == "" {
		return nil
	}
	textY := img.Bounds().Max.Y - a.fontFace.Metrics().Descent.Round() - 4
	_, err := a.context.DrawString(info, freetype.Pt(a.borders.Left, textY))
	return err
}

// niceStep returns a 1, 2 or 5 times a power of ten step giving about one
// label per pixelsPerLabel
func niceStep(span float64, pixels int) float64 {
	if span <= 0 {
		return 1
	}
	rough := span / math.Max(1, float64(pixels)/pixelsPerLabel)
	exp := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5} {
		if step := m * exp; step >= rough {
			return step
		}
	}
	return 10 * exp
}

func formatFrequency(hz float64) string {
	return humanize.SIWithDigits(hz, 3, "Hz")
}

func formatSeconds(s float64) string {
	return humanize.SIWithDigits(s, 2, "s")
}

func formatSamples(n float64) string {
	return humanize.Comma(int64(math.Round(n)))
}

func formatBins(n float64) string {
	return fmt.Sprintf("%d", int(math.Round(n)))
}

func formatRows(n float64) string {
	return fmt.Sprintf("#%d", int(math.Round(n)))
}

func formatValue(v float64) string {
	if math.Abs(v) >= 1e4 {
		return humanize.SIWithDigits(v, 2, "")
	}
	return humanize.FtoaWithDigits(v, 3)
}
