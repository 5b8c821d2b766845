// Package render draws the burst waveform and its spectrogram as PNG images.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/rjboer/GoPulse/internal/dsp"
)

// Options controls the size and look of a plot.
type Options struct {
	Width   int
	Height  int
	Theme   ColorTheme
	Title   string
	FloorDB float64
}

// DefaultOptions returns a 1024x400 plot with the jet palette and a -90 dBFS floor.
func DefaultOptions() Options {
	return Options{Width: 1024, Height: 400, Theme: JetTheme, FloorDB: -90}
}

const (
	marginLeft   = 72
	marginRight  = 12
	marginTop    = 24
	marginBottom = 28
	xTicks       = 5
	yTicks       = 4
)

var (
	ErrEmpty    = errors.New("render: nothing to plot")
	ErrTooSmall = errors.New("render: image too small")
	background  = color.RGBA{R: 16, G: 18, B: 27, A: 255}
	gridColor   = color.RGBA{R: 48, G: 52, B: 68, A: 255}
	traceColor  = color.RGBA{R: 64, G: 200, B: 255, A: 255}
	labelColor  = image.NewUniform(color.RGBA{R: 220, G: 220, B: 230, A: 255})
)

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.Theme == "" {
		o.Theme = d.Theme
	}
	if o.FloorDB >= 0 {
		o.FloorDB = d.FloorDB
	}
	return o
}

// frame is the canvas with its plotting rectangle.
type frame struct {
	img  *image.RGBA
	plot image.Rectangle
}

func newFrame(o Options) (*frame, error) {
	if o.Width <= marginLeft+marginRight+1 || o.Height <= marginTop+marginBottom+1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooSmall, o.Width, o.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return &frame{
		img:  img,
		plot: image.Rect(marginLeft, marginTop, o.Width-marginRight, o.Height-marginBottom),
	}, nil
}

func (f *frame) hline(y int, c color.Color) {
	for x := f.plot.Min.X; x < f.plot.Max.X; x++ {
		f.img.Set(x, y, c)
	}
}

func (f *frame) vline(x, y0, y1 int, c color.Color) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		f.img.Set(x, y, c)
	}
}

// xAxis labels the horizontal axis with times spanning [0, durationSec].
func (f *frame) xAxis(durationSec float64) []Label {
	labels := make([]Label, 0, xTicks+1)
	for i := 0; i <= xTicks; i++ {
		x := f.plot.Min.X + i*(f.plot.Dx()-1)/xTicks
		f.vline(x, f.plot.Max.Y, f.plot.Max.Y+4, gridColor)
		text := HumanSeconds(durationSec * float64(i) / xTicks)
		if i == 0 {
			text = "0 s"
		}
		lx := x - 20
		if i == 0 {
			lx = x
		}
		labels = append(labels, Label{Text: text, X: lx, Y: f.plot.Max.Y + 4 + LineHeight()})
	}
	return labels
}

func (f *frame) title(o Options) []Label {
	if o.Title == "" {
		return nil
	}
	return []Label{{Text: o.Title, X: marginLeft, Y: marginTop - 8}}
}

// Waveform draws the min/max envelope of samples per pixel column.
func Waveform(samples []float64, sampleRate int, o Options) (*image.RGBA, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, ErrEmpty
	}
	o = o.normalized()
	f, err := newFrame(o)
	if err != nil {
		return nil, err
	}

	w, h := f.plot.Dx(), f.plot.Dy()
	mid := f.plot.Min.Y + h/2
	half := float64(h-1) / 2
	toY := func(v float64) int {
		v = math.Max(-1, math.Min(1, v))
		return mid - int(math.Round(v*half))
	}

	labels := f.title(o)
	for i := 0; i <= yTicks; i++ {
		v := 1 - 2*float64(i)/yTicks
		y := toY(v)
		f.hline(y, gridColor)
		labels = append(labels, Label{Text: fmt.Sprintf("%+.1f", v), X: 8, Y: y + 4})
	}

	n := len(samples)
	for x := 0; x < w; x++ {
		start := x * n / w
		end := (x + 1) * n / w
		if end <= start {
			end = start + 1
		}
		if start >= n {
			break
		}
		end = min(end, n)
		lo, hi := samples[start], samples[start]
		for _, v := range samples[start+1 : end] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		f.vline(f.plot.Min.X+x, toY(hi), toY(lo), traceColor)
	}

	labels = append(labels, f.xAxis(float64(n)/float64(sampleRate))...)
	if err := annotate(f.img, labels); err != nil {
		return nil, err
	}
	return f.img, nil
}

// Spectrogram draws time on the horizontal axis and frequency from 0 to
// maxFreqHz on the vertical axis, low frequencies at the bottom.
func Spectrogram(spec *dsp.Spectrogram, maxFreqHz float64, o Options) (*image.RGBA, error) {
	if spec == nil || len(spec.Frames) == 0 || spec.SampleRate <= 0 {
		return nil, ErrEmpty
	}
	o = o.normalized()
	f, err := newFrame(o)
	if err != nil {
		return nil, err
	}
	nyquist := float64(spec.SampleRate) / 2
	if maxFreqHz <= 0 || maxFreqHz > nyquist {
		maxFreqHz = nyquist
	}

	cm := NewColorMapper(o.Theme, Bounds{Min: o.FloorDB, Max: 0})
	w, h := f.plot.Dx(), f.plot.Dy()
	binHz := spec.BinFrequency(1)
	bins := spec.Bins()

	for x := 0; x < w; x++ {
		col := spec.Frames[min(x*len(spec.Frames)/w, len(spec.Frames)-1)]
		for y := 0; y < h; y++ {
			hz := maxFreqHz * float64(h-1-y) / float64(max(h-1, 1))
			bin := int(math.Round(hz / binHz))
			if bin >= bins {
				bin = bins - 1
			}
			f.img.SetRGBA(f.plot.Min.X+x, f.plot.Min.Y+y, cm.Color(col[bin]))
		}
	}

	labels := f.title(o)
	for i := 0; i <= yTicks; i++ {
		hz := maxFreqHz * float64(i) / yTicks
		y := f.plot.Max.Y - 1 - i*(h-1)/yTicks
		for x := f.plot.Min.X - 4; x < f.plot.Min.X; x++ {
			f.img.Set(x, y, gridColor)
		}
		labels = append(labels, Label{Text: HumanHz(hz), X: 4, Y: y + 4})
	}
	duration := float64(len(spec.Frames)*spec.HopSize) / float64(spec.SampleRate)
	labels = append(labels, f.xAxis(duration)...)
	if err := annotate(f.img, labels); err != nil {
		return nil, err
	}
	return f.img, nil
}

func annotate(img *image.RGBA, labels []Label) error {
	a, err := NewAnnotator()
	if err != nil {
		return err
	}
	return a.Draw(img, labelColor, labels...)
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
