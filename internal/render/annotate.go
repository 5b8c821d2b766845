package render

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi      float64 = 72
	fontSize float64 = 12
)

// Annotator draws text labels with the embedded Go Regular font.
type Annotator struct {
	mu      sync.Mutex
	context *freetype.Context
}

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = freetype.ParseFont(goregular.TTF)
		if fontErr != nil {
			fontErr = fmt.Errorf("parsing font: %w", fontErr)
		}
	})
	return parsedFont, fontErr
}

// NewAnnotator prepares a freetype context with full hinting.
func NewAnnotator() (*Annotator, error) {
	f, err := loadFont()
	if err != nil {
		return nil, err
	}
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(fontSize)
	ctx.SetSrc(image.White)
	ctx.SetHinting(font.HintingFull)
	return &Annotator{context: ctx}, nil
}

// Label is a string drawn with its baseline starting at (X, Y).
type Label struct {
	Text string
	X, Y int
}

// Draw renders labels onto dst in src color.
func (a *Annotator) Draw(dst draw.Image, src image.Image, labels ...Label) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.context.SetClip(dst.Bounds())
	a.context.SetDst(dst)
	a.context.SetSrc(src)
	for _, l := range labels {
		if _, err := a.context.DrawString(l.Text, freetype.Pt(l.X, l.Y)); err != nil {
			return fmt.Errorf("drawing %q: %w", l.Text, err)
		}
	}
	return nil
}

// LineHeight returns the distance between baselines in pixels.
func LineHeight() int {
	return int(math.Round(fontSize * dpi / 72 * 1.2))
}

// HumanHz formats a frequency with an SI prefix, e.g. "4.00 kHz".
func HumanHz(hz float64) string {
	v, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", v, suffix)
}

// HumanSeconds formats a duration in seconds with an SI prefix, e.g. "250.00 ms".
func HumanSeconds(sec float64) string {
	v, suffix := humanize.ComputeSI(sec)
	return fmt.Sprintf("%0.2f %ss", v, suffix)
}
