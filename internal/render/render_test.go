package render

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/dsp"
	"github.com/rjboer/GoPulse/internal/waveform"
)

func TestColorMapperClampsAndOrders(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, Bounds{Min: -90, Max: 0})

	require.Equal(t, cm.Color(-200), cm.Color(-90))
	require.Equal(t, cm.Color(50), cm.Color(0))
	require.Equal(t, color.RGBA{A: 255}, cm.Color(-90))
	require.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, cm.Color(0))
	require.Less(t, cm.Color(-60).R, cm.Color(-30).R)
	require.Equal(t, cm.Color(-90), cm.Color(math.NaN()))
}

func TestParseTheme(t *testing.T) {
	for _, name := range []string{"classic", "JET", " grayscale ", "thermal"} {
		_, err := ParseTheme(name)
		require.NoError(t, err, name)
	}
	th, err := ParseTheme("")
	require.NoError(t, err)
	require.Equal(t, JetTheme, th)

	_, err = ParseTheme("sepia")
	require.Error(t, err)
}

func TestEveryThemeIsOpaque(t *testing.T) {
	for _, th := range []ColorTheme{ClassicTheme, JetTheme, GrayscaleTheme, ThermalTheme} {
		cm := NewColorMapper(th, Bounds{Min: 0, Max: 1})
		for i := 0; i <= 10; i++ {
			require.Equal(t, uint8(255), cm.Color(float64(i)/10).A, th)
		}
	}
}

func TestHumanLabels(t *testing.T) {
	require.Equal(t, "4.00 kHz", HumanHz(4000))
	require.Equal(t, "250.00 ms", HumanSeconds(0.25))
	require.Equal(t, 14, LineHeight())
}

func testBurst() burst.Burst {
	d := waveform.Descriptor{Active: true, Type: waveform.LFMUp, CenterFreqHz: 5000, BandwidthHz: 4000, PulseWidthSec: 0.2, Amplitude: 0.8}
	return burst.Assemble([]waveform.Descriptor{d}, 22050)
}

func TestWaveformPlot(t *testing.T) {
	b := testBurst()
	img, err := Waveform(b.Samples, b.SampleRate, Options{Width: 400, Height: 200, Title: "burst"})
	require.NoError(t, err)
	require.Equal(t, 400, img.Bounds().Dx())
	require.Equal(t, 200, img.Bounds().Dy())

	// The envelope of a 0.8 amplitude chirp reaches well above the midline.
	plot := image2plot(img.Bounds().Dx(), img.Bounds().Dy())
	found := false
	for y := plot.minY; y < plot.midY-20; y++ {
		if img.RGBAAt(plot.minX+plot.w/2, y) == traceColor {
			found = true
			break
		}
	}
	require.True(t, found, "expected trace pixels above the midline")

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())
}

type plotGeom struct{ minX, minY, midY, w int }

func image2plot(width, height int) plotGeom {
	h := height - marginTop - marginBottom
	return plotGeom{minX: marginLeft, minY: marginTop, midY: marginTop + h/2, w: width - marginLeft - marginRight}
}

func TestSpectrogramPlot(t *testing.T) {
	b := testBurst()
	stft, err := dsp.NewSTFT(512, 128, nil)
	require.NoError(t, err)
	spec := stft.Compute(b.Samples, b.SampleRate)

	img, err := Spectrogram(spec, 8400, Options{Width: 300, Height: 240, Theme: GrayscaleTheme})
	require.NoError(t, err)
	require.Equal(t, 300, img.Bounds().Dx())

	// Late in the burst the chirp sweeps through ~6.5 kHz: a bright pixel is
	// expected there, while the top of the plot (8.4 kHz) stays dark.
	h := 240 - marginTop - marginBottom
	w := 300 - marginLeft - marginRight
	yAt := func(hz float64) int { return marginTop + (h - 1) - int(hz/8400*float64(h-1)) }
	x := marginLeft + w*9/10
	require.Greater(t, img.RGBAAt(x, yAt(6480)).R, uint8(150))
	require.Less(t, img.RGBAAt(x, marginTop).R, uint8(100))
}

func TestPlotErrors(t *testing.T) {
	_, err := Waveform(nil, 44100, DefaultOptions())
	require.True(t, errors.Is(err, ErrEmpty))

	_, err = Waveform([]float64{1}, 44100, Options{Width: 10, Height: 10})
	require.True(t, errors.Is(err, ErrTooSmall))

	_, err = Spectrogram(&dsp.Spectrogram{}, 1000, DefaultOptions())
	require.True(t, errors.Is(err, ErrEmpty))
}
