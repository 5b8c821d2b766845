package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MinDB is the floor applied to magnitudes so silent frames stay finite.
const MinDB = -120.0

// BinFrequency returns the centre frequency in Hz of bin i of an n-point
// real FFT at sampleRate.
func BinFrequency(i, n int, sampleRate float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(i) * sampleRate / float64(n)
}

// MagnitudeDBFS performs a real FFT on a single frame, applies a Hann window,
// normalizes by the window sum, and converts the one-sided magnitude to
// dBFS. A full-scale sine lands at ~0 dB. The result has len(frame)/2+1 bins.
func MagnitudeDBFS(frame []float64) []float64 {
	if len(frame) == 0 {
		return []float64{}
	}
	win, _ := WindowByName("hann")
	coeffs := Coefficients(win, len(frame))
	windowed := ApplyWindow(nil, frame, coeffs)
	spec := fourier.NewFFT(len(frame)).Coefficients(nil, windowed)
	return toDBFS(spec, sum(coeffs))
}

func toDBFS(spec []complex128, windowSum float64) []float64 {
	db := make([]float64, len(spec))
	if windowSum == 0 {
		for i := range db {
			db[i] = MinDB
		}
		return db
	}
	for i, v := range spec {
		mag := cmplx.Abs(v) / windowSum
		if i != 0 {
			mag *= 2
		}
		if mag == 0 {
			db[i] = MinDB
			continue
		}
		db[i] = math.Max(MinDB, 20*math.Log10(mag))
	}
	return db
}

// PeakBin returns the index and value of the largest element.
func PeakBin(db []float64) (int, float64) {
	best, bestVal := -1, math.Inf(-1)
	for i, v := range db {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best, bestVal
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
