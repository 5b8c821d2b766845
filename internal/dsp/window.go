package dsp

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc weights seq in place and returns it.
type WindowFunc func(seq []float64) []float64

// Hamming returns a Hamming window of length n.
// If n is zero or negative, an empty slice is returned.
func Hamming(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	win := make([]float64, n)
	for i := 0; i < n; i++ {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// WindowByName resolves a window name used in configuration files.
func WindowByName(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hann", "hanning", "":
		return window.Hann, nil
	case "hamming":
		return window.Hamming, nil
	case "blackman":
		return window.Blackman, nil
	case "blackman-harris", "blackmanharris":
		return window.BlackmanHarris, nil
	case "rectangular", "rect", "none":
		return window.Rectangular, nil
	default:
		return nil, fmt.Errorf("unsupported window %q", name)
	}
}

// Coefficients returns the n weights of fn.
func Coefficients(fn WindowFunc, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	if n == 1 {
		return seq
	}
	return fn(seq)
}

// ApplyWindow multiplies samples with the provided window into dst, which is
// grown as needed. The window length must match the input length.
func ApplyWindow(dst, samples, window []float64) []float64 {
	if len(samples) != len(window) {
		return dst[:0]
	}
	if cap(dst) < len(samples) {
		dst = make([]float64, len(samples))
	}
	dst = dst[:len(samples)]
	for i, v := range samples {
		dst[i] = v * window[i]
	}
	return dst
}
