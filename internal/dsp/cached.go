package dsp

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFrameSize = 1024
	DefaultHopSize   = 256
)

// Spectrogram is the magnitude of a short-time Fourier transform. Frames[i]
// holds FrameSize/2+1 dBFS bins for the frame starting at sample i*HopSize.
type Spectrogram struct {
	Frames     [][]float64
	FrameSize  int
	HopSize    int
	SampleRate int
}

// FrameTime returns the start time in seconds of frame i.
func (s *Spectrogram) FrameTime(i int) float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(i*s.HopSize) / float64(s.SampleRate)
}

// BinFrequency returns the frequency in Hz of bin j.
func (s *Spectrogram) BinFrequency(j int) float64 {
	return BinFrequency(j, s.FrameSize, float64(s.SampleRate))
}

// Bins returns the number of frequency bins per frame.
func (s *Spectrogram) Bins() int {
	return s.FrameSize/2 + 1
}

// STFT pre-computes and caches the analysis window and FFT plan so repeated
// spectrograms of the same frame size avoid reallocating them.
type STFT struct {
	mu        sync.Mutex
	window    []float64
	windowSum float64
	frameSize int
	hopSize   int
	fft       *fourier.FFT
	scratch   []float64
	coeffs    []complex128
}

// NewSTFT creates a transform with the given frame size, hop and window.
func NewSTFT(frameSize, hopSize int, fn WindowFunc) (*STFT, error) {
	if frameSize < 2 {
		return nil, fmt.Errorf("frame size must be at least 2, got %d", frameSize)
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d", hopSize)
	}
	if fn == nil {
		fn, _ = WindowByName("hann")
	}
	win := Coefficients(fn, frameSize)
	return &STFT{
		window:    win,
		windowSum: sum(win),
		frameSize: frameSize,
		hopSize:   hopSize,
		fft:       fourier.NewFFT(frameSize),
	}, nil
}

// FrameSize returns the analysis frame length.
func (s *STFT) FrameSize() int { return s.frameSize }

// HopSize returns the distance between frame starts.
func (s *STFT) HopSize() int { return s.hopSize }

// Compute returns the spectrogram of samples. The last partial frame is zero
// padded; an input shorter than one frame yields a single padded frame.
func (s *STFT) Compute(samples []float64, sampleRate int) *Spectrogram {
	out := &Spectrogram{
		FrameSize:  s.frameSize,
		HopSize:    s.hopSize,
		SampleRate: sampleRate,
	}
	if len(samples) == 0 {
		return out
	}

	numFrames := 1
	if len(samples) > s.frameSize {
		numFrames += (len(samples) - s.frameSize + s.hopSize - 1) / s.hopSize
	}
	out.Frames = make([][]float64, 0, numFrames)

	s.mu.Lock()
	defer s.mu.Unlock()

	frame := make([]float64, s.frameSize)
	for f := 0; f < numFrames; f++ {
		start := f * s.hopSize
		end := min(start+s.frameSize, len(samples))
		n := copy(frame, samples[start:end])
		clear(frame[n:])

		s.scratch = ApplyWindow(s.scratch, frame, s.window)
		s.coeffs = s.fft.Coefficients(s.coeffs, s.scratch)
		out.Frames = append(out.Frames, toDBFS(s.coeffs, s.windowSum))
	}
	return out
}
