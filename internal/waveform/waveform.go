package waveform

import (
	"fmt"
	"math"
	"strings"
)

// Type selects the modulation of a single pulse.
type Type int

const (
	CW Type = iota
	LFMUp
	LFMDown
)

func (t Type) String() string {
	switch t {
	case CW:
		return "CW"
	case LFMUp:
		return "LFM Up"
	case LFMDown:
		return "LFM Down"
	default:
		return "unknown"
	}
}

// ParseType converts a string to a Type. Both the display names ("LFM Up")
// and the identifier forms ("lfm_up", "lfm-up", "up") are accepted.
func ParseType(s string) (Type, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	switch norm {
	case "cw", "":
		return CW, nil
	case "lfm up", "lfmup", "up":
		return LFMUp, nil
	case "lfm down", "lfmdown", "down":
		return LFMDown, nil
	default:
		return CW, fmt.Errorf("unsupported waveform type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if t < CW || t > LFMDown {
		return nil, fmt.Errorf("unsupported waveform type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Descriptor describes one pulse. BandwidthHz is kept for CW pulses but has
// no effect on them.
type Descriptor struct {
	ID            int     `json:"id,omitempty" yaml:"id,omitempty"`
	Active        bool    `json:"active" yaml:"active"`
	Type          Type    `json:"type" yaml:"type"`
	CenterFreqHz  float64 `json:"centerFreqHz" yaml:"centerFreqHz"`
	BandwidthHz   float64 `json:"bandwidthHz" yaml:"bandwidthHz"`
	PulseWidthSec float64 `json:"pulseWidthSec" yaml:"pulseWidthSec"`
	Amplitude     float64 `json:"amplitude" yaml:"amplitude"`
}

// NumSamples returns the pulse length in samples, round(pw*fs). Degenerate
// inputs produce zero.
func NumSamples(pulseWidthSec float64, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	n := math.Round(pulseWidthSec * float64(sampleRate))
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	return int(n)
}

// chirp returns the start frequency and chirp rate of the pulse.
func (d Descriptor) chirp() (fStart, k float64) {
	switch d.Type {
	case LFMUp:
		fStart = d.CenterFreqHz - d.BandwidthHz/2
		k = d.BandwidthHz / d.PulseWidthSec
	case LFMDown:
		fStart = d.CenterFreqHz + d.BandwidthHz/2
		k = -d.BandwidthHz / d.PulseWidthSec
	default:
		fStart = d.CenterFreqHz
	}
	return fStart, k
}

// Synthesize generates one pulse sampled at sampleRate. Sample n is taken at
// t = n/sampleRate.
func Synthesize(d Descriptor, sampleRate int) []float64 {
	n := NumSamples(d.PulseWidthSec, sampleRate)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	fs := float64(sampleRate)
	fStart, k := d.chirp()
	for i := range out {
		t := float64(i) / fs
		var phase float64
		if d.Type == CW {
			phase = 2 * math.Pi * d.CenterFreqHz * t
		} else {
			phase = 2 * math.Pi * (fStart*t + 0.5*k*t*t)
		}
		out[i] = d.Amplitude * math.Cos(phase)
	}
	return out
}

// InstantaneousFrequency returns fStart + k*t for the pulse, in Hz.
func InstantaneousFrequency(d Descriptor, t float64) float64 {
	if d.Type == CW {
		return d.CenterFreqHz
	}
	fStart, k := d.chirp()
	return fStart + k*t
}

// FrequencyRange returns the lowest and highest instantaneous frequency the
// pulse passes through.
func FrequencyRange(d Descriptor) (lo, hi float64) {
	if d.Type == CW {
		return d.CenterFreqHz, d.CenterFreqHz
	}
	half := math.Abs(d.BandwidthHz) / 2
	return d.CenterFreqHz - half, d.CenterFreqHz + half
}

// MaxFrequency returns the highest frequency reached by any active
// descriptor, or 0 when none is active.
func MaxFrequency(ds []Descriptor) float64 {
	var maxF float64
	for _, d := range ds {
		if !d.Active {
			continue
		}
		if _, hi := FrequencyRange(d); hi > maxF {
			maxF = hi
		}
	}
	return maxF
}

// DisplayLimit picks the upper frequency bound for plots: 1.2x the highest
// active frequency, kept within [1000, fs/2]. Without active pulses it is 1000.
func DisplayLimit(ds []Descriptor, sampleRate int) float64 {
	maxF := MaxFrequency(ds)
	if maxF == 0 {
		return 1000
	}
	limit := maxF * 1.2
	if nyquist := float64(sampleRate) / 2; limit > nyquist {
		limit = nyquist
	}
	if limit < 1000 {
		limit = 1000
	}
	return limit
}
