package burst

import (
	"errors"
	"fmt"
	"math"

	"github.com/rjboer/GoPulse/internal/waveform"
)

const (
	// DefaultSampleRate is used when callers do not pick one.
	DefaultSampleRate = 44100
	// GapSeconds is the silence inserted between consecutive active pulses.
	GapSeconds = 0.05
	// EmptyBurstSamples is the length of the all-zero burst returned when no
	// descriptor is active.
	EmptyBurstSamples = 1000
)

// ErrInsufficientDuration is matched by InsufficientDurationError via errors.Is.
var ErrInsufficientDuration = errors.New("total duration is too short for one cycle")

// InsufficientDurationError reports an export whose total duration cannot
// hold a single burst plus its interval.
type InsufficientDurationError struct {
	TotalDurationSec float64
	CyclePeriodSec   float64
}

func (e *InsufficientDurationError) Error() string {
	return fmt.Sprintf("total duration %.3fs is shorter than one cycle of %.3fs", e.TotalDurationSec, e.CyclePeriodSec)
}

// Is makes errors.Is(err, ErrInsufficientDuration) succeed.
func (e *InsufficientDurationError) Is(target error) bool {
	return target == ErrInsufficientDuration
}

// TransmissionConfig drives scheduling and export tiling. The inter-pulse gap
// is fixed by the engine and is not part of it.
type TransmissionConfig struct {
	IntervalSec      float64 `json:"intervalSec" yaml:"intervalSec"`
	TotalDurationSec float64 `json:"totalDurationSec" yaml:"totalDurationSec"`
}

// Burst is one concatenation of all active pulses and their gaps.
type Burst struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the burst length in seconds.
func (b Burst) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Len returns the number of samples.
func (b Burst) Len() int { return len(b.Samples) }

// GapSamples returns round(GapSeconds * sampleRate).
func GapSamples(sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(math.Round(GapSeconds * float64(sampleRate)))
}

// Assemble synthesizes every active descriptor in order and joins the pulses
// with GapSamples zeros between them. Inactive descriptors are skipped. When
// nothing is active the burst is EmptyBurstSamples zeros.
func Assemble(ds []waveform.Descriptor, sampleRate int) Burst {
	gap := GapSamples(sampleRate)

	pulses := make([][]float64, 0, len(ds))
	total := 0
	for _, d := range ds {
		if !d.Active {
			continue
		}
		p := waveform.Synthesize(d, sampleRate)
		pulses = append(pulses, p)
		total += len(p)
	}
	if len(pulses) == 0 {
		return Burst{Samples: make([]float64, EmptyBurstSamples), SampleRate: sampleRate}
	}
	total += gap * (len(pulses) - 1)

	out := make([]float64, 0, total)
	for i, p := range pulses {
		if i > 0 {
			out = append(out, make([]float64, gap)...)
		}
		out = append(out, p...)
	}
	return Burst{Samples: out, SampleRate: sampleRate}
}

// CyclePeriod returns the burst duration plus the configured interval.
func CyclePeriod(b Burst, cfg TransmissionConfig) float64 {
	return b.Duration() + cfg.IntervalSec
}

// PlaybackCycles returns ceil(total / period), the number of cycles a live
// transmission schedules. A non-positive period yields zero.
func PlaybackCycles(b Burst, cfg TransmissionConfig) int {
	period := CyclePeriod(b, cfg)
	if period <= 0 || !(cfg.TotalDurationSec > 0) || math.IsInf(cfg.TotalDurationSec, 1) {
		return 0
	}
	return int(math.Ceil(cfg.TotalDurationSec / period))
}

// Tile lays the burst at the start of floor(total/period) consecutive cycle
// slots of round(period*fs) samples each; the rest of every slot is silent.
func Tile(b Burst, cfg TransmissionConfig) ([]float64, error) {
	period := CyclePeriod(b, cfg)
	cycles := 0
	if period > 0 {
		cycles = int(math.Floor(cfg.TotalDurationSec / period))
	}
	if cycles < 1 {
		return nil, &InsufficientDurationError{TotalDurationSec: cfg.TotalDurationSec, CyclePeriodSec: period}
	}

	cycleSamples := int(math.Round(period * float64(b.SampleRate)))
	if cycleSamples < len(b.Samples) {
		cycleSamples = len(b.Samples)
	}
	out := make([]float64, cycleSamples*cycles)
	for i := 0; i < cycles; i++ {
		copy(out[i*cycleSamples:], b.Samples)
	}
	return out, nil
}

// TileCapped is Tile with the total duration clamped to maxDurationSec when
// maxDurationSec is positive. It reports whether the clamp applied.
func TileCapped(b Burst, cfg TransmissionConfig, maxDurationSec float64) ([]float64, bool, error) {
	capped := false
	if maxDurationSec > 0 && cfg.TotalDurationSec > maxDurationSec {
		cfg.TotalDurationSec = maxDurationSec
		capped = true
	}
	out, err := Tile(b, cfg)
	return out, capped, err
}
