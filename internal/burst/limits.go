package burst

import (
	"errors"
	"fmt"
	"math"

	"github.com/rjboer/GoPulse/internal/waveform"
)

// Bounds on caller input. Synthesis and scheduling allocate in proportion to
// these values, so they are enforced wherever descriptors or transmission
// settings enter the program.
const (
	MaxSampleRate       = 384000
	MaxSignals          = 32
	MaxPulseWidthSec    = 60.0
	MaxTotalDurationSec = 3600.0
	MaxCycles           = 100000
)

// ErrLimit is wrapped by every bounds violation.
var ErrLimit = errors.New("limit exceeded")

// CheckSignals rejects descriptor sets whose synthesis would exceed the bounds.
func CheckSignals(ds []waveform.Descriptor) error {
	if len(ds) > MaxSignals {
		return fmt.Errorf("%w: %d signals, at most %d", ErrLimit, len(ds), MaxSignals)
	}
	for _, d := range ds {
		if math.IsNaN(d.PulseWidthSec) || d.PulseWidthSec > MaxPulseWidthSec {
			return fmt.Errorf("%w: signal %d pulse width %gs, at most %gs", ErrLimit, d.ID, d.PulseWidthSec, MaxPulseWidthSec)
		}
	}
	return nil
}

// CheckTransmission rejects a total duration above MaxTotalDurationSec.
func CheckTransmission(cfg TransmissionConfig) error {
	if cfg.TotalDurationSec > MaxTotalDurationSec {
		return fmt.Errorf("%w: total duration %gs, at most %gs", ErrLimit, cfg.TotalDurationSec, MaxTotalDurationSec)
	}
	return nil
}

// CheckCycles rejects schedules with more than MaxCycles playback cycles.
func CheckCycles(b Burst, cfg TransmissionConfig) error {
	if n := PlaybackCycles(b, cfg); n > MaxCycles {
		return fmt.Errorf("%w: %d cycles, at most %d", ErrLimit, n, MaxCycles)
	}
	return nil
}
