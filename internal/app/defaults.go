package app

import (
	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/dsp"
	"github.com/rjboer/GoPulse/internal/render"
	"github.com/rjboer/GoPulse/internal/waveform"
)

// DefaultSignals returns the three starter pulses: an active 5 kHz up-chirp,
// an inactive 2 kHz tone and an inactive 8 kHz down-chirp.
func DefaultSignals() []waveform.Descriptor {
	return []waveform.Descriptor{
		{ID: 1, Active: true, Type: waveform.LFMUp, CenterFreqHz: 5000, BandwidthHz: 4000, PulseWidthSec: 0.5, Amplitude: 0.8},
		{ID: 2, Active: false, Type: waveform.CW, CenterFreqHz: 2000, BandwidthHz: 0, PulseWidthSec: 0.5, Amplitude: 0.8},
		{ID: 3, Active: false, Type: waveform.LFMDown, CenterFreqHz: 8000, BandwidthHz: 3000, PulseWidthSec: 0.5, Amplitude: 0.8},
	}
}

// DefaultTransmission repeats the burst every second for five seconds.
func DefaultTransmission() burst.TransmissionConfig {
	return burst.TransmissionConfig{IntervalSec: 1, TotalDurationSec: 5}
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	return Config{
		SampleRate:   burst.DefaultSampleRate,
		Signals:      DefaultSignals(),
		Transmission: DefaultTransmission(),
		ExportCapSec: DefaultExportCapSec,
		FrameSize:    dsp.DefaultFrameSize,
		HopSize:      dsp.DefaultHopSize,
		Window:       "hann",
		Plot:         render.DefaultOptions(),
	}
}
