package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/dsp"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/metrics"
	"github.com/rjboer/GoPulse/internal/render"
	"github.com/rjboer/GoPulse/internal/scheduler"
	"github.com/rjboer/GoPulse/internal/waveform"
	"github.com/rjboer/GoPulse/internal/wav"
)

// DefaultExportCapSec bounds exported files to five minutes.
const DefaultExportCapSec = 300

var (
	ErrUnknownSignal = errors.New("unknown signal id")
	ErrNotStarted    = errors.New("transmission did not start")
)

// Config captures application level configuration.
type Config struct {
	SampleRate   int
	Signals      []waveform.Descriptor
	Transmission burst.TransmissionConfig
	// ExportCapSec clamps the exported duration; zero disables the cap.
	ExportCapSec float64
	FrameSize    int
	HopSize      int
	Window       string
	Plot         render.Options
}

// Status is a snapshot of the transmitter for reporting.
type Status struct {
	State            string  `json:"state"`
	Session          string  `json:"session,omitempty"`
	Dispatched       int     `json:"dispatched"`
	Skipped          int     `json:"skipped"`
	SampleRate       int     `json:"sampleRate"`
	BurstSamples     int     `json:"burstSamples"`
	BurstDurationSec float64 `json:"burstDurationSec"`
	CyclePeriodSec   float64 `json:"cyclePeriodSec"`
	PlaybackCycles   int     `json:"playbackCycles"`
	ExportCycles     int     `json:"exportCycles"`
	DisplayLimitHz   float64 `json:"displayLimitHz"`
}

// ExportResult describes a written WAV file.
type ExportResult struct {
	Bytes       int64   `json:"bytes"`
	Samples     int     `json:"samples"`
	DurationSec float64 `json:"durationSec"`
	Capped      bool    `json:"capped"`
}

// Transmitter owns the signal set, keeps the assembled burst current and
// drives the scheduler and the exporters with it.
type Transmitter struct {
	mu     sync.RWMutex
	cfg    Config
	burst  burst.Burst
	sched  *scheduler.Scheduler
	stft   *dsp.STFT
	logger logging.Logger
	last   *scheduler.Session
}

// NewTransmitter validates cfg, assembles the initial burst and binds the
// transmitter to sched.
func NewTransmitter(sched *scheduler.Scheduler, logger logging.Logger, cfg Config) (*Transmitter, error) {
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = burst.DefaultSampleRate
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = dsp.DefaultFrameSize
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = dsp.DefaultHopSize
	}
	win, err := dsp.WindowByName(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("spectrogram window: %w", err)
	}
	stft, err := dsp.NewSTFT(cfg.FrameSize, cfg.HopSize, win)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: %w", err)
	}
	cfg.Signals = append([]waveform.Descriptor(nil), cfg.Signals...)
	cfg.Transmission = coerce(cfg.Transmission)
	if err := burst.CheckSignals(cfg.Signals); err != nil {
		return nil, err
	}
	if err := burst.CheckTransmission(cfg.Transmission); err != nil {
		return nil, err
	}

	t := &Transmitter{
		cfg:    cfg,
		sched:  sched,
		stft:   stft,
		logger: logger.With(logging.Field{Key: "subsystem", Value: "transmitter"}),
	}
	t.regenerate()
	return t, nil
}

// coerce replaces non-finite or negative inputs with zero.
func coerce(tc burst.TransmissionConfig) burst.TransmissionConfig {
	fix := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	}
	return burst.TransmissionConfig{IntervalSec: fix(tc.IntervalSec), TotalDurationSec: fix(tc.TotalDurationSec)}
}

// regenerate must be called with t.mu held for writing (or before t is shared).
func (t *Transmitter) regenerate() {
	t.burst = burst.Assemble(t.cfg.Signals, t.cfg.SampleRate)
	metrics.BurstSamples.Set(float64(t.burst.Len()))
	t.logger.Debug("burst assembled",
		logging.Field{Key: "samples", Value: t.burst.Len()},
		logging.Field{Key: "duration_sec", Value: t.burst.Duration()},
	)
}

// Signals returns a copy of the configured descriptors.
func (t *Transmitter) Signals() []waveform.Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]waveform.Descriptor(nil), t.cfg.Signals...)
}

// SetSignals replaces every descriptor and reassembles the burst. A playing
// session keeps the burst it started with. Sets beyond the burst limits are
// rejected with an error wrapping burst.ErrLimit and leave the state unchanged.
func (t *Transmitter) SetSignals(ds []waveform.Descriptor) error {
	if err := burst.CheckSignals(ds); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Signals = append([]waveform.Descriptor(nil), ds...)
	t.regenerate()
	return nil
}

// UpdateSignal replaces the descriptor carrying id.
func (t *Transmitter) UpdateSignal(id int, d waveform.Descriptor) error {
	if err := burst.CheckSignals([]waveform.Descriptor{d}); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.cfg.Signals {
		if t.cfg.Signals[i].ID == id {
			d.ID = id
			t.cfg.Signals[i] = d
			t.regenerate()
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownSignal, id)
}

// Transmission returns the interval and total duration.
func (t *Transmitter) Transmission() burst.TransmissionConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.Transmission
}

// SetTransmission coerces and stores the interval and total duration. A total
// above burst.MaxTotalDurationSec is rejected.
func (t *Transmitter) SetTransmission(tc burst.TransmissionConfig) (burst.TransmissionConfig, error) {
	tc = coerce(tc)
	if err := burst.CheckTransmission(tc); err != nil {
		return t.Transmission(), err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Transmission = tc
	return tc, nil
}

// Burst returns the current burst. The samples are shared and must not be
// modified.
func (t *Transmitter) Burst() burst.Burst {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.burst
}

// Start begins a live transmission of the current burst. It reports false
// when a transmission is already playing or nothing can be scheduled.
func (t *Transmitter) Start() (*scheduler.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sched.Start(t.burst, t.cfg.Transmission)
	if ok {
		t.last = sess
	}
	return sess, ok
}

// Stop halts the playing transmission, if any.
func (t *Transmitter) Stop() {
	t.sched.StopCurrent()
}

// Run starts a transmission and blocks until it finishes. Cancelling ctx
// stops it.
func (t *Transmitter) Run(ctx context.Context) error {
	sess, ok := t.Start()
	if !ok {
		return ErrNotStarted
	}
	select {
	case <-sess.Done():
		dispatched, skipped := sess.Stats()
		t.logger.Info("transmission done",
			logging.Field{Key: "outcome", Value: sess.Outcome().String()},
			logging.Field{Key: "dispatched", Value: dispatched},
			logging.Field{Key: "skipped", Value: skipped},
		)
		return nil
	case <-ctx.Done():
		t.sched.Stop(sess)
		return ctx.Err()
	}
}

// Status summarizes the burst, the schedule it implies and the last session.
func (t *Transmitter) Status() Status {
	t.mu.RLock()
	b := t.burst
	tc := t.cfg.Transmission
	signals := t.cfg.Signals
	last := t.last
	t.mu.RUnlock()

	st := Status{
		State:            t.sched.State().String(),
		SampleRate:       b.SampleRate,
		BurstSamples:     b.Len(),
		BurstDurationSec: b.Duration(),
		CyclePeriodSec:   burst.CyclePeriod(b, tc),
		PlaybackCycles:   burst.PlaybackCycles(b, tc),
		DisplayLimitHz:   waveform.DisplayLimit(signals, b.SampleRate),
	}
	if st.CyclePeriodSec > 0 {
		st.ExportCycles = int(math.Floor(tc.TotalDurationSec / st.CyclePeriodSec))
	}
	if last != nil {
		st.Session = last.ID()
		st.Dispatched, st.Skipped = last.Stats()
	}
	return st
}

// Export writes the tiled transmission as WAV to w. It fails with
// burst.ErrInsufficientDuration when no whole cycle fits.
func (t *Transmitter) Export(w io.Writer) (ExportResult, error) {
	t.mu.RLock()
	b := t.burst
	tc := t.cfg.Transmission
	capSec := t.cfg.ExportCapSec
	t.mu.RUnlock()

	samples, capped, err := burst.TileCapped(b, tc, capSec)
	if err != nil {
		if errors.Is(err, burst.ErrInsufficientDuration) {
			metrics.ExportsTotal.WithLabelValues("insufficient_duration").Inc()
		} else {
			metrics.ExportsTotal.WithLabelValues("error").Inc()
		}
		return ExportResult{}, err
	}
	if capped {
		t.logger.Warn("export duration capped",
			logging.Field{Key: "requested_sec", Value: tc.TotalDurationSec},
			logging.Field{Key: "cap_sec", Value: capSec},
		)
	}
	n, err := wav.Write(w, samples, b.SampleRate)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		return ExportResult{}, fmt.Errorf("write wav: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	metrics.ExportBytes.Observe(float64(n))

	res := ExportResult{
		Bytes:       n,
		Samples:     len(samples),
		DurationSec: float64(len(samples)) / float64(b.SampleRate),
		Capped:      capped,
	}
	t.logger.Info("exported wav",
		logging.Field{Key: "size", Value: humanize.Bytes(uint64(n))},
		logging.Field{Key: "duration_sec", Value: res.DurationSec},
	)
	return res, nil
}

// ExportFileName returns the default name for an export made at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("intermittent_signal_%d.wav", now.UnixMilli())
}

// WaveformPNG renders the current burst as a waveform plot.
func (t *Transmitter) WaveformPNG(w io.Writer) error {
	t.mu.RLock()
	b := t.burst
	opts := t.cfg.Plot
	t.mu.RUnlock()

	if opts.Title == "" {
		opts.Title = fmt.Sprintf("Burst waveform, %s", render.HumanSeconds(b.Duration()))
	}
	img, err := render.Waveform(b.Samples, b.SampleRate, opts)
	if err != nil {
		return fmt.Errorf("render waveform: %w", err)
	}
	return render.EncodePNG(w, img)
}

// SpectrogramPNG renders the current burst as a spectrogram up to the
// display limit of the active signals.
func (t *Transmitter) SpectrogramPNG(w io.Writer) error {
	t.mu.RLock()
	b := t.burst
	opts := t.cfg.Plot
	limit := waveform.DisplayLimit(t.cfg.Signals, t.cfg.SampleRate)
	t.mu.RUnlock()

	spec := t.stft.Compute(b.Samples, b.SampleRate)
	if opts.Title == "" {
		opts.Title = fmt.Sprintf("Spectrogram, 0 to %s", render.HumanHz(limit))
	}
	img, err := render.Spectrogram(spec, limit, opts)
	if err != nil {
		return fmt.Errorf("render spectrogram: %w", err)
	}
	return render.EncodePNG(w, img)
}
