package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"

	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/scheduler"
)

// OtoSink plays bursts on the local audio device. The device has no notion
// of absolute start times, so each Play waits on a monotonic clock until its
// anchor and then starts a fresh player.
type OtoSink struct {
	ctx        *oto.Context
	sampleRate int
	clock      monotonic
	logger     logging.Logger
	poll       time.Duration
	wg         sync.WaitGroup
}

// NewOtoSink opens the default output device as a mono float32 stream and
// waits for it to become ready.
func NewOtoSink(ctx context.Context, sampleRate int, logger logging.Logger) (*OtoSink, error) {
	if logger == nil {
		logger = logging.Default()
	}
	otoCtx, ready, err := oto.NewContext(sampleRate, 1, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &OtoSink{
		ctx:        otoCtx,
		sampleRate: sampleRate,
		clock:      newMonotonic(),
		logger:     logger.With(logging.Field{Key: "subsystem", Value: "oto"}),
		poll:       10 * time.Millisecond,
	}, nil
}

func (s *OtoSink) Now() time.Duration { return s.clock.Now() }

func (s *OtoSink) NewBuffer(samples []float64, sampleRate int) (scheduler.Buffer, error) {
	if sampleRate != s.sampleRate {
		return nil, fmt.Errorf("%w: device runs at %d Hz, burst at %d Hz", ErrSampleRate, s.sampleRate, sampleRate)
	}
	return newPCMBuffer(samples, sampleRate)
}

// Play queues buf to start at the given anchor and returns immediately.
func (s *OtoSink) Play(ctx context.Context, buf scheduler.Buffer, at time.Duration) error {
	pcm, err := asPCM(buf)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.clock.waitUntil(ctx, at); err != nil {
			s.logger.Debug("queued burst dropped", logging.Field{Key: "err", Value: err})
			return
		}
		player := s.ctx.NewPlayer(newFloat32Reader(pcm.Samples))
		player.Play()
		for player.IsPlaying() {
			time.Sleep(s.poll)
		}
		if err := player.Err(); err != nil {
			s.logger.Warn("playback error", logging.Field{Key: "err", Value: err})
		}
		if err := player.Close(); err != nil {
			s.logger.Debug("close player", logging.Field{Key: "err", Value: err})
		}
	}()
	return nil
}

// Close waits until every queued burst has finished playing or was dropped.
func (s *OtoSink) Close() error {
	s.wg.Wait()
	return nil
}

// float32Reader streams samples as little-endian float32 frames.
type float32Reader struct {
	samples []float64
	pos     int
}

func newFloat32Reader(samples []float64) *float32Reader {
	return &float32Reader{samples: samples}
}

func (r *float32Reader) Read(p []byte) (int, error) {
	if r.pos >= len(r.samples) {
		return 0, io.EOF
	}
	n := 0
	for n+4 <= len(p) && r.pos < len(r.samples) {
		v := float32(clamp(r.samples[r.pos]))
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(v))
		n += 4
		r.pos++
	}
	if n == 0 {
		return 0, errors.New("read buffer smaller than one frame")
	}
	return n, nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
