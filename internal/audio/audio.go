// Package audio provides the sinks the scheduler plays bursts through.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/GoPulse/internal/scheduler"
)

var ErrSampleRate = errors.New("audio: sample rate mismatch")

// PCMBuffer is the playable buffer shared by every sink in this package.
type PCMBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration implements scheduler.Buffer.
func (b *PCMBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

func newPCMBuffer(samples []float64, sampleRate int) (*PCMBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return &PCMBuffer{Samples: append([]float64(nil), samples...), SampleRate: sampleRate}, nil
}

func asPCM(buf scheduler.Buffer) (*PCMBuffer, error) {
	pcm, ok := buf.(*PCMBuffer)
	if !ok {
		return nil, fmt.Errorf("unsupported buffer type %T", buf)
	}
	return pcm, nil
}

// monotonic is a clock reading elapsed time since its creation.
type monotonic struct {
	origin time.Time
}

func newMonotonic() monotonic { return monotonic{origin: time.Now()} }

func (m monotonic) Now() time.Duration { return time.Since(m.origin) }

// waitUntil blocks until the clock reaches at or ctx is done.
func (m monotonic) waitUntil(ctx context.Context, at time.Duration) error {
	d := at - m.Now()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
