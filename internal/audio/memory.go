package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rjboer/GoPulse/internal/scheduler"
)

// Scheduled is one buffer handed to a MemorySink.
type Scheduled struct {
	At         time.Duration
	Samples    int
	SampleRate int
	Cancelled  bool
}

// MemorySink records every scheduled buffer instead of playing it. It backs
// dry runs and tests.
type MemorySink struct {
	mu      sync.RWMutex
	now     func() time.Duration
	entries []Scheduled
	bufs    []*PCMBuffer
	ctxs    []context.Context
}

// NewMemorySink returns a sink whose clock is elapsed wall time.
func NewMemorySink() *MemorySink {
	m := newMonotonic()
	return &MemorySink{now: m.Now}
}

// NewMemorySinkWithClock uses now as the sink clock.
func NewMemorySinkWithClock(now func() time.Duration) *MemorySink {
	return &MemorySink{now: now}
}

func (m *MemorySink) Now() time.Duration { return m.now() }

func (m *MemorySink) NewBuffer(samples []float64, sampleRate int) (scheduler.Buffer, error) {
	return newPCMBuffer(samples, sampleRate)
}

func (m *MemorySink) Play(ctx context.Context, buf scheduler.Buffer, at time.Duration) error {
	pcm, err := asPCM(buf)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Scheduled{At: at, Samples: len(pcm.Samples), SampleRate: pcm.SampleRate})
	m.bufs = append(m.bufs, pcm)
	m.ctxs = append(m.ctxs, ctx)
	return nil
}

// Scheduled returns a snapshot of the recorded buffers. An entry is marked
// Cancelled when its session was stopped before the sink clock reached it.
func (m *MemorySink) Scheduled() []Scheduled {
	now := m.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Scheduled, len(m.entries))
	copy(out, m.entries)
	for i := range out {
		if out[i].At > now && m.ctxs[i].Err() != nil {
			out[i].Cancelled = true
		}
	}
	return out
}

// Render mixes every recorded, non-cancelled buffer onto a timeline that
// starts at origin and spans length samples at sampleRate.
func (m *MemorySink) Render(origin time.Duration, length, sampleRate int) []float64 {
	out := make([]float64, length)
	entries := m.Scheduled()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, e := range entries {
		if e.Cancelled || e.SampleRate != sampleRate {
			continue
		}
		offset := int(math.Round((e.At - origin).Seconds() * float64(sampleRate)))
		for j, v := range m.bufs[i].Samples {
			k := offset + j
			if k < 0 || k >= length {
				continue
			}
			out[k] += v
		}
	}
	return out
}

// Reset forgets every recorded buffer.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	m.entries, m.bufs, m.ctxs = nil, nil, nil
	m.mu.Unlock()
}
