package telemetry

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/GoPulse/internal/dsp"
)

var processStart = time.Now()

// ProcessInfo reports runtime health.
type ProcessInfo struct {
	NumGoroutine int     `json:"numGoroutine"`
	Uptime       float64 `json:"uptimeSec"`
	HeapAlloc    string  `json:"heapAlloc"`
}

// BurstInfo summarizes the current burst.
type BurstInfo struct {
	Samples     int     `json:"samples"`
	DurationSec float64 `json:"durationSec"`
	Peak        float64 `json:"peak"`
	// ZeroCrossHz is the mean frequency implied by the burst's zero crossings.
	ZeroCrossHz float64 `json:"zeroCrossHz"`
}

// Diagnostics is the payload of /api/diagnostics.
type Diagnostics struct {
	Process ProcessInfo `json:"process"`
	Burst   BurstInfo   `json:"burst"`
	Events  int         `json:"events"`
}

func (w *WebServer) diagnostics() Diagnostics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b := w.tx.Burst()
	var peak float64
	for _, v := range b.Samples {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	d := Diagnostics{
		Process: ProcessInfo{
			NumGoroutine: runtime.NumGoroutine(),
			Uptime:       time.Since(processStart).Seconds(),
			HeapAlloc:    humanize.Bytes(mem.HeapAlloc),
		},
		Burst: BurstInfo{
			Samples:     b.Len(),
			DurationSec: b.Duration(),
			Peak:        peak,
			ZeroCrossHz: dsp.EstimateFrequency(b.Samples, float64(b.SampleRate)),
		},
	}
	if w.hub != nil {
		d.Events = len(w.hub.History())
	}
	return d
}

func (w *WebServer) handleDiagnostics(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.diagnostics())
}
