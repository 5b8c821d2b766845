package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoPulse/internal/app"
	"github.com/rjboer/GoPulse/internal/audio"
	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/render"
	"github.com/rjboer/GoPulse/internal/scheduler"
	"github.com/rjboer/GoPulse/internal/waveform"
)

func newTestServer(t *testing.T) (*WebServer, *Hub) {
	t.Helper()
	logger := logging.New(logging.Error, logging.Text, io.Discard)
	hub := NewHub(100, logger)
	sched := scheduler.New(audio.NewMemorySink(), scheduler.WithReporter(hub), scheduler.WithLogger(logger))
	cfg := app.DefaultConfig()
	cfg.Plot = render.Options{Width: 240, Height: 160}
	tx, err := app.NewTransmitter(sched, logger, cfg)
	require.NoError(t, err)
	t.Cleanup(tx.Stop)

	srv := NewWebServer("127.0.0.1:0", tx, hub, logger)
	srv.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return srv, hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, r))
	return rr
}

func TestSignalsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var signals []waveform.Descriptor
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signals))
	require.Len(t, signals, 3)
	require.Equal(t, waveform.LFMUp, signals[0].Type)
	require.Contains(t, rr.Body.String(), `"type":"LFM Up"`)

	rr = do(t, h, http.MethodPatch, "/api/signals/2", `{"active":true,"type":"CW","centerFreqHz":2000,"pulseWidthSec":0.25,"amplitude":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signals))
	require.True(t, signals[1].Active)
	// 0.5 s chirp, 50 ms gap, 0.25 s tone.
	require.Equal(t, 22050+2205+11025, srv.tx.Burst().Len())

	rr = do(t, h, http.MethodPatch, "/api/signals/9", `{"type":"CW"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPatch, "/api/signals/x", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/signals", `[{"type":"sawtooth"}]`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/signals", `[]`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, burst.EmptyBurstSamples, srv.tx.Burst().Len())
}

func TestTransmissionAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodPut, "/api/transmission", `{"intervalSec":0.5,"totalDurationSec":10}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, burst.TransmissionConfig{IntervalSec: 0.5, TotalDurationSec: 10}, srv.tx.Transmission())

	rr = do(t, h, http.MethodGet, "/api/transmit/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st app.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Equal(t, "idle", st.State)
	require.Equal(t, 10, st.PlaybackCycles)
	require.Equal(t, 10, st.ExportCycles)
}

func TestStartStopAPI(t *testing.T) {
	srv, hub := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodPost, "/api/transmit/start", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"cycles":4`)

	rr = do(t, h, http.MethodPost, "/api/transmit/start", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/transmit/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"idle"`)

	history := hub.History()
	require.NotEmpty(t, history)
	require.Equal(t, scheduler.EventStarted, history[0].Kind)
	require.Equal(t, scheduler.EventStopped, history[len(history)-1].Kind)

	rr = do(t, h, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var events []scheduler.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, len(history))
}

func TestExportAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodGet, "/api/export.wav", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "audio/wav", rr.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="intermittent_signal_1700000000000.wav"`, rr.Header().Get("Content-Disposition"))
	require.Equal(t, 44+2*3*66150, rr.Body.Len())
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("RIFF")))

	_, err := srv.tx.SetTransmission(burst.TransmissionConfig{IntervalSec: 1, TotalDurationSec: 1})
	require.NoError(t, err)
	rr = do(t, h, http.MethodGet, "/api/export.wav", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "error")
}

func TestPlotAndMetricsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, path := range []string{"/api/plot/waveform.png", "/api/plot/spectrogram.png"} {
		rr := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		require.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")), path)
	}

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "pulsegen_burst_samples")

	rr = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Intermittent signal generator")
}

func TestDiagnosticsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.tx.SetSignals([]waveform.Descriptor{{Active: true, Type: waveform.CW, CenterFreqHz: 1000, PulseWidthSec: 0.5, Amplitude: 0.5}}))

	rr := do(t, srv.Handler(), http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var d Diagnostics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.Positive(t, d.Process.NumGoroutine)
	require.Equal(t, 22050, d.Burst.Samples)
	require.InDelta(t, 0.5, d.Burst.Peak, 1e-3)
	require.InDelta(t, 1000, d.Burst.ZeroCrossHz, 5)
}

func TestAPIRejectsOversizedInput(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	before := srv.tx.Burst().Len()

	rr := do(t, h, http.MethodPut, "/api/signals", `[{"active":true,"type":"CW","centerFreqHz":1000,"pulseWidthSec":1e6,"amplitude":1}]`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "pulse width")
	require.Equal(t, before, srv.tx.Burst().Len())

	rr = do(t, h, http.MethodPatch, "/api/signals/1", `{"active":true,"type":"CW","pulseWidthSec":120}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/transmission", `{"intervalSec":1,"totalDurationSec":1e9}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, app.DefaultTransmission(), srv.tx.Transmission())

	// A tiny burst with no interval over an hour needs millions of cycles.
	require.NoError(t, srv.tx.SetSignals([]waveform.Descriptor{{Active: true, Type: waveform.CW, CenterFreqHz: 1000, PulseWidthSec: 0.001, Amplitude: 1}}))
	rr = do(t, h, http.MethodPut, "/api/transmission", `{"intervalSec":0,"totalDurationSec":3600}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/transmit/start", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "idle", srv.tx.Status().State)

	big := "[" + strings.Repeat(" ", maxBodyBytes) + "]"
	rr = do(t, h, http.MethodPut, "/api/signals", big)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
