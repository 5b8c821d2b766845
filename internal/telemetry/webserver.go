package telemetry

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/GoPulse/internal/app"
	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/waveform"
)

//go:embed static/*
var staticFiles embed.FS

// WebServer exposes the transmitter controls, exports, plots and live
// scheduler events over HTTP.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	tx     *app.Transmitter
	logger logging.Logger
	now    func() time.Time
}

// NewWebServer builds the HTTP server and its routes.
func NewWebServer(addr string, tx *app.Transmitter, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	w := &WebServer{
		hub:    hub,
		tx:     tx,
		logger: logger.With(logging.Field{Key: "subsystem", Value: "http"}),
		now:    time.Now,
	}
	w.srv = &http.Server{
		Addr:        addr,
		Handler:     w.routes(),
		ReadTimeout: 10 * time.Second,
	}
	return w
}

// Handler returns the root handler.
func (w *WebServer) Handler() http.Handler { return w.srv.Handler }

func (w *WebServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(w.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) { rw.WriteHeader(http.StatusNoContent) })
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.FileServer(http.FS(staticFiles)))
	r.Get("/", func(rw http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(rw, r, staticFiles, "static/index.html")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/signals", w.handleGetSignals)
		r.Put("/signals", w.handlePutSignals)
		r.Patch("/signals/{id}", w.handlePatchSignal)
		r.Get("/transmission", w.handleGetTransmission)
		r.Put("/transmission", w.handlePutTransmission)
		r.Route("/transmit", func(r chi.Router) {
			r.Post("/start", w.handleStart)
			r.Post("/stop", w.handleStop)
			r.Get("/status", w.handleStatus)
		})
		r.Get("/export.wav", w.handleExport)
		r.Get("/plot/waveform.png", w.handleWaveform)
		r.Get("/plot/spectrogram.png", w.handleSpectrogram)
		r.Get("/diagnostics", w.handleDiagnostics)
		if w.hub != nil {
			r.Get("/history", w.hub.handleHistory)
			r.Get("/events", w.hub.handleLive)
			r.Get("/config", w.hub.handleGetConfig)
			r.Put("/config", w.hub.handleSetConfig)
		}
	})
	return r
}

func (w *WebServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		w.logger.Debug("request",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: ww.Status()},
			logging.Field{Key: "bytes", Value: ww.BytesWritten()},
			logging.Field{Key: "duration", Value: time.Since(start).String()},
			logging.Field{Key: "request_id", Value: chimw.GetReqID(r.Context())},
		)
	})
}

func (w *WebServer) handleGetSignals(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.tx.Signals())
}

func (w *WebServer) handlePutSignals(rw http.ResponseWriter, r *http.Request) {
	var signals []waveform.Descriptor
	if err := decodeBody(rw, r, &signals); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if err := w.tx.SetSignals(signals); err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, w.tx.Signals())
}

func (w *WebServer) handlePatchSignal(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(rw, http.StatusBadRequest, errors.New("signal id must be an integer"))
		return
	}
	var d waveform.Descriptor
	if err := decodeBody(rw, r, &d); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if err := w.tx.UpdateSignal(id, d); err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, w.tx.Signals())
}

func (w *WebServer) handleGetTransmission(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.tx.Transmission())
}

func (w *WebServer) handlePutTransmission(rw http.ResponseWriter, r *http.Request) {
	var tc burst.TransmissionConfig
	if err := decodeBody(rw, r, &tc); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	tc, err := w.tx.SetTransmission(tc)
	if err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, tc)
}

func (w *WebServer) handleStart(rw http.ResponseWriter, _ *http.Request) {
	sess, ok := w.tx.Start()
	if !ok {
		writeError(rw, http.StatusConflict, errors.New("transmission already playing or nothing to schedule"))
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]any{
		"session":  sess.ID(),
		"cycles":   len(sess.Anchors()),
		"periodMs": sess.Period().Milliseconds(),
	})
}

func (w *WebServer) handleStop(rw http.ResponseWriter, _ *http.Request) {
	w.tx.Stop()
	writeJSON(rw, http.StatusOK, w.tx.Status())
}

func (w *WebServer) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.tx.Status())
}

func (w *WebServer) handleExport(rw http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	res, err := w.tx.Export(&buf)
	if err != nil {
		if errors.Is(err, burst.ErrInsufficientDuration) {
			writeError(rw, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	rw.Header().Set("Content-Type", "audio/wav")
	rw.Header().Set("Content-Length", strconv.FormatInt(res.Bytes, 10))
	rw.Header().Set("Content-Disposition", `attachment; filename="`+app.ExportFileName(w.now())+`"`)
	if res.Capped {
		rw.Header().Set("X-Export-Capped", "true")
	}
	if _, err := buf.WriteTo(rw); err != nil {
		w.logger.Warn("export download interrupted", logging.Field{Key: "error", Value: err})
	}
}

func (w *WebServer) handleWaveform(rw http.ResponseWriter, _ *http.Request) {
	w.servePNG(rw, w.tx.WaveformPNG)
}

func (w *WebServer) handleSpectrogram(rw http.ResponseWriter, _ *http.Request) {
	w.servePNG(rw, w.tx.SpectrogramPNG)
}

func (w *WebServer) servePNG(rw http.ResponseWriter, draw func(io.Writer) error) {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	rw.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(rw)
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web server shutdown", logging.Field{Key: "error", Value: err})
		}
	}()

	w.logger.Info("web server listening", logging.Field{Key: "addr", Value: w.srv.Addr})
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

// maxBodyBytes bounds request bodies on the control API.
const maxBodyBytes = 1 << 20

func decodeBody(rw http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodyBytes)).Decode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrUnknownSignal):
		return http.StatusNotFound
	case errors.Is(err, burst.ErrLimit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
