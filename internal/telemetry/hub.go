package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/scheduler"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit     = 1
	maxHistoryLimit     = 10_000
	defaultHistoryLimit = 500
)

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// Hub keeps recent scheduler events and fans them out to live subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []scheduler.Event
	subscribers map[chan scheduler.Event]struct{}
	config      Config
	logger      logging.Logger
}

// NewHub builds a hub retaining up to historyLimit events.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg, err := validateConfig(Config{HistoryLimit: historyLimit}, Config{})
	if err != nil {
		cfg = Config{HistoryLimit: defaultHistoryLimit}
	}
	return &Hub{
		subscribers: make(map[chan scheduler.Event]struct{}),
		config:      cfg,
		logger:      logger.With(logging.Field{Key: "subsystem", Value: "telemetry"}),
	}
}

// Report implements scheduler.Reporter. Slow subscribers miss events rather
// than block the scheduler.
func (h *Hub) Report(ev scheduler.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, ev)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// History returns a copy of stored events, oldest first.
func (h *Hub) History() []scheduler.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]scheduler.Event, len(h.history))
	copy(out, h.history)
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live events.
func (h *Hub) Subscribe() (chan scheduler.Event, func()) {
	ch := make(chan scheduler.Event, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// MultiReporter fans out events to multiple destinations.
type MultiReporter []scheduler.Reporter

// Report forwards ev to each configured reporter.
func (m MultiReporter) Report(ev scheduler.Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.History())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var incoming Config
	if err := decodeBody(w, r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid config payload: %w", err))
		return
	}

	h.mu.Lock()
	cfg, err := validateConfig(incoming, h.config)
	if err == nil {
		h.applyConfig(cfg)
	}
	h.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleLive streams events as server-sent events, replaying history first.
func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	for _, ev := range h.History() {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("live stream closed", logging.Field{Key: "error", Value: err})
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev scheduler.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}
