package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/scheduler"
)

func newTestHub() *Hub {
	return NewHub(10, logging.New(logging.Debug, logging.Text, io.Discard))
}

func event(kind scheduler.EventKind, cycle int) scheduler.Event {
	return scheduler.Event{Kind: kind, Session: "s1", Cycle: cycle, Cycles: 20, Time: time.Unix(0, 0)}
}

func TestHubTrimsHistory(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 15; i++ {
		hub.Report(event(scheduler.EventCycleDispatched, i))
	}
	history := hub.History()
	if len(history) != 10 {
		t.Fatalf("expected 10 events, got %d", len(history))
	}
	if history[0].Cycle != 5 || history[9].Cycle != 14 {
		t.Fatalf("expected cycles 5..14, got %d..%d", history[0].Cycle, history[9].Cycle)
	}
}

func TestHubFanOutDoesNotBlock(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	// Far more events than the subscriber buffer holds.
	for i := 0; i < 200; i++ {
		hub.Report(event(scheduler.EventCycleDispatched, i))
	}
	first := <-ch
	if first.Cycle != 0 {
		t.Fatalf("expected first buffered cycle 0, got %d", first.Cycle)
	}
}

func TestMultiReporterSkipsNil(t *testing.T) {
	a, b := newTestHub(), newTestHub()
	MultiReporter{a, nil, b}.Report(event(scheduler.EventStarted, 0))
	if len(a.History()) != 1 || len(b.History()) != 1 {
		t.Fatalf("expected both hubs to receive the event")
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 8; i++ {
		hub.Report(event(scheduler.EventCycleDispatched, i))
	}

	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"historyLimit":3}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := len(hub.History()); got != 3 {
		t.Fatalf("expected history trimmed to 3, got %d", got)
	}

	rr = httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"historyLimit":-1}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if hub.ConfigSnapshot().HistoryLimit != 3 {
		t.Fatalf("rejected config must not be applied")
	}
}

func TestHandleLiveReplaysHistory(t *testing.T) {
	hub := newTestHub()
	hub.Report(event(scheduler.EventStarted, 0))
	hub.Report(event(scheduler.EventCycleLate, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	hub.handleLive(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "event: started\n") || !strings.Contains(body, "event: cycle_late\n") {
		t.Fatalf("expected replayed events, got %q", body)
	}

	var ev scheduler.Event
	line := strings.SplitN(strings.Split(body, "data: ")[1], "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Kind != scheduler.EventStarted || ev.Session != "s1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStdoutReporterLevels(t *testing.T) {
	var sb strings.Builder
	r := NewStdoutReporter(logging.New(logging.Info, logging.JSON, &sb))

	r.Report(event(scheduler.EventCycleDispatched, 0))
	if sb.Len() != 0 {
		t.Fatalf("dispatched cycles should log at debug, got %q", sb.String())
	}
	r.Report(scheduler.Event{Kind: scheduler.EventCycleFailed, Session: "s1", Cycle: 2, Cycles: 4, Err: "device gone"})
	out := sb.String()
	for _, want := range []string{`"event":"cycle_failed"`, `"cycle":3`, `"error":"device gone"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}
