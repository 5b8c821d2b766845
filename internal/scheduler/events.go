package scheduler

import "time"

// EventKind names a scheduler lifecycle event.
type EventKind string

const (
	EventStarted         EventKind = "started"
	EventCycleDispatched EventKind = "cycle_dispatched"
	EventCycleLate       EventKind = "cycle_late"
	EventCycleFailed     EventKind = "cycle_failed"
	EventWatchdog        EventKind = "watchdog"
	EventCompleted       EventKind = "completed"
	EventStopped         EventKind = "stopped"
)

// Event is emitted to a Reporter as a session progresses. Anchor is on the
// sink clock.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Session string        `json:"session"`
	Cycle   int           `json:"cycle"`
	Cycles  int           `json:"cycles"`
	Anchor  time.Duration `json:"anchorNs"`
	Time    time.Time     `json:"time"`
	Err     string        `json:"err,omitempty"`
}

// Reporter receives scheduler events. Report is called with the scheduler
// lock held and must not block or call back into the scheduler.
type Reporter interface {
	Report(Event)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}
