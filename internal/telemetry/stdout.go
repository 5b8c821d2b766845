package telemetry

import (
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/scheduler"
)

// StdoutReporter logs scheduler events.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

// Report logs ev. Per-cycle events go to debug, lifecycle events to info and
// late or failed cycles to warn.
func (r StdoutReporter) Report(ev scheduler.Event) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "session", Value: ev.Session},
		{Key: "event", Value: string(ev.Kind)},
	}
	switch ev.Kind {
	case scheduler.EventCycleDispatched, scheduler.EventCycleLate, scheduler.EventCycleFailed:
		fields = append(fields,
			logging.Field{Key: "cycle", Value: ev.Cycle + 1},
			logging.Field{Key: "cycles", Value: ev.Cycles},
			logging.Field{Key: "anchor", Value: ev.Anchor.String()},
		)
	default:
		fields = append(fields, logging.Field{Key: "cycles", Value: ev.Cycles})
	}
	if ev.Err != "" {
		fields = append(fields, logging.Field{Key: "error", Value: ev.Err})
	}

	switch ev.Kind {
	case scheduler.EventCycleDispatched:
		r.logger.Debug("cycle", fields...)
	case scheduler.EventCycleLate, scheduler.EventCycleFailed, scheduler.EventWatchdog:
		r.logger.Warn("cycle", fields...)
	default:
		r.logger.Info("transmission", fields...)
	}
}
