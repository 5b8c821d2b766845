// Package scheduler repeats a burst through an audio sink at a fixed period,
// with every cycle anchored to an absolute time on the sink's clock.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoPulse/internal/burst"
	"github.com/rjboer/GoPulse/internal/logging"
	"github.com/rjboer/GoPulse/internal/metrics"
)

const (
	DefaultStartLead     = 100 * time.Millisecond
	DefaultWatchdogGrace = 200 * time.Millisecond
)

// State is the externally visible scheduler state.
type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Outcome records how a session ended.
type Outcome int

const (
	Pending Outcome = iota
	Completed
	Stopped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	default:
		return "pending"
	}
}

// Buffer is a playable sample buffer created by a Sink.
type Buffer interface {
	Duration() time.Duration
}

// Sink is the audio output the scheduler drives. Now and the at argument of
// Play share one monotonic clock. Play must return once the buffer is queued
// and must not wait for playback to begin; ctx is cancelled when the session
// is stopped so audio that has not started yet can be dropped.
type Sink interface {
	Now() time.Duration
	NewBuffer(samples []float64, sampleRate int) (Buffer, error)
	Play(ctx context.Context, buf Buffer, at time.Duration) error
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock creates timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns a Clock backed by time.AfterFunc.
func RealClock() Clock { return realClock{} }

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithStartLead sets how far in the future the first cycle is anchored and
// how early each cycle is handed to the sink.
func WithStartLead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.lead = d
		}
	}
}

// WithWatchdogGrace sets the slack added to the total duration before the
// watchdog forces completion.
func WithWatchdogGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// Scheduler owns at most one playing Session.
type Scheduler struct {
	mu       sync.Mutex
	sink     Sink
	clock    Clock
	logger   logging.Logger
	reporter Reporter
	lead     time.Duration
	grace    time.Duration
	current  *Session
}

// New creates a scheduler driving sink.
func New(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:     sink,
		clock:    RealClock(),
		logger:   logging.Default(),
		reporter: nopReporter{},
		lead:     DefaultStartLead,
		grace:    DefaultWatchdogGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Field{Key: "subsystem", Value: "scheduler"})
	return s
}

// Session is one transmission: the anchors computed at Start and the timers
// that hand each cycle to the sink.
type Session struct {
	id      string
	anchors []time.Duration
	period  time.Duration
	buf     Buffer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Guarded by the owning Scheduler's mu.
	timers     []Timer
	watchdog   Timer
	tail       Timer
	remaining  int
	dispatched int
	skipped    int
	outcome    Outcome
	sched      *Scheduler
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Period returns the cycle period.
func (s *Session) Period() time.Duration { return s.period }

// Anchors returns a copy of the absolute cycle start times on the sink clock.
func (s *Session) Anchors() []time.Duration {
	return append([]time.Duration(nil), s.anchors...)
}

// Done is closed when the session completes or is stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome reports how the session ended, or Pending while it plays.
func (s *Session) Outcome() Outcome {
	s.sched.mu.Lock()
	defer s.sched.mu.Unlock()
	return s.outcome
}

// Stats returns the number of cycles handed to the sink and skipped as late.
func (s *Session) Stats() (dispatched, skipped int) {
	s.sched.mu.Lock()
	defer s.sched.mu.Unlock()
	return s.dispatched, s.skipped
}

// Start begins a transmission. It is a no-op returning (nil, false) when a
// session is already playing, when the burst is empty, when the schedule
// would exceed burst.MaxCycles, or when the sink cannot build a buffer.
func (s *Scheduler) Start(b burst.Burst, cfg burst.TransmissionConfig) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.logger.Debug("start ignored: already playing", logging.Field{Key: "session", Value: s.current.id})
		metrics.SessionsTotal.WithLabelValues("rejected").Inc()
		return nil, false
	}
	if len(b.Samples) == 0 || b.SampleRate <= 0 {
		s.logger.Debug("start ignored: no burst")
		return nil, false
	}
	cycles := burst.PlaybackCycles(b, cfg)
	if cycles == 0 {
		s.logger.Debug("start ignored: no cycles fit", logging.Field{Key: "total_sec", Value: cfg.TotalDurationSec})
		return nil, false
	}
	if err := burst.CheckCycles(b, cfg); err != nil {
		s.logger.Warn("start refused", logging.Field{Key: "err", Value: err})
		metrics.SessionsTotal.WithLabelValues("rejected").Inc()
		return nil, false
	}
	buf, err := s.sink.NewBuffer(b.Samples, b.SampleRate)
	if err != nil {
		s.logger.Error("create buffer failed", logging.Field{Key: "err", Value: err})
		return nil, false
	}

	period := seconds(burst.CyclePeriod(b, cfg))
	start := s.sink.Now() + s.lead
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:        uuid.NewString(),
		anchors:   make([]time.Duration, cycles),
		period:    period,
		buf:       buf,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		timers:    make([]Timer, cycles),
		remaining: cycles,
		sched:     s,
	}
	for i := range sess.anchors {
		sess.anchors[i] = start + time.Duration(i)*period
	}
	for i := range sess.anchors {
		idx := i
		sess.timers[i] = s.clock.AfterFunc(time.Duration(i)*period, func() { s.dispatch(sess, idx) })
	}
	sess.watchdog = s.clock.AfterFunc(seconds(cfg.TotalDurationSec)+s.grace, func() { s.expire(sess) })
	s.current = sess

	metrics.SessionsTotal.WithLabelValues("started").Inc()
	metrics.ActiveSessions.Set(1)
	s.logger.Info("transmission started",
		logging.Field{Key: "session", Value: sess.id},
		logging.Field{Key: "cycles", Value: cycles},
		logging.Field{Key: "period", Value: period.String()},
	)
	s.reporter.Report(Event{Kind: EventStarted, Session: sess.id, Cycles: cycles, Anchor: start, Time: time.Now()})
	return sess, true
}

// Stop cancels every pending cycle of sess and its watchdog. Bursts queued on
// the sink whose anchor has not arrived are dropped through the session
// context; audio already playing is not recalled. Stopping a finished or nil session is a
// no-op.
func (s *Scheduler) Stop(sess *Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.outcome != Pending {
		return
	}
	s.finish(sess, Stopped)
}

// StopCurrent stops the playing session, if any.
func (s *Scheduler) StopCurrent() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	s.Stop(sess)
}

// State returns Playing while a session is active, which lasts until the
// last burst has finished on the sink clock.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return Playing
	}
	return Idle
}

// Current returns the playing session or nil.
func (s *Scheduler) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) dispatch(sess *Session, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess || sess.outcome != Pending {
		return
	}

	anchor := sess.anchors[i]
	now := s.sink.Now()
	ev := Event{Session: sess.id, Cycle: i, Cycles: len(sess.anchors), Anchor: anchor, Time: time.Now()}
	switch {
	case now > anchor:
		sess.skipped++
		metrics.CyclesTotal.WithLabelValues("late").Inc()
		s.logger.Warn("cycle skipped: dispatched after its anchor",
			logging.Field{Key: "session", Value: sess.id},
			logging.Field{Key: "cycle", Value: i},
			logging.Field{Key: "late_by", Value: (now - anchor).String()},
		)
		ev.Kind = EventCycleLate
	default:
		if err := s.sink.Play(sess.ctx, sess.buf, anchor); err != nil {
			sess.skipped++
			metrics.CyclesTotal.WithLabelValues("failed").Inc()
			s.logger.Error("cycle dispatch failed",
				logging.Field{Key: "session", Value: sess.id},
				logging.Field{Key: "cycle", Value: i},
				logging.Field{Key: "err", Value: err},
			)
			ev.Kind = EventCycleFailed
			ev.Err = err.Error()
			break
		}
		sess.dispatched++
		metrics.CyclesTotal.WithLabelValues("dispatched").Inc()
		metrics.DispatchLead.Observe(float64(anchor-now) / float64(time.Millisecond))
		s.logger.Debug("cycle dispatched",
			logging.Field{Key: "session", Value: sess.id},
			logging.Field{Key: "cycle", Value: i},
		)
		ev.Kind = EventCycleDispatched
	}
	s.reporter.Report(ev)

	sess.remaining--
	if sess.remaining > 0 {
		return
	}
	// The session stays Playing until the final burst has ended on the sink clock.
	end := sess.anchors[len(sess.anchors)-1] + sess.buf.Duration()
	if wait := end - now; wait > 0 {
		sess.tail = s.clock.AfterFunc(wait, func() { s.settle(sess) })
		return
	}
	s.finish(sess, Completed)
}

func (s *Scheduler) settle(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess || sess.outcome != Pending {
		return
	}
	s.finish(sess, Completed)
}

func (s *Scheduler) expire(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess || sess.outcome != Pending {
		return
	}
	metrics.WatchdogFiredTotal.Inc()
	s.logger.Warn("watchdog forced completion",
		logging.Field{Key: "session", Value: sess.id},
		logging.Field{Key: "remaining", Value: sess.remaining},
	)
	s.reporter.Report(Event{Kind: EventWatchdog, Session: sess.id, Cycles: len(sess.anchors), Time: time.Now()})
	s.finish(sess, Completed)
}

// finish must be called with s.mu held.
func (s *Scheduler) finish(sess *Session, outcome Outcome) {
	for _, t := range sess.timers {
		if t != nil {
			t.Stop()
		}
	}
	if sess.watchdog != nil {
		sess.watchdog.Stop()
	}
	if sess.tail != nil {
		sess.tail.Stop()
	}
	sess.cancel()
	sess.outcome = outcome
	if s.current == sess {
		s.current = nil
	}
	close(sess.done)

	metrics.SessionsTotal.WithLabelValues(outcome.String()).Inc()
	metrics.ActiveSessions.Set(0)
	s.logger.Info("transmission finished",
		logging.Field{Key: "session", Value: sess.id},
		logging.Field{Key: "outcome", Value: outcome.String()},
		logging.Field{Key: "dispatched", Value: sess.dispatched},
		logging.Field{Key: "skipped", Value: sess.skipped},
	)
	kind := EventCompleted
	if outcome == Stopped {
		kind = EventStopped
	}
	s.reporter.Report(Event{Kind: kind, Session: sess.id, Cycles: len(sess.anchors), Time: time.Now()})
}

func seconds(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
