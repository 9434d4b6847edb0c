// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package scheduler runs named background jobs.
//
// Every job is registered under a unique name, and at most one invocation per
// name runs at a time. A job is either periodic (re-armed on its interval
// whatever the outcome) or a one-shot (re-armed with exponential backoff when
// it asks for a retry). Scheduling a name that is already known follows an
// explicit policy:
//
//   - KeepExisting: no-op while the name is pending or running
//   - Replace: cancel the pending timer and arm the new request. A running
//     invocation finishes first, then the replacement is armed.
//
// Jobs that require the network probe a Connectivity before running. While
// offline the invocation is deferred without counting as an attempt.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
)

// Result is the outcome of one job invocation
type Result int

const (
	ResultSuccess Result = iota
	ResultRetry
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultRetry:
		return "retry"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Policy decides what happens when a name is scheduled twice
type Policy int

const (
	KeepExisting Policy = iota
	Replace
)

// Kind is periodic or one-shot
type Kind int

const (
	OneShot Kind = iota
	Periodic
)

// JobFunc is the body of a job.
type JobFunc func(ctx context.Context) Result

// Constraints gate when a job may run.
type Constraints struct {
	RequiresNetwork bool
}

// Request describes one unique job.
type Request struct {
	Name         string
	Policy       Policy
	Kind         Kind
	Interval     time.Duration // Periodic only
	InitialDelay time.Duration
	Constraints  Constraints
	Job          JobFunc
}

// Connectivity reports whether the network is usable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Settings tunes retries and offline deferral.
type Settings struct {
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	OfflineRecheck time.Duration
}

// Job states reported by Info
const (
	StatePending = "pending"
	StateRunning = "running"
)

// Info is a snapshot of one registered job.
type Info struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Periodic   bool      `json:"periodic"`
	NextRun    time.Time `json:"next_run,omitempty"`
	Attempts   int       `json:"attempts"`
	LastResult string    `json:"last_result,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
}

// ErrUnknownJob is returned for names that are not registered.
var ErrUnknownJob = errors.New("unknown job")

type entry struct {
	req         Request
	timer       *time.Timer
	gen         uint64
	nextRun     time.Time
	running     bool
	cancelRun   context.CancelFunc
	replacement *Request
	cancelled   bool
	attempts    int
	lastResult  string
	lastRunAt   time.Time
}

// Scheduler owns the job table.
type Scheduler struct {
	settings Settings
	conn     Connectivity
	logger   zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	boot    []Request
	gen     uint64
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. conn may be nil, in which case network
// constraints always pass.
func New(settings Settings, conn Connectivity) *Scheduler {
	if settings.RetryBackoff <= 0 {
		settings.RetryBackoff = 30 * time.Second
	}
	if settings.MaxBackoff < settings.RetryBackoff {
		settings.MaxBackoff = 5 * time.Hour
	}
	if settings.OfflineRecheck <= 0 {
		settings.OfflineRecheck = 30 * time.Second
	}
	return &Scheduler{
		settings: settings,
		conn:     conn,
		logger:   logging.Component("scheduler"),
		jobs:     make(map[string]*entry),
	}
}

// RegisterBoot records requests that Rearm schedules again. It does not
// schedule them itself.
func (s *Scheduler) RegisterBoot(reqs ...Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boot = append(s.boot, reqs...)
}

// Rearm schedules every boot request with its own policy, the way a device
// reschedules its periodic work after a restart.
func (s *Scheduler) Rearm() {
	s.mu.Lock()
	boot := append([]Request(nil), s.boot...)
	s.mu.Unlock()
	for _, req := range boot {
		if err := s.Schedule(req); err != nil {
			s.logger.Error().Err(err).Str("job", req.Name).Msg("Failed to rearm job")
		}
	}
}

// Start arms every pending job. ctx bounds every invocation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, e := range s.jobs {
		if e.timer == nil && !e.running {
			s.armLocked(e, time.Until(e.nextRun))
		}
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop cancels running invocations, stops all timers and waits for running
// jobs to return. Registered jobs stay in the table.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	for _, e := range s.jobs {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Schedule registers req under req.Name following req.Policy.
func (s *Scheduler) Schedule(req Request) error {
	if req.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if req.Job == nil {
		return fmt.Errorf("job %s has no body", req.Name)
	}
	if req.Kind == Periodic && req.Interval <= 0 {
		return fmt.Errorf("periodic job %s needs a positive interval", req.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[req.Name]
	if exists && !e.cancelled {
		if req.Policy == KeepExisting {
			s.logger.Debug().Str("job", req.Name).Msg("Job already scheduled, keeping existing")
			return nil
		}
		if e.running {
			r := req
			e.replacement = &r
			s.logger.Debug().Str("job", req.Name).Msg("Job running, replacement armed after it finishes")
			return nil
		}
		s.stopTimerLocked(e)
		e.req = req
		e.attempts = 0
		s.armLocked(e, req.InitialDelay)
		return nil
	}
	if exists && e.running {
		// Cancelled while running: the replacement takes over once it returns.
		e.cancelled = false
		r := req
		e.replacement = &r
		return nil
	}

	e = &entry{req: req}
	s.jobs[req.Name] = e
	s.armLocked(e, req.InitialDelay)
	return nil
}

// Cancel removes name. A running invocation has its context cancelled.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.stopTimerLocked(e)
	e.replacement = nil
	if e.running {
		e.cancelled = true
		if e.cancelRun != nil {
			e.cancelRun()
		}
		return true
	}
	delete(s.jobs, name)
	return true
}

// RunNow fires name immediately unless it is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok || e.cancelled {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if e.running {
		return nil
	}
	s.stopTimerLocked(e)
	s.armLocked(e, 0)
	return nil
}

// Info returns a snapshot of name.
func (s *Scheduler) Info(name string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// List returns a snapshot of every registered job ordered by name.
func (s *Scheduler) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) info() Info {
	state := StatePending
	if e.running {
		state = StateRunning
	}
	return Info{
		Name:       e.req.Name,
		State:      state,
		Periodic:   e.req.Kind == Periodic,
		NextRun:    e.nextRun,
		Attempts:   e.attempts,
		LastResult: e.lastResult,
		LastRunAt:  e.lastRunAt,
	}
}

func (s *Scheduler) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// armLocked sets the next fire time. Before Start only the time is
// recorded; Start creates the timers.
func (s *Scheduler) armLocked(e *entry, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.gen++
	e.gen = s.gen
	e.nextRun = time.Now().Add(delay)
	if !s.started {
		return
	}
	name, gen := e.req.Name, e.gen
	e.timer = time.AfterFunc(delay, func() { s.fire(name, gen) })
}

func (s *Scheduler) fire(name string, gen uint64) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok || e.gen != gen || e.running || !s.started {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	e.running = true
	runCtx, cancel := context.WithCancel(s.ctx)
	e.cancelRun = cancel
	req := e.req
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer cancel()

	if req.Constraints.RequiresNetwork && s.conn != nil && !s.conn.Online(runCtx) {
		metrics.JobDeferrals.WithLabelValues(name).Inc()
		s.logger.Debug().Str("job", name).Dur("recheck", s.settings.OfflineRecheck).Msg("Offline, deferring job")
		s.finish(e, req, nil)
		return
	}

	start := time.Now()
	result := s.invoke(runCtx, req)
	metrics.RecordJobRun(name, result.String(), time.Since(start))
	s.finish(e, req, &result)
}

// invoke runs the job body, converting a panic into a failure.
func (s *Scheduler) invoke(ctx context.Context, req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", req.Name).Interface("panic", r).Msg("Job panicked")
			result = ResultFailure
		}
	}()
	return req.Job(ctx)
}

// finish re-arms or drops the entry. result is nil for an offline deferral.
func (s *Scheduler) finish(e *entry, req Request, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.running = false
	e.cancelRun = nil

	if result != nil {
		e.lastResult = result.String()
		e.lastRunAt = time.Now()
	}

	if !s.started {
		return
	}
	if e.replacement != nil {
		next := *e.replacement
		e.replacement = nil
		e.cancelled = false
		e.req = next
		e.attempts = 0
		s.armLocked(e, next.InitialDelay)
		return
	}
	if e.cancelled {
		if s.jobs[req.Name] == e {
			delete(s.jobs, req.Name)
		}
		return
	}

	if result == nil {
		s.armLocked(e, s.settings.OfflineRecheck)
		return
	}

	switch {
	case req.Kind == Periodic:
		if *result == ResultSuccess {
			e.attempts = 0
		} else {
			e.attempts++
		}
		s.armLocked(e, req.Interval)
	case *result == ResultRetry:
		e.attempts++
		delay := s.backoff(e.attempts)
		s.logger.Info().Str("job", req.Name).Int("attempt", e.attempts).Dur("delay", delay).Msg("Job asked for retry")
		s.armLocked(e, delay)
	default:
		delete(s.jobs, req.Name)
	}
}

// backoff returns RetryBackoff * 2^(attempt-1), capped at MaxBackoff.
func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.settings.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.settings.MaxBackoff {
			return s.settings.MaxBackoff
		}
	}
	if d > s.settings.MaxBackoff {
		return s.settings.MaxBackoff
	}
	return d
}
