package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/engine"
	"github.com/vitalsync/agent/pkg/infrastructure/sentry"
)

// TimeOfDay is a fixed local wall-clock target, e.g. 10:00 or 17:35.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// SlotState is the Job Schedule State for one slot. It is owned exclusively
// by the Scheduler; other components read it only through Status. The
// watchdog may force a re-arm but never touches RetryCount.
type SlotState struct {
	NextFire   time.Time
	RetryCount int
}

// RunFunc executes one job invocation and reports its outcome.
type RunFunc func(ctx context.Context) engine.Outcome

type slot struct {
	run   RunFunc
	daily TimeOfDay
	state SlotState
}

// Scheduler owns the scheduling slots for all sync jobs. Arming always
// replaces any pending entry for the slot - stale pending entries are a
// known failure mode, never kept. Retryable outcomes re-arm with
// exponential backoff so transient failures recover within the same day
// instead of waiting for tomorrow's fixed slot.
type Scheduler struct {
	tasks  shared.TaskScheduler
	logger *slog.Logger
	now    func() time.Time

	// RetryBase is the first backoff delay; doubles per consecutive retry.
	RetryBase time.Duration
	// RetryMax caps the backoff delay (the retry count itself is unbounded).
	RetryMax time.Duration
	// RunTimeout bounds one dispatched invocation.
	RunTimeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

func New(tasks shared.TaskScheduler, logger *slog.Logger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		tasks:      tasks,
		logger:     logger,
		now:        now,
		RetryBase:  30 * time.Second,
		RetryMax:   4 * time.Hour,
		RunTimeout: engine.RunTimeout,
		slots:      make(map[string]*slot),
	}
}

// Register creates (or replaces) the slot for a job. The job is not armed
// until ArmNext or RunOnceNow is called.
func (s *Scheduler) Register(name string, run RunFunc, daily TimeOfDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = &slot{run: run, daily: daily}
}

// Unregister cancels the slot and forgets its state.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[name]; !ok {
		return
	}
	delete(s.slots, name)
	s.tasks.Cancel(name)
	s.logger.Info("Job slot unregistered", "job", name)
}

// Names returns the registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	return names
}

// ArmNext arms the slot for its next fixed wall-clock occurrence: today at
// the target time, or tomorrow if that has already passed. Replaces any
// pending entry.
func (s *Scheduler) ArmNext(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	now := s.now()
	target := time.Date(now.Year(), now.Month(), now.Day(), sl.daily.Hour, sl.daily.Minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}

	if err := s.tasks.EnqueueOnce(name, target.Sub(now), true); err != nil {
		return fmt.Errorf("arm %q: %w", name, err)
	}
	sl.state.NextFire = target
	s.logger.Info("Job armed", "job", name, "next_fire", target)
	return nil
}

// RunOnceNow triggers an immediate invocation (e.g. at login) without
// disturbing the daily fixed-time arm: the run executes outside the slot's
// pending entry, and outcome handling re-arms to the same fixed target.
func (s *Scheduler) RunOnceNow(name string) {
	s.mu.Lock()
	_, ok := s.slots[name]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("RunOnceNow for unknown job", "job", name)
		return
	}
	go s.Dispatch(name)
}

// Status returns the slot's schedule state and the task scheduler's view of
// the slot.
func (s *Scheduler) Status(name string) (SlotState, shared.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[name]
	if !ok {
		return SlotState{}, shared.TaskAbsent, false
	}
	return sl.state, s.tasks.QueryStatus(name), true
}

// Dispatch runs the named job and applies outcome handling: success (and
// permanent-resolved-as-success) re-arms the next daily slot and clears the
// retry count; retryable failures re-arm with exponential backoff.
func (s *Scheduler) Dispatch(name string) {
	s.mu.Lock()
	sl, ok := s.slots[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	run := sl.run
	timeout := s.RunTimeout
	s.mu.Unlock()

	outcome := s.safeRun(name, run, timeout)

	if outcome.ShouldRetry() {
		s.armRetry(name)
		return
	}

	s.mu.Lock()
	if sl, ok := s.slots[name]; ok {
		sl.state.RetryCount = 0
	}
	s.mu.Unlock()

	if err := s.ArmNext(name); err != nil {
		s.logger.Error("Failed to re-arm job", "job", name, "error", err)
	}
}

// safeRun invokes the job under the run timeout and converts a panic into a
// retryable outcome. A panicking job must not take down the agent; it backs
// off like any other transient failure.
func (s *Scheduler) safeRun(name string, run RunFunc, timeout time.Duration) (outcome engine.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job %s panicked: %v", name, r)
			s.logger.Error("Job panicked", "job", name, "panic", r)
			sentry.CaptureException(err, map[string]interface{}{"job": name}, s.logger)
			outcome = engine.Retryable(err, 0)
		}
	}()
	return run(ctx)
}

// armRetry re-arms the slot after a retryable failure. The delay doubles per
// consecutive retry and is capped at RetryMax; the count itself is unbounded.
func (s *Scheduler) armRetry(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[name]
	if !ok {
		return
	}

	sl.state.RetryCount++
	delay := s.RetryBase
	for i := 1; i < sl.state.RetryCount && delay < s.RetryMax; i++ {
		delay *= 2
	}
	if delay > s.RetryMax {
		delay = s.RetryMax
	}

	if err := s.tasks.EnqueueOnce(name, delay, true); err != nil {
		s.logger.Error("Failed to arm retry", "job", name, "error", err)
		return
	}
	sl.state.NextFire = s.now().Add(delay)
	s.logger.Warn("Job re-armed with backoff", "job", name, "retry", sl.state.RetryCount, "delay", delay.String())
}
