package scheduler

import (
	"log/slog"
	"sync"
	"time"

	shared "github.com/vitalsync/agent/pkg"
)

// Handler executes the task registered under a slot name.
type Handler func(name string)

// InProc is an in-process shared.TaskScheduler backed by timers. Each name
// owns one slot: at most one pending or running instance exists per name,
// and EnqueueOnce with replace supersedes whatever was pending.
type InProc struct {
	logger *slog.Logger

	mu       sync.Mutex
	handler  Handler
	timers   map[string]*time.Timer
	running  map[string]bool
	periodic map[string]chan struct{}
	closed   bool
}

func NewInProc(logger *slog.Logger) *InProc {
	return &InProc{
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		running:  make(map[string]bool),
		periodic: make(map[string]chan struct{}),
	}
}

// SetHandler wires the dispatch target. Must be called before any task fires.
func (s *InProc) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *InProc) EnqueueOnce(name string, delay time.Duration, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if t, ok := s.timers[name]; ok {
		if !replace {
			return nil
		}
		t.Stop()
		delete(s.timers, name)
	}

	s.timers[name] = time.AfterFunc(delay, func() { s.fire(name) })
	return nil
}

func (s *InProc) EnqueuePeriodic(name string, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if stop, ok := s.periodic[name]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.periodic[name] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.fire(name)
			}
		}
	}()
	return nil
}

func (s *InProc) QueryStatus(name string) shared.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[name] {
		return shared.TaskRunning
	}
	if _, ok := s.timers[name]; ok {
		return shared.TaskPending
	}
	if _, ok := s.periodic[name]; ok {
		return shared.TaskPending
	}
	return shared.TaskAbsent
}

func (s *InProc) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
	if stop, ok := s.periodic[name]; ok {
		close(stop)
		delete(s.periodic, name)
	}
}

// Close stops all pending and periodic tasks.
func (s *InProc) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	for name, stop := range s.periodic {
		close(stop)
		delete(s.periodic, name)
	}
}

func (s *InProc) fire(name string) {
	s.mu.Lock()
	if s.closed || s.handler == nil {
		s.mu.Unlock()
		return
	}
	if s.running[name] {
		// A periodic tick while the previous run is still going; skip it
		// rather than stack invocations on one slot.
		s.mu.Unlock()
		return
	}
	delete(s.timers, name)
	s.running[name] = true
	handler := s.handler
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("Task slot firing", "task", name)
	}

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	handler(name)
}
