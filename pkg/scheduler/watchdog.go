package scheduler

import (
	"context"
	"log/slog"
	"time"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/infrastructure/sentry"
)

// Watchdog is a slow periodic auditor restoring the invariant "exactly one
// pending/running instance per enabled job". It recovers from reboots,
// task-scheduler evictions and aborted runs that leave no pending slot at
// all. It never executes job business logic itself.
type Watchdog struct {
	Sched    *Scheduler
	Interval time.Duration
	Logger   *slog.Logger

	// Enabled reports whether a job should still be scheduled. Nil means
	// every registered job is considered enabled (registration is kept in
	// sync with enablement by the orchestrator).
	Enabled func(jobName string) bool
}

// Start runs the audit loop until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	go func() {
		defer sentry.RecoverAndCapture(w.Logger)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Audit()
			}
		}
	}()
}

// Audit checks every registered job's slot and force re-arms the ones the
// task scheduler has lost.
func (w *Watchdog) Audit() {
	for _, name := range w.Sched.Names() {
		if w.Enabled != nil && !w.Enabled(name) {
			continue
		}
		_, status, ok := w.Sched.Status(name)
		if !ok {
			continue
		}
		if status != shared.TaskAbsent {
			continue
		}
		w.Logger.Warn("Job slot lost, force re-arming", "job", name)
		if err := w.Sched.ArmNext(name); err != nil {
			w.Logger.Error("Watchdog re-arm failed", "job", name, "error", err)
		}
	}
}
