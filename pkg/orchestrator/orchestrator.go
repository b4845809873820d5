// Package orchestrator reconciles per-metric sync jobs against the user's
// settings: enabled metrics get exactly one registered, armed job; disabled
// metrics get none.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/bootstrap"
	"github.com/vitalsync/agent/pkg/domain/backfill"
	"github.com/vitalsync/agent/pkg/domain/dayassign"
	"github.com/vitalsync/agent/pkg/engine"
	"github.com/vitalsync/agent/pkg/scheduler"
	"github.com/vitalsync/agent/pkg/types"
)

// jobSpec declares how one metric syncs: which provider stream feeds it by
// default, how records map onto days, how far back a gap is healed, and when
// the daily slot fires.
type jobSpec struct {
	// provider is the default stream; a user's preferred source overrides it.
	provider engine.Provider
	assign   dayassign.Assigner
	policy   backfill.Policy
	daily    scheduler.TimeOfDay

	// primary extracts the stored row's primary value; nil means
	// duration-in-hours.
	primary func(types.RawRecord) float64
}

// Providers bundles the provider clients the orchestrator composes jobs
// from. Wired once at startup.
type Providers struct {
	Fitbit    engine.Provider
	Wellbeing engine.Provider
}

type Orchestrator struct {
	Service *bootstrap.Service
	Sched   *scheduler.Scheduler
	Runner  *engine.Runner
	UserID  string
	Logger  *slog.Logger

	specs map[shared.Metric]jobSpec

	// bySource resolves a user's preferred source name to its client.
	bySource map[string]engine.Provider

	mu sync.Mutex
	// registered maps an enabled metric to the source its job is built on.
	registered map[shared.Metric]string
}

func New(svc *bootstrap.Service, sched *scheduler.Scheduler, runner *engine.Runner, userID string, providers Providers, logger *slog.Logger) *Orchestrator {
	bySource := map[string]engine.Provider{}
	if providers.Fitbit != nil {
		bySource[providers.Fitbit.Source()] = providers.Fitbit
	}
	if providers.Wellbeing != nil {
		bySource[providers.Wellbeing.Source()] = providers.Wellbeing
	}

	return &Orchestrator{
		Service: svc,
		Sched:   sched,
		Runner:  runner,
		UserID:  userID,
		Logger:  logger,
		specs: map[shared.Metric]jobSpec{
			// Sleep slots at 10:00 so a late riser's session is complete
			// before the pass runs. A gap never yields a today-only pass:
			// missed sleep days stay fetchable.
			shared.MetricSleep: {
				provider: providers.Fitbit,
				assign:   dayassign.IntervalEnd{},
				policy:   backfill.Policy{BaselineWindowDays: 29},
				daily:    scheduler.TimeOfDay{Hour: 10, Minute: 0},
			},
			// Screen time slots in the evening, when most of the day's usage
			// exists. The wellbeing service only retains short history, so a
			// long gap degrades to a today-only pass.
			shared.MetricScreenTime: {
				provider: providers.Wellbeing,
				assign:   dayassign.ReportedDate{},
				policy:   backfill.Policy{BaselineWindowDays: 29, MaxGapDays: 7},
				daily:    scheduler.TimeOfDay{Hour: 17, Minute: 35},
			},
			shared.MetricActivity: {
				provider: providers.Fitbit,
				assign:   dayassign.ReportedDate{},
				policy:   backfill.Policy{BaselineWindowDays: 29, MaxGapDays: 7},
				daily:    scheduler.TimeOfDay{Hour: 21, Minute: 0},
				primary: func(rec types.RawRecord) float64 {
					return rec.Values["steps"]
				},
			},
		},
		bySource:   bySource,
		registered: make(map[shared.Metric]string),
	}
}

// JobName returns the stable slot name for a metric's sync job.
func JobName(metric shared.Metric) string {
	return "sync-" + strings.ReplaceAll(string(metric), "_", "-")
}

func (o *Orchestrator) buildJob(metric shared.Metric, spec jobSpec, provider engine.Provider) *engine.Job {
	return &engine.Job{
		Name:         JobName(metric),
		UserID:       o.UserID,
		Metric:       metric,
		Provider:     provider,
		Assign:       spec.assign,
		Policy:       spec.policy,
		DB:           o.Service.DB,
		PrimaryValue: spec.primary,
	}
}

// providerFor picks the provider a metric's job should fetch from. A
// preferred source set in the user's settings wins when a client for it is
// wired; otherwise the metric's default stream is used.
func (o *Orchestrator) providerFor(metric shared.Metric, spec jobSpec, settings *types.MetricSettings) engine.Provider {
	if settings == nil || settings.PreferredSource == "" {
		return spec.provider
	}
	if p, ok := o.bySource[settings.PreferredSource]; ok {
		return p
	}
	o.Logger.Warn("Preferred source has no client, using default",
		"metric", string(metric), "preferred_source", settings.PreferredSource)
	return spec.provider
}

// Reevaluate reads the user's metric settings and reconciles job
// registration with them. Newly enabled metrics are armed for their daily
// slot and kicked off immediately so the user sees data without waiting a
// day. A changed preferred source rebuilds the job around the new provider.
// Safe to call repeatedly; otherwise-unchanged jobs are untouched.
func (o *Orchestrator) Reevaluate(ctx context.Context) error {
	user, err := o.Service.DB.GetUser(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", o.UserID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, metric := range shared.AllMetrics {
		spec, ok := o.specs[metric]
		if !ok {
			continue
		}

		settings := user.Metric(string(metric))
		want := settings != nil && settings.Enabled && settings.PermissionGranted
		name := JobName(metric)

		var provider engine.Provider
		var desired string
		if want {
			provider = o.providerFor(metric, spec, settings)
			desired = provider.Source()
		}

		switch {
		case want && o.registered[metric] == "":
			m := metric
			s := spec
			p := provider
			o.Sched.Register(name, func(ctx context.Context) engine.Outcome {
				return o.Runner.Execute(ctx, o.buildJob(m, s, p))
			}, spec.daily)
			if err := o.Sched.ArmNext(name); err != nil {
				o.Logger.Error("Failed to arm new job", "job", name, "error", err)
			}
			o.Sched.RunOnceNow(name)
			o.registered[metric] = desired
			o.Logger.Info("Metric sync enabled", "metric", string(metric), "job", name, "source", desired)

		case want && o.registered[metric] != desired:
			// Preferred source changed: rebuild the job around the new
			// provider. Registering under the same name replaces the slot,
			// so the daily fire must be re-armed.
			m := metric
			s := spec
			p := provider
			o.Sched.Register(name, func(ctx context.Context) engine.Outcome {
				return o.Runner.Execute(ctx, o.buildJob(m, s, p))
			}, spec.daily)
			if err := o.Sched.ArmNext(name); err != nil {
				o.Logger.Error("Failed to arm switched job", "job", name, "error", err)
			}
			o.registered[metric] = desired
			o.Logger.Info("Metric sync source switched", "metric", string(metric), "job", name, "source", desired)

		case !want && o.registered[metric] != "":
			o.Sched.Unregister(name)
			delete(o.registered, metric)
			o.Logger.Info("Metric sync disabled", "metric", string(metric), "job", name)
		}
	}
	return nil
}

// RunNow triggers an immediate pass for one metric, e.g. from the admin API
// or a user-visible "sync now" affordance.
func (o *Orchestrator) RunNow(metric shared.Metric) error {
	o.mu.Lock()
	source := o.registered[metric]
	o.mu.Unlock()
	if source == "" {
		return fmt.Errorf("metric %q is not enabled", metric)
	}
	o.Sched.RunOnceNow(JobName(metric))
	return nil
}

// Enabled reports whether a job name belongs to a currently enabled metric.
// Plugged into the watchdog so it never resurrects a disabled job.
func (o *Orchestrator) Enabled(jobName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for metric := range o.registered {
		if JobName(metric) == jobName {
			return true
		}
	}
	return false
}
