package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/domain/backfill"
	"github.com/vitalsync/agent/pkg/domain/dayassign"
	"github.com/vitalsync/agent/pkg/types"
)

// Provider fetches one provider's raw measurements for a time window.
// Pure I/O boundary; no business logic lives behind it.
type Provider interface {
	// Source tags the stream this provider feeds, so competing providers
	// for the same metric never collide in the store.
	Source() string

	// FetchWindow returns the raw records overlapping [start, end).
	FetchWindow(ctx context.Context, metric shared.Metric, start, end time.Time) ([]types.RawRecord, error)

	// RefreshCredentials ensures a usable token before the pass starts.
	// Providers without credentials return nil.
	RefreshCredentials(ctx context.Context) error
}

// JobState names the phases of one sync invocation, for logging.
type JobState string

const (
	StateCheckingConsent       JobState = "checking_consent"
	StateRefreshingCredentials JobState = "refreshing_credentials"
	StateBackfilling           JobState = "backfilling"
	StateSyncingToday          JobState = "syncing_today"
)

// Job is one schedulable unit of work reconciling a (metric, source) stream
// against local calendar days. Collaborators are injected: the provider, the
// day-assignment strategy, and the backfill policy compose a job instead of
// subclassing one.
type Job struct {
	Name   string
	UserID string
	Metric shared.Metric

	Provider Provider
	Assign   dayassign.Assigner
	Policy   backfill.Policy
	DB       shared.Database

	// PrimaryValue extracts the stored row's primary value from a record.
	// Defaults to duration-in-hours.
	PrimaryValue func(types.RawRecord) float64

	Logger *slog.Logger

	// Now is the clock; defaults to time.Now. Injected by tests.
	Now func() time.Time
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *Job) primaryValue(rec types.RawRecord) float64 {
	if j.PrimaryValue != nil {
		return j.PrimaryValue(rec)
	}
	return dayassign.Hours(rec)
}

// Run executes one invocation of the state machine:
// CheckingConsent -> RefreshingCredentials -> Backfilling -> SyncingToday.
// Single-day failures during backfill are logged and skipped; the pass
// fails only when today's write also fails.
func (j *Job) Run(ctx context.Context) Outcome {
	log := j.logger().With("job", j.Name, "metric", string(j.Metric), "source", j.Provider.Source())

	// CheckingConsent
	log.Debug("Job state", "state", string(StateCheckingConsent))
	user, err := j.DB.GetUser(ctx, j.UserID)
	if err != nil {
		return Retryable(fmt.Errorf("load user: %w", err), 0)
	}

	settings := user.Metric(string(j.Metric))
	if settings == nil || !settings.Enabled {
		return NoOp("metric disabled")
	}
	if !settings.PermissionGranted {
		return NoOp("permission not granted")
	}

	zone := user.Zone()
	today := civil.DateOf(j.now().In(zone))
	source := j.Provider.Source()

	// RefreshingCredentials
	log.Debug("Job state", "state", string(StateRefreshingCredentials))
	if err := j.Provider.RefreshCredentials(ctx); err != nil {
		return Retryable(fmt.Errorf("refresh credentials: %w", err), 0)
	}

	// Backfilling
	log.Debug("Job state", "state", string(StateBackfilling))
	latest, hasLatest, err := j.DB.LatestDate(ctx, j.UserID, string(j.Metric), source)
	if err != nil {
		return Retryable(fmt.Errorf("latest stored date: %w", err), 0)
	}

	written := 0
	wroteToday := false
	for _, date := range j.Policy.Range(latest, hasLatest, today) {
		if date == today {
			// Today gets its own guaranteed pass below.
			continue
		}
		has, err := j.DB.HasRow(ctx, j.UserID, string(j.Metric), source, date)
		if err != nil {
			log.Warn("Row presence check failed, skipping day", "date", date.String(), "error", err)
			continue
		}
		if has {
			continue
		}
		wrote, err := j.syncDay(ctx, zone, date)
		if err != nil {
			// A stale day never blocks today's data.
			log.Warn("Backfill day failed, skipping", "date", date.String(), "error", err)
			continue
		}
		if wrote {
			written++
		}
	}

	// SyncingToday - guaranteed final pass, so a job starting mid-day always
	// has a last chance to capture today before exiting.
	log.Debug("Job state", "state", string(StateSyncingToday))
	has, err := j.DB.HasRow(ctx, j.UserID, string(j.Metric), source, today)
	if err == nil && has {
		log.Debug("Today already stored", "date", today.String())
	} else {
		wrote, err := j.syncDay(ctx, zone, today)
		if err != nil {
			switch Classify(err) {
			case ClassPermanent:
				return Permanent(fmt.Errorf("sync today: %w", err), written)
			default:
				return Retryable(fmt.Errorf("sync today: %w", err), written)
			}
		}
		if wrote {
			written++
			wroteToday = true
		}
	}

	log.Info("Sync pass complete", "days_written", written, "wrote_today", wroteToday)
	return Success(written)
}

// syncDay fetches the window around one local date, assigns the best record
// and writes it through. Returns false with nil error when the window held
// nothing assignable - silence from a provider is not a failure.
func (j *Job) syncDay(ctx context.Context, zone *time.Location, date civil.Date) (bool, error) {
	// A session owned by this date may start the previous evening, so the
	// window spans from the prior midnight to the next.
	start := date.AddDays(-1).In(zone)
	end := date.AddDays(1).In(zone)

	records, err := j.Provider.FetchWindow(ctx, j.Metric, start, end)
	if err != nil {
		return false, fmt.Errorf("fetch window: %w", err)
	}

	rec, ok := dayassign.SelectForDay(records, date, j.Assign, zone)
	if !ok {
		return false, nil
	}

	row := &types.DayRow{
		Date:      date,
		Metric:    string(j.Metric),
		Source:    j.Provider.Source(),
		Value:     j.primaryValue(rec),
		Values:    rec.Values,
		RecordID:  rec.RecordID,
		UpdatedAt: j.now(),
	}
	if err := j.DB.UpsertDay(ctx, j.UserID, row); err != nil {
		return false, fmt.Errorf("upsert day %s: %w", date, err)
	}
	return true, nil
}
