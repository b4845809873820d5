package shared

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/vitalsync/agent/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	GetUser(ctx context.Context, id string) (*types.UserRecord, error)
	UpdateUser(ctx context.Context, id string, data map[string]interface{}) error

	// Metric day rows. Upsert is idempotent per (metric, source, date);
	// repeating a write with the same inputs does not change the outcome.
	LatestDate(ctx context.Context, userID string, metric, source string) (civil.Date, bool, error)
	HasRow(ctx context.Context, userID string, metric, source string, date civil.Date) (bool, error)
	UpsertDay(ctx context.Context, userID string, row *types.DayRow) error

	// Sync run history
	SetSyncRun(ctx context.Context, userID string, record *types.SyncRunRecord) error
	UpdateSyncRun(ctx context.Context, userID string, runID string, data map[string]interface{}) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Scheduling Interfaces ---

// TaskStatus reports whether a named task slot currently exists.
type TaskStatus int

const (
	TaskAbsent TaskStatus = iota
	TaskPending
	TaskRunning
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	default:
		return "absent"
	}
}

// TaskScheduler is the OS-level task execution collaborator. Each job owns
// exactly one slot identified by a stable name; EnqueueOnce with replace
// always supersedes a pending entry for that slot.
type TaskScheduler interface {
	EnqueueOnce(name string, delay time.Duration, replace bool) error
	EnqueuePeriodic(name string, interval time.Duration) error
	QueryStatus(name string) TaskStatus
	Cancel(name string)
}
