package engine

import (
	"context"
	"log/slog"
	"time"

	shared "github.com/vitalsync/agent/pkg"
	infrapubsub "github.com/vitalsync/agent/pkg/infrastructure/pubsub"
)

// Notifier tells the downstream aggregation step that days were synced.
// It is an explicit background task with its own retry budget, decoupled
// from the sync job's success or failure: a lost notification costs a
// delayed aggregate, never a lost row.
type Notifier struct {
	Pub    shared.Publisher
	Logger *slog.Logger

	// Attempts and Backoff shape the retry loop; zero values mean
	// 3 attempts starting at 2s.
	Attempts int
	Backoff  time.Duration
}

// DaySyncedEvent is the payload published after a successful pass.
type DaySyncedEvent struct {
	UserID      string `json:"user_id"`
	Metric      string `json:"metric"`
	Source      string `json:"source"`
	DaysWritten int    `json:"days_written"`
	SyncedAt    string `json:"synced_at"`
}

// SyncFailedEvent is published when a job hits a permanent failure, so the
// backend can surface a re-connect prompt or alert on a broken provider.
type SyncFailedEvent struct {
	UserID   string `json:"user_id"`
	Metric   string `json:"metric"`
	Source   string `json:"source"`
	Reason   string `json:"reason"`
	FailedAt string `json:"failed_at"`
}

// DaySynced publishes a day-synced event, retrying transient failures.
// Exhausted retries are logged and dropped.
func (n *Notifier) DaySynced(ctx context.Context, userID, metric, source string, daysWritten int) {
	if n.Pub == nil {
		return
	}

	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload := DaySyncedEvent{
		UserID:      userID,
		Metric:      metric,
		Source:      source,
		DaysWritten: daysWritten,
		SyncedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	e, err := infrapubsub.NewCloudEvent(infrapubsub.EventSourceSyncEngine, infrapubsub.EventTypeDaySynced, payload)
	if err != nil {
		logger.Error("Failed to build day-synced event", "error", err)
		return
	}

	attempts := n.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := n.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	for i := 0; i < attempts; i++ {
		pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = n.Pub.PublishCloudEvent(pubCtx, shared.TopicDaySynced, e)
		cancel()
		if err == nil {
			logger.Debug("Published day-synced event", "metric", metric, "days_written", daysWritten)
			return
		}
		logger.Warn("Day-synced publish failed", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	logger.Error("Dropping day-synced event after retries", "metric", metric, "error", err)
}

// SyncFailed publishes a sync-failed event. Single attempt: the run record
// already holds the failure, this is only a prompt for the backend.
func (n *Notifier) SyncFailed(ctx context.Context, userID, metric, source, reason string) {
	if n.Pub == nil {
		return
	}

	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	payload := SyncFailedEvent{
		UserID:   userID,
		Metric:   metric,
		Source:   source,
		Reason:   reason,
		FailedAt: time.Now().UTC().Format(time.RFC3339),
	}

	e, err := infrapubsub.NewCloudEvent(infrapubsub.EventSourceSyncEngine, infrapubsub.EventTypeSyncFailed, payload)
	if err != nil {
		logger.Error("Failed to build sync-failed event", "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := n.Pub.PublishCloudEvent(pubCtx, shared.TopicSyncFailed, e); err != nil {
		logger.Warn("Sync-failed publish failed", "error", err)
	}
}
