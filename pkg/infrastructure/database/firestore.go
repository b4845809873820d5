package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	storage "github.com/vitalsync/agent/pkg/storage/firestore"
	"github.com/vitalsync/agent/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore.
// It wraps our typed storage client.
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client // internal typed wrapper
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetUser(ctx context.Context, id string) (*types.UserRecord, error) {
	doc, err := a.storage.Users().Doc(id).Get(ctx)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *FirestoreAdapter) UpdateUser(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Users().Doc(id).Update(ctx, data)
}

// LatestDate returns the most recent stored date for a (metric, source)
// stream. The second return is false when the stream has no rows yet.
func (a *FirestoreAdapter) LatestDate(ctx context.Context, userID string, metric, source string) (civil.Date, bool, error) {
	rows, err := a.storage.MetricDays(userID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("metric", "==", metric).
			Where("source", "==", source).
			OrderBy("date", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("query latest date: %w", err)
	}
	if len(rows) == 0 {
		return civil.Date{}, false, nil
	}
	return rows[0].Date, true, nil
}

func (a *FirestoreAdapter) HasRow(ctx context.Context, userID string, metric, source string, date civil.Date) (bool, error) {
	return a.storage.MetricDays(userID).Doc(storage.DayRowID(metric, source, date)).Exists(ctx)
}

// UpsertDay writes a day row. The document ID encodes (metric, source, date),
// so repeated writes with the same inputs land on the same document.
func (a *FirestoreAdapter) UpsertDay(ctx context.Context, userID string, row *types.DayRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}
	return a.storage.MetricDays(userID).Doc(storage.DayRowID(row.Metric, row.Source, row.Date)).Set(ctx, row)
}

func (a *FirestoreAdapter) SetSyncRun(ctx context.Context, userID string, record *types.SyncRunRecord) error {
	return a.storage.SyncRuns(userID).Doc(record.RunID).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateSyncRun(ctx context.Context, userID string, runID string, data map[string]interface{}) error {
	return a.storage.SyncRuns(userID).Doc(runID).Update(ctx, data)
}

// IsNotFound reports whether err is a Firestore missing-document error.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
