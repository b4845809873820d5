package firestore

import (
	"fmt"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) Users() *Collection[types.UserRecord] {
	return &Collection[types.UserRecord]{
		Ref:           c.fs.Collection(shared.CollectionUsers),
		ToFirestore:   UserToFirestore,
		FromFirestore: FirestoreToUser,
	}
}

// MetricDays are sub-collections of Users: users/{uid}/metric_days/{metric}_{source}_{date}.
// The document ID encodes the stream tuple, so a Set with merge is the
// idempotent upsert keyed on (metric, source, date).
func (c *Client) MetricDays(userID string) *Collection[types.DayRow] {
	return &Collection[types.DayRow]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userID).Collection(shared.CollectionMetricDays),
		ToFirestore:   DayRowToFirestore,
		FromFirestore: FirestoreToDayRow,
	}
}

// SyncRuns are sub-collections of Users: users/{uid}/sync_runs/{run_id}.
func (c *Client) SyncRuns(userID string) *Collection[types.SyncRunRecord] {
	return &Collection[types.SyncRunRecord]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userID).Collection(shared.CollectionSyncRuns),
		ToFirestore:   SyncRunToFirestore,
		FromFirestore: FirestoreToSyncRun,
	}
}

// DayRowID builds the document ID for a (metric, source, date) day row.
func DayRowID(metric, source string, date civil.Date) string {
	return fmt.Sprintf("%s_%s_%s", metric, source, date.String())
}
