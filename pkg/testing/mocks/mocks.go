package mocks

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetUserFunc       func(ctx context.Context, id string) (*types.UserRecord, error)
	UpdateUserFunc    func(ctx context.Context, id string, data map[string]interface{}) error
	LatestDateFunc    func(ctx context.Context, userID string, metric, source string) (civil.Date, bool, error)
	HasRowFunc        func(ctx context.Context, userID string, metric, source string, date civil.Date) (bool, error)
	UpsertDayFunc     func(ctx context.Context, userID string, row *types.DayRow) error
	SetSyncRunFunc    func(ctx context.Context, userID string, record *types.SyncRunRecord) error
	UpdateSyncRunFunc func(ctx context.Context, userID, runID string, data map[string]interface{}) error
}

func (m *MockDatabase) GetUser(ctx context.Context, id string) (*types.UserRecord, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return nil, fmt.Errorf("user not found")
}
func (m *MockDatabase) UpdateUser(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, id, data)
	}
	return nil
}
func (m *MockDatabase) LatestDate(ctx context.Context, userID string, metric, source string) (civil.Date, bool, error) {
	if m.LatestDateFunc != nil {
		return m.LatestDateFunc(ctx, userID, metric, source)
	}
	return civil.Date{}, false, nil
}
func (m *MockDatabase) HasRow(ctx context.Context, userID string, metric, source string, date civil.Date) (bool, error) {
	if m.HasRowFunc != nil {
		return m.HasRowFunc(ctx, userID, metric, source, date)
	}
	return false, nil
}
func (m *MockDatabase) UpsertDay(ctx context.Context, userID string, row *types.DayRow) error {
	if m.UpsertDayFunc != nil {
		return m.UpsertDayFunc(ctx, userID, row)
	}
	return nil
}
func (m *MockDatabase) SetSyncRun(ctx context.Context, userID string, record *types.SyncRunRecord) error {
	if m.SetSyncRunFunc != nil {
		return m.SetSyncRunFunc(ctx, userID, record)
	}
	return nil
}
func (m *MockDatabase) UpdateSyncRun(ctx context.Context, userID, runID string, data map[string]interface{}) error {
	if m.UpdateSyncRunFunc != nil {
		return m.UpdateSyncRunFunc(ctx, userID, runID, data)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Scheduler ---
type MockScheduler struct {
	EnqueueOnceFunc     func(name string, delay time.Duration, replace bool) error
	EnqueuePeriodicFunc func(name string, interval time.Duration) error
	QueryStatusFunc     func(name string) shared.TaskStatus
	CancelFunc          func(name string)
}

func (m *MockScheduler) EnqueueOnce(name string, delay time.Duration, replace bool) error {
	if m.EnqueueOnceFunc != nil {
		return m.EnqueueOnceFunc(name, delay, replace)
	}
	return nil
}
func (m *MockScheduler) EnqueuePeriodic(name string, interval time.Duration) error {
	if m.EnqueuePeriodicFunc != nil {
		return m.EnqueuePeriodicFunc(name, interval)
	}
	return nil
}
func (m *MockScheduler) QueryStatus(name string) shared.TaskStatus {
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(name)
	}
	return shared.TaskAbsent
}
func (m *MockScheduler) Cancel(name string) {
	if m.CancelFunc != nil {
		m.CancelFunc(name)
	}
}

// --- Mock Provider ---
type MockProvider struct {
	SourceName             string
	FetchWindowFunc        func(ctx context.Context, metric shared.Metric, start, end time.Time) ([]types.RawRecord, error)
	RefreshCredentialsFunc func(ctx context.Context) error
}

func (m *MockProvider) Source() string {
	if m.SourceName != "" {
		return m.SourceName
	}
	return "mock"
}
func (m *MockProvider) FetchWindow(ctx context.Context, metric shared.Metric, start, end time.Time) ([]types.RawRecord, error) {
	if m.FetchWindowFunc != nil {
		return m.FetchWindowFunc(ctx, metric, start, end)
	}
	return nil, nil
}
func (m *MockProvider) RefreshCredentials(ctx context.Context) error {
	if m.RefreshCredentialsFunc != nil {
		return m.RefreshCredentialsFunc(ctx)
	}
	return nil
}
