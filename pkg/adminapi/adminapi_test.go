package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/bootstrap"
	"github.com/vitalsync/agent/pkg/engine"
	"github.com/vitalsync/agent/pkg/orchestrator"
	"github.com/vitalsync/agent/pkg/scheduler"
	"github.com/vitalsync/agent/pkg/testing/mocks"
	"github.com/vitalsync/agent/pkg/types"
)

func newTestServer(t *testing.T, sleepEnabled bool) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{
				ID:       "user-1",
				Timezone: "UTC",
				Metrics: map[string]*types.MetricSettings{
					"sleep": {Enabled: sleepEnabled, PermissionGranted: sleepEnabled},
				},
			}, nil
		},
	}
	svc := &bootstrap.Service{DB: db, Pub: &mocks.MockPublisher{}}
	sched := scheduler.New(&mocks.MockScheduler{}, logger, func() time.Time {
		return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	})
	runner := engine.NewRunner(svc, nil, logger)
	providers := orchestrator.Providers{
		Fitbit:    &mocks.MockProvider{SourceName: shared.SourceFitbit},
		Wellbeing: &mocks.MockProvider{SourceName: shared.SourceWellbeing},
	}
	orch := orchestrator.New(svc, sched, runner, "user-1", providers, logger)
	if err := orch.Reevaluate(context.Background()); err != nil {
		t.Fatalf("Reevaluate failed: %v", err)
	}
	return NewServer(orch, logger)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, true)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusListsRegisteredJobs(t *testing.T) {
	server := newTestServer(t, true)
	req := httptest.NewRequest("GET", "/v1/status", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Jobs []struct {
			Job        string `json:"job"`
			TaskStatus string `json:"task_status"`
			NextFire   string `json:"next_fire"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(body.Jobs))
	}
	if body.Jobs[0].Job != "sync-sleep" {
		t.Errorf("expected sync-sleep, got %s", body.Jobs[0].Job)
	}
	if body.Jobs[0].NextFire == "" {
		t.Error("expected next_fire to be populated")
	}
}

func TestRunNowTriggersEnabledMetric(t *testing.T) {
	server := newTestServer(t, true)
	req := httptest.NewRequest("POST", "/v1/sync/sleep/run", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunNowUnknownMetric(t *testing.T) {
	server := newTestServer(t, true)
	req := httptest.NewRequest("POST", "/v1/sync/bogus/run", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunNowDisabledMetricConflicts(t *testing.T) {
	server := newTestServer(t, false)
	req := httptest.NewRequest("POST", "/v1/sync/sleep/run", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestReevaluateEndpoint(t *testing.T) {
	server := newTestServer(t, true)
	req := httptest.NewRequest("POST", "/v1/sync/reevaluate", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
