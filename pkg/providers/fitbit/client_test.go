package fitbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/engine"
	httputil "github.com/vitalsync/agent/pkg/infrastructure/http"
)

func TestFetchWindowSleep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.2/user/-/sleep/date/2024-03-04/2024-03-05.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"sleep": [{
				"logId": 44128811,
				"startTime": "2024-03-04T23:10:00.000+01:00",
				"endTime": "2024-03-05T06:40:00.000+01:00",
				"duration": 27000000,
				"isMainSleep": true,
				"levels": {"summary": {
					"deep": {"minutes": 90},
					"light": {"minutes": 240},
					"rem": {"minutes": 95},
					"wake": {"minutes": 25}
				}}
			}]
		}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchWindow(context.Background(), shared.MetricSleep, start, end)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.RecordID != "sleep-44128811" {
		t.Errorf("expected record ID sleep-44128811, got %s", rec.RecordID)
	}
	if rec.DurationMillis != 27000000 {
		t.Errorf("expected duration 27000000, got %d", rec.DurationMillis)
	}
	if !rec.TimezoneKnown {
		t.Error("expected timezone to be known from the session timestamps")
	}
	if rec.TimezoneOffsetMinutes != 60 {
		t.Errorf("expected offset +60 minutes, got %d", rec.TimezoneOffsetMinutes)
	}
	if rec.StageMillis["deep"] != 90*60*1000 {
		t.Errorf("expected deep stage 5400000ms, got %d", rec.StageMillis["deep"])
	}
	if rec.End.IsZero() {
		t.Error("expected end time to be set")
	}
}

func TestFetchWindowActivity(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary": {"steps": 10432, "caloriesOut": 2210, "veryActiveMinutes": 35, "fairlyActiveMinutes": 40}}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	records, err := client.FetchWindow(context.Background(), shared.MetricActivity, start, end)
	if err != nil {
		t.Fatalf("FetchWindow failed: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected one request per day, got %d", len(paths))
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	rec := records[0]
	if rec.ReportedDate != (civil.Date{Year: 2024, Month: 3, Day: 4}) {
		t.Errorf("expected reported date 2024-03-04, got %s", rec.ReportedDate)
	}
	if rec.Values["steps"] != 10432 {
		t.Errorf("expected 10432 steps, got %f", rec.Values["steps"])
	}
	if rec.DurationMillis != 75*60*1000 {
		t.Errorf("expected 75 active minutes in millis, got %d", rec.DurationMillis)
	}
}

func TestFetchWindowUnsupportedMetric(t *testing.T) {
	client := NewClientWithHTTP(http.DefaultClient, "http://unused")

	_, err := client.FetchWindow(context.Background(), shared.MetricScreenTime, time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for unsupported metric")
	}
	if class := engine.Classify(err); class != engine.ClassPermanent {
		t.Errorf("expected permanent classification, got %s", class)
	}
}

func TestFetchWindowServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"errors": [{"errorType": "system"}]}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchWindow(context.Background(), shared.MetricSleep, start, end)
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !httputil.IsRetryable(err) {
		t.Error("expected 503 to be retryable")
	}
}

func TestFetchWindowMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sleep": [`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchWindow(context.Background(), shared.MetricSleep, start, end)
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
	if class := engine.Classify(err); class != engine.ClassPermanent {
		t.Errorf("expected malformed body to classify permanent, got %s", class)
	}
}
