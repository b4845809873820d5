// Package fitbit is the wearable provider client for sleep and activity.
package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/bootstrap"
	"github.com/vitalsync/agent/pkg/engine"
	httputil "github.com/vitalsync/agent/pkg/infrastructure/http"
	"github.com/vitalsync/agent/pkg/infrastructure/oauth"
	"github.com/vitalsync/agent/pkg/types"
)

const defaultBaseURL = "https://api.fitbit.com"

// timeLayout matches the provider's local timestamps with offset,
// e.g. "2024-03-05T06:30:00.000+01:00".
const timeLayout = "2006-01-02T15:04:05.000-07:00"

// Client is an API client for the wearable provider.
type Client struct {
	client  *http.Client
	baseURL string
	tokens  oauth.TokenSource
}

// NewClient creates a client whose requests authenticate through the
// user's stored OAuth tokens.
func NewClient(tokens oauth.TokenSource) *Client {
	return &Client{
		client:  oauth.NewHTTPClient(tokens),
		baseURL: defaultBaseURL,
		tokens:  tokens,
	}
}

// NewClientWithUsageTracking additionally stamps the integration's
// last-used timestamp on every request.
func NewClientWithUsageTracking(tokens oauth.TokenSource, svc *bootstrap.Service, userID string) *Client {
	return &Client{
		client:  oauth.NewClientWithUsageTracking(tokens, svc, userID, shared.SourceFitbit),
		baseURL: defaultBaseURL,
		tokens:  tokens,
	}
}

// NewClientWithHTTP injects the HTTP client and base URL; used in tests.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	return &Client{client: httpClient, baseURL: baseURL}
}

func (c *Client) Source() string {
	return shared.SourceFitbit
}

// RefreshCredentials proactively obtains a valid token so the pass does not
// start with an expired one. The transport still force-refreshes on 401.
func (c *Client) RefreshCredentials(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *Client) FetchWindow(ctx context.Context, metric shared.Metric, start, end time.Time) ([]types.RawRecord, error) {
	switch metric {
	case shared.MetricSleep:
		return c.fetchSleep(ctx, start, end)
	case shared.MetricActivity:
		return c.fetchActivity(ctx, start, end)
	default:
		return nil, engine.MarkPermanent(fmt.Errorf("fitbit: unsupported metric %q", metric))
	}
}

type sleepResponse struct {
	Sleep []struct {
		LogID     int64  `json:"logId"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Duration  int64  `json:"duration"` // milliseconds
		Levels    struct {
			Summary map[string]struct {
				Minutes int64 `json:"minutes"`
			} `json:"summary"`
		} `json:"levels"`
	} `json:"sleep"`
}

func (c *Client) fetchSleep(ctx context.Context, start, end time.Time) ([]types.RawRecord, error) {
	from := civil.DateOf(start)
	to := civil.DateOf(end.Add(-time.Second))
	url := fmt.Sprintf("%s/1.2/user/-/sleep/date/%s/%s.json", c.baseURL, from, to)

	var body sleepResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}

	records := make([]types.RawRecord, 0, len(body.Sleep))
	for _, s := range body.Sleep {
		rec := types.RawRecord{
			RecordID:       fmt.Sprintf("sleep-%d", s.LogID),
			DurationMillis: s.Duration,
		}

		if t, ok := parseLocalTime(s.StartTime); ok {
			rec.Start = t
		}
		if t, ok := parseLocalTime(s.EndTime); ok {
			rec.End = t
			_, offsetSeconds := t.Zone()
			rec.TimezoneOffsetMinutes = offsetSeconds / 60
			rec.TimezoneKnown = true
		}

		if len(s.Levels.Summary) > 0 {
			rec.StageMillis = make(map[string]int64, len(s.Levels.Summary))
			for stage, v := range s.Levels.Summary {
				rec.StageMillis[stage] = v.Minutes * 60 * 1000
			}
		}

		records = append(records, rec)
	}
	return records, nil
}

type activityResponse struct {
	Summary struct {
		Steps             float64 `json:"steps"`
		CaloriesOut       float64 `json:"caloriesOut"`
		VeryActiveMinutes int64   `json:"veryActiveMinutes"`
		FairlyActiveMins  int64   `json:"fairlyActiveMinutes"`
	} `json:"summary"`
}

// fetchActivity pulls the per-day summaries covering the window. The
// provider aggregates activity per local day already, so each record
// carries its reported date.
func (c *Client) fetchActivity(ctx context.Context, start, end time.Time) ([]types.RawRecord, error) {
	from := civil.DateOf(start)
	to := civil.DateOf(end.Add(-time.Second))

	var records []types.RawRecord
	for d := from; !d.After(to); d = d.AddDays(1) {
		url := fmt.Sprintf("%s/1/user/-/activities/date/%s.json", c.baseURL, d)

		var body activityResponse
		if err := c.getJSON(ctx, url, &body); err != nil {
			return nil, err
		}

		activeMinutes := body.Summary.VeryActiveMinutes + body.Summary.FairlyActiveMins
		records = append(records, types.RawRecord{
			RecordID:       fmt.Sprintf("activity-%s", d),
			ReportedDate:   d,
			DurationMillis: activeMinutes * 60 * 1000,
			Values: map[string]float64{
				"steps":          body.Summary.Steps,
				"calories":       body.Summary.CaloriesOut,
				"active_minutes": float64(activeMinutes),
			},
		})
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fitbit request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return fmt.Errorf("fitbit: %w", err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A malformed body is not worth retrying.
		return engine.MarkPermanent(fmt.Errorf("decode fitbit response: %w", err))
	}
	return nil
}

func parseLocalTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
