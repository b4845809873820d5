// Package wellbeing is the screen-time provider client. It reads the
// per-day usage aggregates exported by the device wellbeing service.
package wellbeing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/engine"
	httputil "github.com/vitalsync/agent/pkg/infrastructure/http"
	"github.com/vitalsync/agent/pkg/infrastructure/oauth"
	"github.com/vitalsync/agent/pkg/types"
)

const defaultBaseURL = "https://wellbeing.googleapis.com"

const millisPerHour = 60 * 60 * 1000

// Client is an API client for the wellbeing usage service.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client authenticating through the user's stored
// credentials. The wellbeing grant is device-scoped and not refreshable,
// so an expired token surfaces as a 401 rather than a refresh attempt.
func NewClient(tokens oauth.TokenSource) *Client {
	return &Client{
		client:  oauth.NewHTTPClient(tokens),
		baseURL: defaultBaseURL,
	}
}

// NewClientWithHTTP injects the HTTP client and base URL; used in tests.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	return &Client{client: httpClient, baseURL: baseURL}
}

func (c *Client) Source() string {
	return shared.SourceWellbeing
}

// RefreshCredentials is a no-op: the grant cannot be refreshed, only
// re-issued by the user.
func (c *Client) RefreshCredentials(ctx context.Context) error {
	return nil
}

type usageResponse struct {
	Days []struct {
		Date           string           `json:"date"`
		TotalScreenMs  int64            `json:"totalScreenMillis"`
		Unlocks        float64          `json:"unlocks"`
		CategoryMillis map[string]int64 `json:"categoryMillis"`
	} `json:"days"`
}

func (c *Client) FetchWindow(ctx context.Context, metric shared.Metric, start, end time.Time) ([]types.RawRecord, error) {
	if metric != shared.MetricScreenTime {
		return nil, engine.MarkPermanent(fmt.Errorf("wellbeing: unsupported metric %q", metric))
	}

	from := civil.DateOf(start)
	to := civil.DateOf(end.Add(-time.Second))
	url := fmt.Sprintf("%s/v1/usage/daily?start=%s&end=%s", c.baseURL, from, to)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wellbeing request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("wellbeing: %w", err)
	}

	var body usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, engine.MarkPermanent(fmt.Errorf("decode wellbeing response: %w", err))
	}

	records := make([]types.RawRecord, 0, len(body.Days))
	for _, day := range body.Days {
		date, err := civil.ParseDate(day.Date)
		if err != nil {
			return nil, engine.MarkPermanent(fmt.Errorf("wellbeing: bad date %q: %w", day.Date, err))
		}

		values := map[string]float64{"unlocks": day.Unlocks}
		for category, ms := range day.CategoryMillis {
			values[category] = float64(ms) / millisPerHour
		}

		records = append(records, types.RawRecord{
			RecordID:       fmt.Sprintf("screen-%s", date),
			ReportedDate:   date,
			DurationMillis: day.TotalScreenMs,
			Values:         values,
		})
	}
	return records, nil
}
