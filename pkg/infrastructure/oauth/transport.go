package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vitalsync/agent/pkg/bootstrap"
)

// Transport is an http.RoundTripper that authenticates all requests
// using the provided TokenSource.
type Transport struct {
	// Source supplies the token to be used.
	Source TokenSource

	// Base is the base RoundTripper used to make the actual HTTP requests.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Proactive check happens inside Token
	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth: cannot get token: %w", err)
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}

	// Reactive retry (401)
	if resp.StatusCode == http.StatusUnauthorized {
		// Drain body to allow connection reuse
		resp.Body.Close()

		slog.Warn("Got 401 Unauthorized, attempting force refresh", "url", req.URL.String())

		token, err = t.Source.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth: force refresh failed: %w", err)
		}

		req2.Header.Set("Authorization", "Bearer "+token.AccessToken)
		return base.RoundTrip(req2)
	}

	return resp, nil
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct and its Header map.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}

// UsageTrackingTransport wraps a RoundTripper and updates the integration's
// last_used_at timestamp on successful requests.
type UsageTrackingTransport struct {
	Base     http.RoundTripper
	Service  *bootstrap.Service
	UserID   string
	Provider string
}

func (t *UsageTrackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)

	// If the request was successful at the transport level, update usage
	// stats asynchronously
	if err == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			updateErr := t.Service.DB.UpdateUser(ctx, t.UserID, map[string]interface{}{
				"integrations." + t.Provider + ".last_used_at": time.Now(),
			})
			if updateErr != nil {
				slog.Warn("Failed to track usage", "provider", t.Provider, "user_id", t.UserID, "error", updateErr)
			}
		}()
	}

	return resp, err
}

// NewHTTPClient creates an HTTP client that automatically handles OAuth.
// Every request carries the client timeout so a stuck provider call fails
// instead of hanging the scheduling chain.
func NewHTTPClient(source TokenSource) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: source},
		Timeout:   30 * time.Second,
	}
}

// NewClientWithUsageTracking creates an HTTP client that automatically
// handles OAuth and tracks usage stats in Firestore.
func NewClientWithUsageTracking(source TokenSource, service *bootstrap.Service, userID, provider string) *http.Client {
	// Stack: Client -> UsageTracking -> OAuth -> Network
	oauthTransport := &Transport{Source: source}

	usageTransport := &UsageTrackingTransport{
		Base:     oauthTransport,
		Service:  service,
		UserID:   userID,
		Provider: provider,
	}

	return &http.Client{
		Transport: usageTransport,
		Timeout:   30 * time.Second,
	}
}
