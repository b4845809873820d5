package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// staticTokenSource is a TokenSource for tests.
type staticTokenSource struct {
	token        *Token
	refreshed    *Token
	tokenErr     error
	refreshCalls int
}

func (s *staticTokenSource) Token(ctx context.Context) (*Token, error) {
	return s.token, s.tokenErr
}

func (s *staticTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.refreshCalls++
	if s.refreshed == nil {
		return nil, fmt.Errorf("no refresh available")
	}
	return s.refreshed, nil
}

func TestTransportAddsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := &staticTokenSource{token: &Token{AccessToken: "abc123"}}
	client := &http.Client{Transport: &Transport{Source: source}}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer abc123" {
		t.Errorf("expected Bearer abc123, got %q", gotAuth)
	}
}

func TestTransportForceRefreshesOn401(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := &staticTokenSource{
		token:     &Token{AccessToken: "stale"},
		refreshed: &Token{AccessToken: "fresh"},
	}
	client := &http.Client{Transport: &Transport{Source: source}}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d", resp.StatusCode)
	}
	if source.refreshCalls != 1 {
		t.Errorf("expected one force refresh, got %d", source.refreshCalls)
	}
	if len(seen) != 2 || seen[0] != "Bearer stale" || seen[1] != "Bearer fresh" {
		t.Errorf("unexpected auth sequence: %v", seen)
	}
}

func TestTransportRefreshFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	source := &staticTokenSource{token: &Token{AccessToken: "stale"}}
	client := &http.Client{Transport: &Transport{Source: source}}

	_, err := client.Get(server.URL)
	if err == nil {
		t.Fatal("expected error when force refresh fails")
	}
}

func TestTransportTokenErrorAbortsRequest(t *testing.T) {
	reached := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	defer server.Close()

	source := &staticTokenSource{tokenErr: fmt.Errorf("store offline")}
	client := &http.Client{Transport: &Transport{Source: source}}

	_, err := client.Get(server.URL)
	if err == nil {
		t.Fatal("expected error when no token is available")
	}
	if reached {
		t.Error("request must not reach the provider without a token")
	}
}
