package httputil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseErrorResponse_Success(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Body:       http.NoBody,
	}

	err := ParseErrorResponse(resp)
	if err != nil {
		t.Errorf("Expected nil error for 200 response, got: %v", err)
	}
}

func TestParseErrorResponse_Error(t *testing.T) {
	body := `{"errors": [{"errorType": "invalid_date_range"}]}`
	resp := &http.Response{
		StatusCode: 400,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    httptest.NewRequest("GET", "https://api.example.com/sleep/date/2024-03-05.json", nil),
	}

	err := ParseErrorResponse(resp)
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}

	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("Expected *HTTPError, got %T", err)
	}

	if httpErr.StatusCode != 400 {
		t.Errorf("Expected status 400, got %d", httpErr.StatusCode)
	}

	if !strings.Contains(httpErr.Body, "invalid_date_range") {
		t.Errorf("Expected body to contain error message, got: %s", httpErr.Body)
	}

	if !strings.Contains(httpErr.Error(), "invalid_date_range") {
		t.Errorf("Expected Error() to contain body, got: %s", httpErr.Error())
	}
}

func TestParseErrorResponse_BodyRewrap(t *testing.T) {
	body := `{"error": "test"}`
	resp := &http.Response{
		StatusCode: 500,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    httptest.NewRequest("GET", "https://api.example.com/test", nil),
	}

	_ = ParseErrorResponse(resp)

	// Body should be re-wrapped and readable
	rewrappedBody := make([]byte, 100)
	n, _ := resp.Body.Read(rewrappedBody)
	if string(rewrappedBody[:n]) != body {
		t.Errorf("Body not properly re-wrapped, got: %s", string(rewrappedBody[:n]))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit is retryable", &HTTPError{StatusCode: 429}, true},
		{"server error is retryable", &HTTPError{StatusCode: 503}, true},
		{"bad request is not retryable", &HTTPError{StatusCode: 400}, false},
		{"not found is not retryable", &HTTPError{StatusCode: 404}, false},
		{"wrapped http error", fmt.Errorf("fetch: %w", &HTTPError{StatusCode: 502}), true},
		{"transport error is retryable", fmt.Errorf("dial tcp: timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if truncate(short, 10) != "hello" {
		t.Error("Short string should not be truncated")
	}

	long := strings.Repeat("a", 600)
	truncated := truncate(long, 500)
	if len(truncated) != 503 { // 500 + "..."
		t.Errorf("Expected length 503, got %d", len(truncated))
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Error("Truncated string should end with ...")
	}
}
