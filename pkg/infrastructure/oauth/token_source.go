package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vitalsync/agent/pkg/bootstrap"
)

// nonRefreshableProviders are providers whose tokens don't expire and don't
// use refresh tokens (the wellbeing export API issues a device-scoped static
// token). For these we skip the refresh-token requirement and never attempt
// token refresh.
var nonRefreshableProviders = map[string]bool{
	"wellbeing": true,
}

// tokenURLs maps a provider to its OAuth token endpoint.
var tokenURLs = map[string]string{
	"fitbit":    "https://api.fitbit.com/oauth2/token",
	"googlefit": "https://oauth2.googleapis.com/token",
}

// basicAuthProviders send client credentials via Basic Auth header instead
// of the form body.
var basicAuthProviders = map[string]bool{
	"fitbit": true,
}

// Token represents the OAuth token structure we care about
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*Token, error)
	ForceRefresh(context.Context) (*Token, error)
}

// FirestoreTokenSource reads from Firestore and refreshes if necessary.
type FirestoreTokenSource struct {
	svc      *bootstrap.Service
	userID   string
	provider string
	mu       sync.Mutex
}

func NewFirestoreTokenSource(svc *bootstrap.Service, userID, provider string) *FirestoreTokenSource {
	return &FirestoreTokenSource{
		svc:      svc,
		userID:   userID,
		provider: provider,
	}
}

// ForceRefresh forcibly refreshes the token regardless of expiry.
func (s *FirestoreTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Non-refreshable providers cannot be refreshed; the user must re-connect.
	if nonRefreshableProviders[s.provider] {
		return nil, fmt.Errorf("%s tokens cannot be refreshed; user must re-connect", s.provider)
	}

	// Fetch the refresh token explicitly from the DB again to be safe
	user, err := s.svc.DB.GetUser(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	integration := user.Integration(s.provider)
	if integration == nil || !integration.Enabled {
		return nil, fmt.Errorf("%s not linked/enabled", s.provider)
	}
	if integration.RefreshToken == "" {
		return nil, fmt.Errorf("missing refresh token for %s", s.provider)
	}

	return s.refreshToken(ctx, integration.RefreshToken)
}

// Token returns a token, refreshing it if necessary.
func (s *FirestoreTokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.svc.DB.GetUser(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	integration := user.Integration(s.provider)
	if integration == nil || !integration.Enabled {
		return nil, fmt.Errorf("%s not linked/enabled", s.provider)
	}
	if integration.AccessToken == "" {
		return nil, fmt.Errorf("missing access token for %s", s.provider)
	}

	// Non-refreshable providers: return the token directly, no refresh
	// token or expiry check needed.
	if nonRefreshableProviders[s.provider] {
		return &Token{
			AccessToken: integration.AccessToken,
			Expiry:      integration.ExpiresAt,
		}, nil
	}

	if integration.RefreshToken == "" {
		return nil, fmt.Errorf("missing refresh token for %s", s.provider)
	}

	// Check Expiry (Proactive Refresh)
	// Refresh if expired or expiring in the next minute
	if !integration.ExpiresAt.IsZero() && time.Now().Add(1*time.Minute).After(integration.ExpiresAt) {
		return s.refreshToken(ctx, integration.RefreshToken)
	}

	return &Token{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
		Expiry:       integration.ExpiresAt,
	}, nil
}

// refreshToken performs the HTTP exchange to get a new token & updates Firestore
func (s *FirestoreTokenSource) refreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	clientID, err := s.getSecret("client-id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := s.getSecret("client-secret")
	if err != nil {
		return nil, err
	}

	tokenURL, ok := tokenURLs[s.provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider for refresh: %s", s.provider)
	}

	data := url.Values{}
	if !basicAuthProviders[s.provider] {
		data.Set("client_id", clientID)
		data.Set("client_secret", clientSecret)
	}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if basicAuthProviders[s.provider] {
		req.SetBasicAuth(clientID, clientSecret)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("refresh failed with status: %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	newExpiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		newExpiry = time.Unix(result.ExpiresAt, 0)
	}

	// Update Firestore using dotted paths to avoid overwriting the entire
	// integration sub-object (which would wipe enabled, etc.)
	prefix := "integrations." + s.provider + "."
	updateData := map[string]interface{}{
		prefix + "access_token": result.AccessToken,
		prefix + "expires_at":   newExpiry,
		prefix + "last_used_at": time.Now(),
	}
	// Only update refresh_token if the provider returned a new one.
	// Google doesn't rotate refresh tokens on refresh, so writing the empty
	// response value would wipe the stored token.
	if result.RefreshToken != "" {
		updateData[prefix+"refresh_token"] = result.RefreshToken
	}

	if err := s.svc.DB.UpdateUser(ctx, s.userID, updateData); err != nil {
		return nil, fmt.Errorf("failed to persist new tokens: %w", err)
	}

	// Preserve the original refresh token if the provider didn't return a new one
	newRefreshToken := result.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	return &Token{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefreshToken,
		Expiry:       newExpiry,
	}, nil
}

func (s *FirestoreTokenSource) getSecret(keyType string) (string, error) {
	// Environment variables use uppercase with underscores
	// e.g., "fitbit-client-id" becomes "FITBIT_CLIENT_ID"
	envVarName := strings.ToUpper(strings.ReplaceAll(s.provider, "-", "_")) + "_" + strings.ToUpper(strings.ReplaceAll(keyType, "-", "_"))

	value := os.Getenv(envVarName)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not found", envVarName)
	}

	return value, nil
}
