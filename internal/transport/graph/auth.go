package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const graphScope = "https://graph.microsoft.com/.default"

// expiryMargin is taken off every token lifetime.
const expiryMargin = 5 * time.Minute

// tokenSource fetches client-credentials access tokens and reuses one until
// it is about to expire. Safe for concurrent use.
type tokenSource struct {
	endpoint string
	form     url.Values
	client   *http.Client

	mu      sync.Mutex
	current string
	expiry  time.Time
}

func newTokenSource(endpoint, clientID, clientSecret string, client *http.Client) *tokenSource {
	return &tokenSource{
		endpoint: endpoint,
		form: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
			"scope":         {graphScope},
		},
		client: client,
	}
}

// Token returns the cached token, fetching a new one when none is valid.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" && time.Now().Before(s.expiry) {
		return s.current, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.current = tok.AccessToken
	s.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryMargin)
	return s.current, nil
}

func (s *tokenSource) fetch(ctx context.Context) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(s.form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &tokenError{statusCode: resp.StatusCode, body: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}

// tokenError is a non-200 answer from the token endpoint.
type tokenError struct {
	statusCode int
	body       string
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.statusCode, e.body)
}
