package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/email-sender/internal/email"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox the message is sent from.
	Sender string
}

// Transport sends messages via the Microsoft Graph API using OAuth2
// client credentials authentication.
type Transport struct {
	graphURL   string
	httpClient *http.Client
	token      *tokenSource
}

// New creates a new Transport with the given configuration.
func New(cfg Config) *Transport {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)

	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Transport with custom endpoints and HTTP
// client, used for testing.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Transport {
	return &Transport{
		graphURL:   graphURL,
		httpClient: client,
		token:      newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
	}
}

// Send delivers msg in a single sendMail call.
func (g *Transport) Send(ctx context.Context, msg *email.Message, _ string, to []string) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg, to))
	if err != nil {
		return email.NewTransportError(g.Name(), email.KindRejectedMessage, fmt.Errorf("failed to marshal request body: %w", err))
	}

	token, err := g.token.Token(ctx)
	if err != nil {
		kind := email.KindConnection
		var tokErr *tokenError
		if errors.As(err, &tokErr) && tokErr.statusCode >= 400 && tokErr.statusCode < 500 {
			kind = email.KindAuthentication
		}
		return email.NewTransportError(g.Name(), kind, fmt.Errorf("failed to get access token: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return email.NewTransportError(g.Name(), email.KindConnection, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return email.NewTransportError(g.Name(), email.KindConnection, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		slog.Debug("Graph accepted message", "recipients", len(to))
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	apiErr := &apiError{statusCode: resp.StatusCode, message: string(body)}
	var errResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
		apiErr.code = errResp.Error.Code
		apiErr.message = errResp.Error.Message
	}

	return email.NewTransportError(g.Name(), classify(resp.StatusCode), apiErr)
}

// Name returns the transport name.
func (g *Transport) Name() string {
	return "graph"
}

// apiError is an error answer from the Graph API.
type apiError struct {
	statusCode int
	code       string
	message    string
}

func (e *apiError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classify maps a Graph HTTP status onto a transport error kind.
func classify(statusCode int) email.TransportErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return email.KindAuthentication
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return email.KindConnection
	case statusCode >= 400:
		return email.KindRejectedMessage
	default:
		return email.KindConnection
	}
}
