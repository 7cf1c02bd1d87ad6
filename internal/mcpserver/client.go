package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the signing coordinator.
type Config struct {
	APIURL         string // Base URL, e.g. "http://localhost:8080"
	CoordinatorKey string // Coordinator bearer key; empty in open development setups
}

// CoordinatorClient is a pure HTTP client for the coordinator REST API.
type CoordinatorClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewCoordinatorClient creates a new client for the coordinator API.
func NewCoordinatorClient(cfg Config) *CoordinatorClient {
	return &CoordinatorClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the coordinator.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the coordinator and returns the response body.
func (c *CoordinatorClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.CoordinatorKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.CoordinatorKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CreateSessionRequest mirrors the coordinator's session creation body.
type CreateSessionRequest struct {
	PIN                  string   `json:"pin,omitempty"`
	Label                string   `json:"label,omitempty"`
	Threshold            int      `json:"threshold"`
	EligiblePublicKeys   []string `json:"eligiblePublicKeys"`
	ExpectedParticipants int      `json:"expectedParticipants,omitempty"`
	TimeoutSeconds       int      `json:"timeoutSeconds,omitempty"`
}

// CreateSession opens a new signing session.
func (c *CoordinatorClient) CreateSession(ctx context.Context, req CreateSessionRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions", nil, req)
}

// GetSession returns the current snapshot of one session.
func (c *CoordinatorClient) GetSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, nil)
}

// ListSessions returns all live sessions.
func (c *CoordinatorClient) ListSessions(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions", nil, nil)
}

// InjectTransaction hands a frozen transaction to a waiting session.
func (c *CoordinatorClient) InjectTransaction(ctx context.Context, sessionID, txBase64 string, metadata map[string]string, contractABI string) (json.RawMessage, error) {
	body := map[string]any{
		"transactionBase64": txBase64,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	if contractABI != "" {
		body["contractAbi"] = contractABI
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/transaction", nil, body)
}

// CancelSession terminates a session before completion.
func (c *CoordinatorClient) CancelSession(ctx context.Context, sessionID, reason string) (json.RawMessage, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/cancel", nil, body)
}

// SessionJournal returns the audit trail for one session, newest first.
func (c *CoordinatorClient) SessionJournal(ctx context.Context, sessionID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/journal", q, nil)
}

// RecentJournal returns the most recent audit entries across all sessions.
func (c *CoordinatorClient) RecentJournal(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/journal", q, nil)
}
