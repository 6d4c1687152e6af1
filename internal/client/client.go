// Package client calls the engagement HTTP API from external systems.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client posts updates with a project bearer token. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for the server at baseURL, e.g. "https://dash.example.com".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FieldDetail pins a server-side validation failure to a field.
type FieldDetail struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	HTTPStatus int
	Status     string        `json:"status"`
	Message    string        `json:"error"`
	Details    []FieldDetail `json:"details"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if e.Status == "" {
		return fmt.Sprintf("api error (%d): %s", e.HTTPStatus, msg)
	}
	return fmt.Sprintf("api error (%d %s): %s", e.HTTPStatus, e.Status, msg)
}

// PushResult is the server's answer to a push.
type PushResult struct {
	Operation string `json:"operation"`
	ID        string `json:"id,omitempty"`
}

type pushRequest struct {
	Update       map[string]any `json:"update"`
	AlwaysCreate bool           `json:"alwaysCreate"`
}

// PostUpdate pushes one update payload to the token's project.
func (c *Client) PostUpdate(ctx context.Context, token string, payload map[string]any, alwaysCreate bool) (PushResult, error) {
	var out PushResult
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/updates", token, pushRequest{Update: payload, AlwaysCreate: alwaysCreate})
	if err != nil {
		return out, err
	}
	if err := decodeResponse(resp, &out); err != nil {
		return PushResult{}, err
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
