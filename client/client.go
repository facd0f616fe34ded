// Package client provides a typed Go SDK for the kpfed REST API.
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

// Client is the top-level kpfed API client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	Providers *ProviderService
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout. Expansions against slow
// providers can take minutes, so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a kpfed client for the given base URL (e.g. "http://localhost:3030").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}

	c.Providers = &ProviderService{c: c}

	return c
}

// Health returns the liveness check response.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Ready returns the readiness check response. A server that is not ready
// answers 503 with the same body, which surfaces as an *APIError.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	var resp ReadyResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ready", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Expand runs one expansion. When the server reports inconsistent bindings
// the returned error is an *APIError whose Partial holds the graph built so far.
func (c *Client) Expand(ctx context.Context, req *ExpandRequest) (*ExpandResponse, error) {
	var resp ExpandResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/expand", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// do executes an HTTP request and decodes the JSON response.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
