// Package trapi is an HTTP client for knowledge provider TRAPI endpoints.
package trapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
)

var tracer = otel.Tracer("kpfed.trapi")

// Circuit breaker defaults.
const (
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 4096

// Client sends TRAPI requests to knowledge providers. Each provider gets its
// own circuit breaker so one failing provider does not slow down the others.
type Client struct {
	httpClient *http.Client
	log        *logrus.Logger

	breakerFailures uint32
	breakerCooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Per-call deadlines come from the context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker sets how many consecutive failures open a provider's breaker
// and how long it stays open.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = failures
		c.breakerCooldown = cooldown
	}
}

// New creates a provider client.
func New(log *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		log:             log,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

// Query posts q to {baseURL}/query.
func (c *Client) Query(ctx context.Context, provider, baseURL string, q *models.Query) (*models.Response, error) {
	ctx, span := tracer.Start(ctx, "trapi.Query",
		trace.WithAttributes(
			attribute.String("kp.provider", provider),
			attribute.String("kp.url", baseURL),
		),
	)
	defer span.End()

	var resp models.Response
	if err := c.do(ctx, provider, http.MethodPost, joinURL(baseURL, "/query"), q, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetStatus(codes.Ok, "")

	return &resp, nil
}

// MetaKnowledgeGraph fetches {baseURL}/meta_knowledge_graph.
func (c *Client) MetaKnowledgeGraph(ctx context.Context, provider, baseURL string) (*models.MetaKnowledgeGraph, error) {
	ctx, span := tracer.Start(ctx, "trapi.MetaKnowledgeGraph",
		trace.WithAttributes(attribute.String("kp.provider", provider)),
	)
	defer span.End()

	var meta models.MetaKnowledgeGraph
	if err := c.do(ctx, provider, http.MethodGet, joinURL(baseURL, "/meta_knowledge_graph"), nil, &meta); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	if meta.Nodes == nil {
		return nil, fmt.Errorf("%w: %s returned a meta knowledge graph without nodes", models.ErrProviderComm, provider)
	}

	return &meta, nil
}

// do runs one request through the provider's breaker and decodes the JSON body.
func (c *Client) do(ctx context.Context, provider, method, url string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, err = c.breaker(provider).Execute(func() (any, error) {
		return nil, c.roundTrip(req, provider, result)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: %w", models.ErrProviderComm, provider, err)
	default:
		return err
	}
}

func (c *Client) roundTrip(req *http.Request, provider string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", models.ErrProviderComm, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body close error is not actionable

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)

		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode response: %w", models.ErrProviderComm, err)
	}

	return nil
}

func (c *Client) breaker(provider string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[provider]; ok {
		return cb
	}

	failures := c.breakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not the provider's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("trapi.breaker_state")
			metrics.ProviderBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})
	c.breakers[provider] = cb

	return cb
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
