// Package transport is the outbound HTTP client shared by every upstream source.
//
// Each Client wraps a resty client with retry on transient statuses, a token
// bucket limiter and a circuit breaker, so source code only issues requests.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"recon/internal/platform/config"
	"recon/pkg/platform/circuit"
	"recon/pkg/platform/sentinel"
)

// Error kinds reported by Kind.
const (
	KindTimeout     = "Timeout"
	KindConnection  = "Connection"
	KindHTTP        = "HTTP"
	KindCircuitOpen = "CircuitOpen"
)

// retryStatuses are retried by resty before the call is reported as failed.
var retryStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Error describes a failed upstream call.
type Error struct {
	Source string
	Status int
	kind   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: upstream returned status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind classifies the failure for error envelopes.
func (e *Error) Kind() string { return e.kind }

// Retryable reports whether a later attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.kind {
	case KindTimeout, KindConnection, KindCircuitOpen:
		return true
	}
	return retryStatuses[e.Status]
}

// Client issues JSON requests to one upstream API.
type Client struct {
	name    string
	http    *resty.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHeader sets a header on every request, typically an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.http.SetHeader(key, value)
		}
	}
}

// New builds a client for endpoint using the shared source settings.
func New(name string, endpoint config.Endpoint, cfg config.SourcesConfig, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(endpoint.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "recon/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return false
			}
			return retryStatuses[r.StatusCode()]
		})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		name:    name,
		http:    rc,
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuit.New(name,
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(cfg.BreakerCooldown),
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name is the upstream name used in logs and breaker state.
func (c *Client) Name() string {
	return c.name
}

// Breaker exposes the circuit state for health reporting.
func (c *Client) Breaker() *circuit.Breaker {
	return c.breaker
}

// GetJSON issues GET path with query params and decodes a 2xx body into out.
// A 404 is reported as sentinel.ErrNotFound and does not count against the breaker.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues POST path with body encoded as JSON. Status handling matches GetJSON.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	if !c.breaker.Allow() {
		return &Error{Source: c.name, kind: KindCircuitOpen, Err: sentinel.ErrUnavailable}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Source: c.name, kind: KindTimeout, Err: err}
	}

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.recordFailure(ctx)
		return &Error{Source: c.name, kind: classify(ctx, err), Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusNotFound:
		c.breaker.RecordSuccess()
		return fmt.Errorf("%s: %w", c.name, sentinel.ErrNotFound)
	case status >= 500 || status == http.StatusTooManyRequests:
		c.recordFailure(ctx)
		return &Error{Source: c.name, Status: status, kind: KindHTTP}
	case status >= 400:
		c.breaker.RecordSuccess()
		return &Error{Source: c.name, Status: status, kind: KindHTTP}
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "upstream circuit closed", "source", c.name)
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "upstream circuit opened", "source", c.name)
	}
}

func classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
