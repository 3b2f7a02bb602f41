package sillapi

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
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/codegouvfr/sill-web/internal/platform/correlation"
	"github.com/codegouvfr/sill-web/internal/platform/retry"
)

const maxResponseBytes = 8 << 20

// Metrics observes backend traffic. *metrics.BackendMetrics implements it.
type Metrics interface {
	RecordCall(procedure string, d time.Duration, err error)
	RecordRetry(procedure string)
	RecordBreakerState(state string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCall(string, time.Duration, error) {}
func (noopMetrics) RecordRetry(string)                      {}
func (noopMetrics) RecordBreakerState(string)               {}

// APIError is an error payload returned by the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sill api: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("sill api: %s (status %d)", e.Message, e.StatusCode)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

var DefaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   200 * time.Millisecond,
	RateLimitBackoff: 2 * time.Second,
	MaxBackoff:       5 * time.Second,
}

// Client talks to the SILL API over its tRPC HTTP binding: queries are
// GET {base}/{procedure}?input=<json>, mutations POST a JSON body.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
	policy     retry.Policy
	metrics    Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a client. All calls share one circuit breaker: 60%
// failure rate over at least 5 calls in 10s opens it for 30s.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		policy:     DefaultRetryPolicy,
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "sill-api",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			c.metrics.RecordBreakerState(e.NewState.String())
		}).
		Build()

	return c
}

// BreakerState exposes the circuit breaker state for readiness checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
		Data    *struct {
			Code string `json:"code"`
		} `json:"data"`
	} `json:"error"`
}

func (c *Client) query(ctx context.Context, token, procedure string, input, out any) error {
	p := c.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.metrics.RecordRetry(procedure)
		slog.WarnContext(ctx, "Retrying SILL API query",
			"procedure", procedure, "attempt", attempt, "backoff", backoff, "error", err)
	}

	err := retry.DoVoid(ctx, p, classify, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, token, procedure, input, out)
	})
	if perm, ok := errors.AsType[*retry.PermanentError](err); ok {
		return perm.Err
	}
	return err
}

func (c *Client) mutate(ctx context.Context, token, procedure string, input, out any) error {
	return c.do(ctx, http.MethodPost, token, procedure, input, out)
}

func classify(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if apiErr, ok := errors.AsType[*APIError](err); ok {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case apiErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if _, ok := errors.AsType[*json.SyntaxError](err); ok {
		return retry.Stop
	}
	return retry.Retry
}

func (c *Client) do(ctx context.Context, method, token, procedure string, input, out any) (err error) {
	if !c.breaker.TryAcquirePermit() {
		return fmt.Errorf("sill api %s: %w", procedure, circuitbreaker.ErrOpen)
	}

	start := time.Now()
	defer func() {
		c.metrics.RecordCall(procedure, time.Since(start), err)
		if err == nil || !breakerRelevant(err) {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordError(err)
		}
	}()

	req, err := c.newRequest(ctx, method, token, procedure, input)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sill api %s: %w", procedure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("sill api %s: failed to read response: %w", procedure, err)
	}

	return decode(resp.StatusCode, body, out)
}

// breakerRelevant keeps client-side mistakes (4xx) from tripping the breaker.
func breakerRelevant(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if apiErr, ok := errors.AsType[*APIError](err); ok {
		return apiErr.Temporary()
	}
	return true
}

func (c *Client) newRequest(ctx context.Context, method, token, procedure string, input any) (*http.Request, error) {
	endpoint := c.baseURL + "/" + procedure

	var body io.Reader
	if input != nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("sill api %s: failed to encode input: %w", procedure, err)
		}
		if method == http.MethodGet {
			endpoint += "?" + url.Values{"input": {string(payload)}}.Encode()
		} else {
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("sill api %s: %w", procedure, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.HeaderName, id)
	}
	return req, nil
}

func decode(status int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Message: http.StatusText(status)}
		}
		return fmt.Errorf("sill api: invalid response: %w", err)
	}

	if env.Error != nil || status >= 400 {
		apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
		if env.Error != nil {
			apiErr.Message = env.Error.Message
			if env.Error.Data != nil && env.Error.Data.Code != "" {
				apiErr.Code = env.Error.Data.Code
			} else if env.Error.Code != nil {
				apiErr.Code = fmt.Sprint(env.Error.Code)
			}
		}
		if apiErr.StatusCode < 400 {
			apiErr.StatusCode = http.StatusInternalServerError
		}
		return apiErr
	}

	if env.Result == nil {
		return errors.New("sill api: response has neither result nor error")
	}
	if out == nil || len(env.Result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result.Data, out); err != nil {
		return fmt.Errorf("sill api: failed to decode result: %w", err)
	}
	return nil
}
