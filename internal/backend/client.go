// Package backend calls the downstream translation and avatar API.
//
// Every call is a JSON POST carrying the caller's access token verbatim in
// the Authorization header. Failures are logged and returned; nothing is
// retried. A circuit breaker per [Client] stops calls to a collaborator that
// keeps returning server errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/resilience"
)

// Endpoint paths relative to the base URL.
const (
	PathTranslate    = "/translate"
	PathChangeAvatar = "/change_avatar"
	PathStopAll      = "/stop_all"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
	maxBody        = 1 << 20
)

// ErrInvalidArgument is returned before any request is sent.
var ErrInvalidArgument = errors.New("backend: invalid argument")

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Result is the acknowledgement returned by every endpoint.
type Result struct {
	Topic          string `json:"topic"`
	Result         string `json:"result"`
	MessageID      string `json:"messageId"`
	SequenceNumber string `json:"sequenceNumber"`
}

// TokenSource yields the current access token. It is consulted per request
// so a refreshed token is used as soon as it is available.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to [TokenSource].
type TokenFunc func(ctx context.Context) (string, error)

// AccessToken calls f.
func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a fixed [TokenSource].
type StaticToken string

// AccessToken returns t.
func (t StaticToken) AccessToken(context.Context) (string, error) { return string(t), nil }

// Option is a functional option for [New].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTokenSource sets where the Authorization value comes from.
func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// WithTimeout bounds each request. Ignored with [WithHTTPClient].
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = cb }
}

// Client talks to the downstream API. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	metrics *observe.Metrics
	breaker *resilience.CircuitBreaker
}

// New returns a client for the API rooted at baseURL, e.g.
// "https://abc.execute-api.us-east-1.amazonaws.com/prod".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q is not absolute", ErrInvalidArgument, baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{base: u, timeout: defaultTimeout, tokens: StaticToken("")}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout, Transport: observe.Transport(nil)}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:      "backend " + u.Host,
			IsFailure: IsServerFailure,
		})
	}
	return c, nil
}

// IsServerFailure reports whether err should count against the breaker:
// transport errors and 5xx responses do, client errors and cancellation do
// not.
func IsServerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

type translateRequest struct {
	Message    string `json:"message"`
	Iterations int    `json:"iterations"`
}

type avatarRequest struct {
	Avatar string `json:"avatar"`
}

// Translate submits a finalized transcript for simplification and sign
// animation. iterations is the number of simplification passes.
func (c *Client) Translate(ctx context.Context, message string, iterations int) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("%w: iterations %d is negative", ErrInvalidArgument, iterations)
	}
	return c.post(ctx, PathTranslate, translateRequest{Message: message, Iterations: iterations})
}

// ChangeAvatar switches the signing avatar.
func (c *Client) ChangeAvatar(ctx context.Context, avatar string) (*Result, error) {
	if avatar == "" {
		return nil, fmt.Errorf("%w: empty avatar", ErrInvalidArgument)
	}
	return c.post(ctx, PathChangeAvatar, avatarRequest{Avatar: avatar})
}

// StopAll stops every running animation. The request has an empty body.
func (c *Client) StopAll(ctx context.Context) (*Result, error) {
	return c.post(ctx, PathStopAll, nil)
}

// post sends body (nil for none) to endpoint and decodes the JSON reply.
func (c *Client) post(ctx context.Context, endpoint string, body any) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "backend"+strings.ReplaceAll(endpoint, "/", "."))
	span.SetAttributes(attribute.String("backend.endpoint", endpoint))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	status := "error"
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		r, code, doErr := c.do(ctx, endpoint, body)
		if code != 0 {
			status = strconv.Itoa(code)
		}
		res = r
		return doErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		status = "circuit_open"
	}
	c.metrics.RecordBackendRequest(ctx, endpoint, status, time.Since(start))

	if err != nil {
		observe.Logger(ctx).Warn("backend request failed", "endpoint", endpoint, "status", status, "err", err)
		return nil, fmt.Errorf("backend: %s: %w", endpoint, err)
	}
	observe.Logger(ctx).Debug("backend request completed", "endpoint", endpoint, "result", res.Result, "message_id", res.MessageID)
	return res, nil
}

func (c *Client) do(ctx context.Context, endpoint string, body any) (*Result, int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(endpoint).String(), rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&res); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &res, resp.StatusCode, nil
}
