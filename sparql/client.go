// Package sparql implements the transport client for SPARQL 1.1 Protocol
// endpoints: query submission with per-endpoint auth, per-request timeout,
// bounded retry, and structured error classification.
//
// This is the only package in the module that performs I/O against the
// remote endpoint. Every probe above it is a pure decision procedure over
// the client's results.
package sparql

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
	"github.com/c360/skosprobe/pkg/retry"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 250 * time.Millisecond

	// maxResponseBytes caps how much of a response body is read. Probe
	// queries are all LIMIT-bounded, so anything larger is not a result
	// set we asked for.
	maxResponseBytes = 8 << 20
)

// Options control a single request.
type Options struct {
	Timeout    time.Duration // per-request deadline; 0 means the client default
	MaxRetries int           // additional attempts for network/timeout failures
}

// DefaultOptions returns the interactive-call defaults.
func DefaultOptions() Options {
	return Options{Timeout: defaultTimeout, MaxRetries: 1}
}

// Client issues SPARQL queries over HTTP. Safe for concurrent use.
type Client struct {
	http       *http.Client
	logger     *slog.Logger
	origin     string
	retryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithOrigin enables CORS parity checking. The client sends origin as the
// Origin header and classifies responses a browser at that origin could not
// read as CORS-blocked, so the probe reports what the UI will actually
// experience.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) { c.origin = origin }
}

// WithRetryDelay overrides the fixed delay between retry attempts.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient creates a transport client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:       &http.Client{},
		logger:     slog.Default().With("component", "sparql"),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select executes a query and returns parsed results. Failures are always
// *errors.TransportError; network and timeout kinds are retried up to
// opts.MaxRetries with a fixed short delay.
func (c *Client) Select(ctx context.Context, ep endpoint.Endpoint, query string, opts Options) (*Results, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	cfg := retry.Config{
		MaxRetries:  opts.MaxRetries,
		Delay:       c.retryDelay,
		ShouldRetry: errors.IsRetryable,
	}

	return retry.DoWithResult(ctx, cfg, func() (*Results, error) {
		res, err := c.send(ctx, ep, query, opts.Timeout)
		if err != nil {
			c.logger.Debug("query failed",
				"endpoint", ep.ID,
				"error", err)
		}
		return res, err
	})
}

func (c *Client) send(ctx context.Context, ep endpoint.Endpoint, query string, timeout time.Duration) (*Results, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Network(err, ep.URL, "send")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	ep.ApplyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyRequestError(err, ep.URL)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if c.origin != "" && !corsReadable(resp, c.origin) {
		return nil, errors.CORSBlocked(ep.URL, "send")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)) //nolint:errcheck // drain for reuse
		return nil, errors.HTTPStatus(resp.StatusCode, ep.URL, "send")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyRequestError(err, ep.URL)
	}

	return parseResults(body, ep.URL, "send")
}

// classifyRequestError maps Go HTTP client failures to the transport
// taxonomy: deadline expiry is a timeout, everything else that prevented a
// response is a network failure.
func classifyRequestError(err error, endpointURL string) *errors.TransportError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(err, endpointURL, "send")
	}
	var ue *url.Error
	if stderrors.As(err, &ue) && ue.Timeout() {
		return errors.Timeout(err, endpointURL, "send")
	}
	return errors.Network(err, endpointURL, "send")
}

// corsReadable reports whether a browser at origin would be allowed to read
// the response. A missing or mismatched Access-Control-Allow-Origin header
// blocks the read regardless of status code.
func corsReadable(resp *http.Response, origin string) bool {
	allow := resp.Header.Get("Access-Control-Allow-Origin")
	return allow == "*" || allow == origin
}
