package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultTimeout bounds one upstream fetch.
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 16 << 20
)

// Fetcher loads one page of audit events.
type Fetcher interface {
	Fetch(ctx context.Context, page, size int) (*Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, page, size int) (*Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, page, size int) (*Page, error) {
	return f(ctx, page, size)
}

// Client fetches audit pages from the backend REST endpoint.
type Client struct {
	endpoint  *url.URL
	http      *http.Client
	timeout   time.Duration
	userAgent string
	metrics   *Metrics
}

// Option configures a Client.
type Option func(*Client) error

// NewClient builds a client for endpoint, e.g. http://localhost:8080/api/audit.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("audit: endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("audit: invalid endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("audit: endpoint %q must be absolute", endpoint)
	}
	c := &Client{
		endpoint:  parsed,
		timeout:   DefaultTimeout,
		userAgent: "auditview",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("audit: http client is nil")
		}
		c.http = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("audit: negative timeout %s", d)
		}
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Fetch issues GET {endpoint}?page={page}&size={size}.
func (c *Client) Fetch(ctx context.Context, page, size int) (result *Page, err error) {
	start := time.Now()
	defer func() {
		c.metrics.observeFetch(err, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := *c.endpoint
	q := target.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
			return nil, err
		}
		return nil, &NetworkError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	return DecodePage(body)
}
