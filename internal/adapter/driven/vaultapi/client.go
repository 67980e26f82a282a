// Package vaultapi implements the VaultAPI port over the remote vault's JSON
// REST API.
package vaultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/uuid"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
	"github.com/ericfisherdev/vaultsync/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.VaultAPI = (*Client)(nil)

// DefaultTimeout is the per-call network timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// SessionCookie seeds the cookie jar, in "name=value" form. Optional.
	SessionCookie string
}

// Client implements driven.VaultAPI. Each Client owns its HTTP client and
// cookie jar; there is no process-wide default state.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

// NewClient creates a vault API client with the following transport stack:
//  1. httpcache (ETag/Cache-Control conditional request caching)
//  2. go-github-ratelimit (sleeps on 429/Retry-After before retrying)
//  3. a per-client cookie jar carrying the session cookie
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if opts.SessionCookie != "" {
		cookies, err := http.ParseCookie(opts.SessionCookie)
		if err != nil {
			return nil, fmt.Errorf("parse session cookie: %w", err)
		}
		jar.SetCookies(base, cookies)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	httpClient := github_ratelimit.NewClient(cacheTransport)
	httpClient.Timeout = timeout
	httpClient.Jar = jar

	return &Client{http: httpClient, baseURL: base}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient, baseURL: base}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL %q: scheme and host are required", raw)
	}
	return u, nil
}

// call describes one remote request.
type call struct {
	method   string
	path     string
	endpoint string // Low-cardinality label for metrics and logs.
	query    url.Values
	body     any
	userID   int64 // Mirrored in X-User-ID when positive.
	// noStore keeps responses carrying secrets or identity out of the cache.
	noStore bool
}

// do performs the request and folds every result into a TransportOutcome.
func (c *Client) do(ctx context.Context, cl call) TransportOutcome {
	start := time.Now()
	requestID := uuid.NewString()

	outcome := c.roundTrip(ctx, cl, requestID)

	metrics.VaultAPIRequestsTotal.WithLabelValues(cl.method, cl.endpoint, outcome.Kind.String()).Inc()
	metrics.VaultAPIRequestDuration.WithLabelValues(cl.method, cl.endpoint).Observe(time.Since(start).Seconds())

	slog.Debug("vault api call",
		"method", cl.method,
		"endpoint", cl.endpoint,
		"status", outcome.Status,
		"outcome", outcome.Kind.String(),
		"request_id", requestID,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return outcome
}

func (c *Client) roundTrip(ctx context.Context, cl call, requestID string) TransportOutcome {
	u := c.baseURL.JoinPath(cl.path)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return localFailure(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return localFailure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", requestID)
	if cl.userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(cl.userID, 10))
	}
	if cl.noStore {
		req.Header.Set("Cache-Control", "no-store")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return noResponse(fmt.Errorf("%s %s: %w", cl.method, cl.endpoint, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return noResponse(fmt.Errorf("read %s response: %w", cl.endpoint, err))
	}

	return decodeOutcome(resp.StatusCode, raw)
}

// decodeJSON unmarshals an OK outcome's payload into v. A null or missing
// payload leaves v untouched.
func decodeJSON(o TransportOutcome, v any) error {
	if !present(o.Data) {
		return nil
	}
	if err := json.Unmarshal(o.Data, v); err != nil {
		return model.WrapError(model.CodeInvalidResponse, "invalid response from server", fmt.Errorf("decode payload: %w", err))
	}
	return nil
}
