package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andrewreder/toolfi/go-api/ttlcache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	userAgent      = "ToolFi/0.1.0"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 20

	defaultCacheEntries = 1024
)

// Client is the HTTP plumbing shared by every provider: default headers,
// a token bucket limiter and a bounded TTL response cache keyed by URL.
type Client struct {
	name         string
	baseURL      string
	headers      http.Header
	http         *http.Client
	limiter      *rate.Limiter
	cacheTTL     time.Duration
	cacheEntries int
	log          zerolog.Logger
	now          func() time.Time

	cache *ttlcache.Cache[string, []byte]
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithCacheTTL sets how long successful responses are reused. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithCacheEntries bounds how many responses are kept.
func WithCacheEntries(n int) Option {
	return func(c *Client) { c.cacheEntries = n }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func withHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// NewClient builds a client for the API at baseURL. Provider constructors
// apply their own defaults before opts.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		headers:      http.Header{},
		http:         &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Inf, 0),
		cacheTTL:     time.Minute,
		cacheEntries: defaultCacheEntries,
		log:          zerolog.Nop(),
		now:          time.Now,
	}
	c.headers.Set("User-Agent", userAgent)
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("provider", name).Logger()
	c.cache = ttlcache.New[string, []byte](c.cacheTTL, c.cacheEntries, ttlcache.WithClock(func() time.Time { return c.now() }))
	return c
}

// GetJSON fetches baseURL+path?params and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, useCache bool, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	if useCache {
		if body, ok := c.cache.Get(target); ok {
			return c.decode(body, out)
		}
	}

	body, err := c.fetch(ctx, target)
	if err != nil {
		return err
	}
	if err := c.decode(body, out); err != nil {
		return err
	}
	if useCache && c.cacheTTL > 0 {
		c.cache.Set(target, body)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: wait for rate limiter: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header = c.headers.Clone()

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.name, ctxErr)
		}
		return nil, fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	c.log.Debug().
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("latency", c.now().Sub(start)).
		Msg("upstream request")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", c.name, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{Provider: c.name, StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
	return body, nil
}

func (c *Client) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// upstreamMessage pulls a human message out of a JSON error body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok {
			return s
		}
	}
	return ""
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
