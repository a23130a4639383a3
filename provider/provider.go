// Package provider fetches the third-party crypto data served behind paid
// endpoints: GoPlus, CoinGecko, DefiLlama, Li.Fi, DexScreener and Brave.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBadQuery means the request cannot be answered as asked. It is
	// detected before any payment is looked at.
	ErrBadQuery = errors.New("bad query")
	// ErrRateLimited is returned when the upstream answers 429.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
	// ErrNotFound means the upstream knows nothing about the subject.
	ErrNotFound = errors.New("not found upstream")
	// ErrUnavailable means the provider is not configured on this server.
	ErrUnavailable = errors.New("provider unavailable")
)

// APIError is a non-2xx upstream response other than 429.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Query holds the request parameters of a provider call.
type Query map[string]string

// Get returns the trimmed value of key.
func (q Query) Get(key string) string {
	return strings.TrimSpace(q[key])
}

// Provider answers queries for one paid endpoint.
type Provider interface {
	// Validate rejects unanswerable queries with ErrBadQuery.
	Validate(q Query) error
	Fetch(ctx context.Context, q Query) (any, error)
}

func badQuery(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadQuery, fmt.Sprintf(format, args...))
}

func requireParams(q Query, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if q.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return badQuery("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func boolParam(q Query, key string, def bool) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badQuery("%s must be a boolean", key)
	}
	return v, nil
}

func intParam(q Query, key string, def, min, max int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, badQuery("%s must be an integer in [%d, %d]", key, min, max)
	}
	return v, nil
}
