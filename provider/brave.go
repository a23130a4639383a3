package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const braveBaseURL = "https://api.search.brave.com"

// Brave runs web searches through the Brave Search API.
type Brave struct {
	client     *Client
	configured bool
}

// NewBrave returns a Brave web search provider. Without an apiKey every
// fetch fails with ErrUnavailable.
func NewBrave(apiKey string, opts ...Option) *Brave {
	base := []Option{WithCacheTTL(10 * time.Minute), WithRateLimit(1, 1)}
	if apiKey != "" {
		base = append(base, withHeader("X-Subscription-Token", apiKey))
	}
	return &Brave{
		client:     NewClient("brave", braveBaseURL, append(base, opts...)...),
		configured: apiKey != "",
	}
}

func (b *Brave) Validate(q Query) error {
	if err := requireParams(q, "q"); err != nil {
		return err
	}
	_, err := intParam(q, "count", 10, 1, 20)
	return err
}

func (b *Brave) Fetch(ctx context.Context, q Query) (any, error) {
	if err := b.Validate(q); err != nil {
		return nil, err
	}
	if !b.configured {
		return nil, fmt.Errorf("brave: no API key: %w", ErrUnavailable)
	}
	count, _ := intParam(q, "count", 10, 1, 20)

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	params := url.Values{"q": {q.Get("q")}, "count": {strconv.Itoa(count)}}
	if err := b.client.GetJSON(ctx, "/res/v1/web/search", params, true, &resp); err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, map[string]any{
			"title":       r.Title,
			"url":         r.URL,
			"description": r.Description,
			"age":         r.Age,
		})
	}
	return map[string]any{"query": q.Get("q"), "count": len(results), "results": results}, nil
}
