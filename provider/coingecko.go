package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coingeckoBaseURL    = "https://api.coingecko.com/api/v3"
	coingeckoProBaseURL = "https://pro-api.coingecko.com/api/v3"
)

// CoinGecko quotes token prices, either by contract address on a chain or
// by CoinGecko coin id (bitcoin, ethereum, ...).
type CoinGecko struct {
	client *Client
}

// NewCoinGecko returns a CoinGecko provider. A non-empty apiKey switches to
// the pro API.
func NewCoinGecko(apiKey string, opts ...Option) *CoinGecko {
	base := []Option{WithCacheTTL(time.Minute), WithRateLimit(0.5, 5)}
	baseURL := coingeckoBaseURL
	if apiKey != "" {
		baseURL = coingeckoProBaseURL
		base = append(base, withHeader("x-cg-pro-api-key", apiKey), WithRateLimit(8, 20))
	}
	return &CoinGecko{client: NewClient("coingecko", baseURL, append(base, opts...)...)}
}

func (c *CoinGecko) Validate(q Query) error {
	if q.Get("coin") != "" {
		return nil
	}
	if err := requireParams(q, "chain", "address"); err != nil {
		return badQuery("either coin, or chain and address, is required")
	}
	if _, ok := lookupChain(coingeckoPlatforms, q.Get("chain")); !ok {
		return badQuery("unsupported chain %q", q.Get("chain"))
	}
	if _, err := boolParam(q, "include_market_cap", false); err != nil {
		return err
	}
	return nil
}

func (c *CoinGecko) Fetch(ctx context.Context, q Query) (any, error) {
	if err := c.Validate(q); err != nil {
		return nil, err
	}
	if coin := q.Get("coin"); coin != "" {
		return c.coinPrice(ctx, strings.ToLower(coin))
	}
	withCap, _ := boolParam(q, "include_market_cap", false)
	return c.tokenPrice(ctx, q.Get("chain"), q.Get("address"), withCap)
}

type priceQuote map[string]decimal.NullDecimal

func (p priceQuote) get(key string) (decimal.Decimal, bool) {
	v, ok := p[key]
	if !ok || !v.Valid {
		return decimal.Zero, false
	}
	return v.Decimal, true
}

func (c *CoinGecko) tokenPrice(ctx context.Context, chain, address string, withCap bool) (map[string]any, error) {
	platform, _ := lookupChain(coingeckoPlatforms, chain)
	addr := strings.ToLower(address)
	params := url.Values{
		"contract_addresses":  {addr},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
	}
	if withCap {
		params.Set("include_market_cap", "true")
	}

	var resp map[string]priceQuote
	if err := c.client.GetJSON(ctx, "/simple/token_price/"+platform, params, true, &resp); err != nil {
		return nil, err
	}
	quote, ok := resp[addr]
	if !ok || len(quote) == 0 {
		return nil, fmt.Errorf("coingecko: token %s on %s: %w", addr, chain, ErrNotFound)
	}

	usd, _ := quote.get("usd")
	out := map[string]any{
		"token": map[string]any{"address": addr, "chain": chain},
		"price": map[string]any{
			"usd":        usd.String(),
			"change_24h": changeString(quote),
		},
	}
	if mc, ok := quote.get("usd_market_cap"); withCap && ok {
		out["market_cap_usd"] = mc.String()
	}
	return out, nil
}

func (c *CoinGecko) coinPrice(ctx context.Context, coin string) (map[string]any, error) {
	params := url.Values{
		"ids":                 {coin},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
	}
	var resp map[string]priceQuote
	if err := c.client.GetJSON(ctx, "/simple/price", params, true, &resp); err != nil {
		return nil, err
	}
	quote, ok := resp[coin]
	if !ok || len(quote) == 0 {
		return nil, fmt.Errorf("coingecko: coin %s: %w", coin, ErrNotFound)
	}
	usd, _ := quote.get("usd")
	return map[string]any{
		"coin":       coin,
		"price_usd":  usd.String(),
		"change_24h": changeString(quote),
	}, nil
}

func changeString(q priceQuote) any {
	change, ok := q.get("usd_24h_change")
	if !ok {
		return nil
	}
	return change.StringFixed(2) + "%"
}

// Trending lists the coins most searched on CoinGecko, at most ten.
func (c *CoinGecko) Trending(ctx context.Context) (map[string]any, error) {
	var resp struct {
		Coins []struct {
			Item struct {
				ID            string              `json:"id"`
				Name          string              `json:"name"`
				Symbol        string              `json:"symbol"`
				MarketCapRank *int                `json:"market_cap_rank"`
				PriceBTC      decimal.NullDecimal `json:"price_btc"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.client.GetJSON(ctx, "/search/trending", nil, true, &resp); err != nil {
		return nil, err
	}
	coins := resp.Coins
	if len(coins) > 10 {
		coins = coins[:10]
	}
	out := make([]map[string]any, 0, len(coins))
	for _, coin := range coins {
		out = append(out, map[string]any{
			"id":              coin.Item.ID,
			"name":            coin.Item.Name,
			"symbol":          coin.Item.Symbol,
			"market_cap_rank": coin.Item.MarketCapRank,
			"price_btc":       nullableString(coin.Item.PriceBTC),
		})
	}
	return map[string]any{"trending": out}, nil
}
