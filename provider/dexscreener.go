package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const dexscreenerBaseURL = "https://api.dexscreener.com"

// DexScreener searches DEX trading pairs by token name, symbol or address.
type DexScreener struct {
	client *Client
}

// NewDexScreener returns a DexScreener pair search provider.
func NewDexScreener(opts ...Option) *DexScreener {
	base := []Option{WithCacheTTL(30 * time.Second), WithRateLimit(5, 10)}
	return &DexScreener{client: NewClient("dexscreener", dexscreenerBaseURL, append(base, opts...)...)}
}

func (d *DexScreener) Validate(q Query) error {
	if err := requireParams(q, "q"); err != nil {
		return err
	}
	_, err := intParam(q, "limit", 10, 1, 50)
	return err
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUSD  decimal.NullDecimal `json:"priceUsd"`
	Liquidity struct {
		USD decimal.NullDecimal `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"priceChange"`
	FDV decimal.NullDecimal `json:"fdv"`
}

func (d *DexScreener) Fetch(ctx context.Context, q Query) (any, error) {
	if err := d.Validate(q); err != nil {
		return nil, err
	}
	limit, _ := intParam(q, "limit", 10, 1, 50)

	var resp struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := d.client.GetJSON(ctx, "/latest/dex/search", url.Values{"q": {q.Get("q")}}, true, &resp); err != nil {
		return nil, err
	}

	pairs := resp.Pairs
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]map[string]any, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, map[string]any{
			"chain":          p.ChainID,
			"dex":            p.DexID,
			"pair_address":   p.PairAddress,
			"url":            p.URL,
			"base_token":     map[string]any{"address": p.BaseToken.Address, "name": p.BaseToken.Name, "symbol": p.BaseToken.Symbol},
			"quote_symbol":   p.QuoteToken.Symbol,
			"price_usd":      nullableString(p.PriceUSD),
			"liquidity_usd":  nullableString(p.Liquidity.USD),
			"volume_24h_usd": nullableString(p.Volume.H24),
			"change_24h":     nullableString(p.PriceChange.H24),
			"fdv":            nullableString(p.FDV),
		})
	}
	return map[string]any{"query": q.Get("q"), "count": len(out), "pairs": out}, nil
}

func nullableString(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}
