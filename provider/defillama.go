package provider

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defillamaBaseURL = "https://yields.llama.fi"

// DefiLlama lists yield pools filtered by chain, project, TVL and APY.
type DefiLlama struct {
	client *Client
}

// NewDefiLlama returns a DefiLlama yields provider.
func NewDefiLlama(opts ...Option) *DefiLlama {
	base := []Option{WithCacheTTL(5 * time.Minute)}
	return &DefiLlama{client: NewClient("defillama", defillamaBaseURL, append(base, opts...)...)}
}

// PoolFilter narrows the pool list.
type PoolFilter struct {
	Chain          string
	Project        string
	MinTVL         decimal.Decimal
	MinAPY         decimal.Decimal
	MaxAPY         decimal.Decimal
	StablecoinOnly bool
	Limit          int
}

func (d *DefiLlama) filter(q Query) (PoolFilter, error) {
	f := PoolFilter{
		Project: strings.ToLower(q.Get("project")),
		MinTVL:  decimal.NewFromInt(100_000),
		MinAPY:  decimal.NewFromInt(1),
		MaxAPY:  decimal.NewFromInt(100),
	}
	if chain := q.Get("chain"); chain != "" {
		name, ok := lookupChain(defillamaChains, chain)
		if !ok {
			return f, badQuery("unsupported chain %q", chain)
		}
		f.Chain = name
	}
	for key, dst := range map[string]*decimal.Decimal{"min_tvl": &f.MinTVL, "min_apy": &f.MinAPY, "max_apy": &f.MaxAPY} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return f, badQuery("%s must be a number", key)
		}
		*dst = v
	}
	if f.MinAPY.GreaterThan(f.MaxAPY) {
		return f, badQuery("min_apy exceeds max_apy")
	}
	var err error
	if f.StablecoinOnly, err = boolParam(q, "stablecoin_only", false); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit", 20, 1, 100); err != nil {
		return f, err
	}
	return f, nil
}

func (d *DefiLlama) Validate(q Query) error {
	_, err := d.filter(q)
	return err
}

func (d *DefiLlama) Fetch(ctx context.Context, q Query) (any, error) {
	f, err := d.filter(q)
	if err != nil {
		return nil, err
	}
	pools, err := d.Pools(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.summary())
	}
	return map[string]any{"count": len(out), "pools": out}, nil
}

// Pool is one DefiLlama yield pool.
type Pool struct {
	ID         string              `json:"pool"`
	Chain      string              `json:"chain"`
	Project    string              `json:"project"`
	Symbol     string              `json:"symbol"`
	TVLUSD     decimal.NullDecimal `json:"tvlUsd"`
	APY        decimal.NullDecimal `json:"apy"`
	APYBase    decimal.NullDecimal `json:"apyBase"`
	APYReward  decimal.NullDecimal `json:"apyReward"`
	Stablecoin bool                `json:"stablecoin"`
	ILRisk     string              `json:"ilRisk"`
}

func (p Pool) apy() decimal.Decimal {
	if !p.APY.Valid {
		return decimal.Zero
	}
	return p.APY.Decimal
}

func (p Pool) tvl() decimal.Decimal {
	if !p.TVLUSD.Valid {
		return decimal.Zero
	}
	return p.TVLUSD.Decimal
}

func (p Pool) summary() map[string]any {
	optionalPct := func(v decimal.NullDecimal) any {
		if !v.Valid || v.Decimal.IsZero() {
			return nil
		}
		return v.Decimal.StringFixed(2) + "%"
	}
	risk := p.ILRisk
	if risk == "" {
		risk = "unknown"
	}
	return map[string]any{
		"pool_id":    p.ID,
		"chain":      p.Chain,
		"project":    p.Project,
		"symbol":     p.Symbol,
		"tvl_usd":    "$" + groupThousands(p.tvl().Round(0).String()),
		"apy":        p.apy().StringFixed(2) + "%",
		"apy_base":   optionalPct(p.APYBase),
		"apy_reward": optionalPct(p.APYReward),
		"stablecoin": p.Stablecoin,
		"il_risk":    risk,
	}
}

// Pools returns the pools matching f, highest APY first.
func (d *DefiLlama) Pools(ctx context.Context, f PoolFilter) ([]Pool, error) {
	var resp struct {
		Status string `json:"status"`
		Data   []Pool `json:"data"`
	}
	if err := d.client.GetJSON(ctx, "/pools", nil, true, &resp); err != nil {
		return nil, err
	}

	var out []Pool
	for _, p := range resp.Data {
		if f.Chain != "" && p.Chain != f.Chain {
			continue
		}
		if f.Project != "" && strings.ToLower(p.Project) != f.Project {
			continue
		}
		if p.tvl().LessThan(f.MinTVL) {
			continue
		}
		if apy := p.apy(); apy.LessThan(f.MinAPY) || apy.GreaterThan(f.MaxAPY) {
			continue
		}
		if f.StablecoinOnly && !p.Stablecoin {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].apy().GreaterThan(out[j].apy()) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// groupThousands inserts commas into an integer string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
