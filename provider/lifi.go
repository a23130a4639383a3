package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const lifiBaseURL = "https://li.quest/v1"

var (
	nativeToken = common.Address{}

	usdcByChain = map[int]string{
		1:     "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		42161: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		8453:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		137:   "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359",
		10:    "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
	}
)

// LiFi quotes cross-chain bridge routes.
type LiFi struct {
	client *Client
}

// NewLiFi returns a Li.Fi bridge quote provider. Quotes are never cached.
func NewLiFi(opts ...Option) *LiFi {
	base := []Option{WithCacheTTL(0)}
	return &LiFi{client: NewClient("lifi", lifiBaseURL, append(base, opts...)...)}
}

func (l *LiFi) Validate(q Query) error {
	if err := requireParams(q, "from_chain", "to_chain", "from_token", "to_token", "amount", "from_address"); err != nil {
		return err
	}
	if _, ok := lookupChain(lifiChains, q.Get("from_chain")); !ok {
		return badQuery("unsupported source chain %q", q.Get("from_chain"))
	}
	if _, ok := lookupChain(lifiChains, q.Get("to_chain")); !ok {
		return badQuery("unsupported destination chain %q", q.Get("to_chain"))
	}
	if amt, err := decimal.NewFromString(q.Get("amount")); err != nil || !amt.Equal(amt.Truncate(0)) || !amt.IsPositive() {
		return badQuery("amount must be a positive integer in base units")
	}
	if !common.IsHexAddress(q.Get("from_address")) {
		return badQuery("from_address must be a 0x address")
	}
	return nil
}

// resolveToken maps symbols like ETH and USDC to addresses on chainID.
func resolveToken(token string, chainID int) string {
	switch strings.ToUpper(token) {
	case "ETH", "NATIVE", "MATIC", "BNB", "AVAX":
		return nativeToken.Hex()
	case "USDC":
		if addr, ok := usdcByChain[chainID]; ok {
			return addr
		}
		return token
	}
	if common.IsHexAddress(token) {
		return strings.ToLower(token)
	}
	return token
}

type lifiQuote struct {
	Tool     string `json:"tool"`
	Estimate struct {
		FromAmount        string              `json:"fromAmount"`
		ToAmount          string              `json:"toAmount"`
		ToAmountUSD       decimal.NullDecimal `json:"toAmountUSD"`
		ExecutionDuration *int64              `json:"executionDuration"`
		GasCosts          []struct {
			AmountUSD decimal.NullDecimal `json:"amountUSD"`
		} `json:"gasCosts"`
	} `json:"estimate"`
}

func (l *LiFi) Fetch(ctx context.Context, q Query) (any, error) {
	if err := l.Validate(q); err != nil {
		return nil, err
	}
	fromChain, _ := lookupChain(lifiChains, q.Get("from_chain"))
	toChain, _ := lookupChain(lifiChains, q.Get("to_chain"))
	fromToken := resolveToken(q.Get("from_token"), fromChain)
	toToken := resolveToken(q.Get("to_token"), toChain)

	params := url.Values{
		"fromChain":   {strconv.Itoa(fromChain)},
		"toChain":     {strconv.Itoa(toChain)},
		"fromToken":   {fromToken},
		"toToken":     {toToken},
		"fromAmount":  {q.Get("amount")},
		"fromAddress": {q.Get("from_address")},
		"slippage":    {"0.03"},
	}
	var quote lifiQuote
	if err := l.client.GetJSON(ctx, "/quote", params, false, &quote); err != nil {
		return nil, err
	}

	fromAmount := quote.Estimate.FromAmount
	if fromAmount == "" {
		fromAmount = q.Get("amount")
	}
	toAmount := quote.Estimate.ToAmount
	if toAmount == "" {
		toAmount = "0"
	}
	gas := decimal.Zero
	for _, g := range quote.Estimate.GasCosts {
		if g.AmountUSD.Valid {
			gas = gas.Add(g.AmountUSD.Decimal)
		}
	}

	return map[string]any{
		"route": map[string]any{
			"from_chain": q.Get("from_chain"),
			"to_chain":   q.Get("to_chain"),
			"from_token": fromToken,
			"to_token":   toToken,
		},
		"amounts": map[string]any{
			"from_amount":   fromAmount,
			"to_amount":     toAmount,
			"to_amount_usd": usd(quote.Estimate.ToAmountUSD),
		},
		"costs": map[string]any{
			"gas_usd": usd(decimal.NullDecimal{Decimal: gas, Valid: true}),
		},
		"execution": map[string]any{
			"time_seconds": quote.Estimate.ExecutionDuration,
			"bridge":       quote.Tool,
		},
	}, nil
}

func usd(v decimal.NullDecimal) any {
	if !v.Valid || !v.Decimal.IsPositive() {
		return nil
	}
	return "$" + v.Decimal.StringFixed(2)
}
