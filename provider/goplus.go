package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const goplusBaseURL = "https://api.gopluslabs.io/api/v1"

// RiskLevel buckets a token's risk score.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TokenSecurity is the GoPlus verdict for one token contract.
type TokenSecurity struct {
	Address string
	Chain   string
	Name    string
	Symbol  string

	IsHoneypot           bool
	BuyTax               decimal.Decimal
	SellTax              decimal.Decimal
	IsMintable           bool
	CanTakeBackOwnership bool
	OwnerChangeBalance   bool
	HiddenOwner          bool
	IsBlacklisted        bool
	TransferPausable     bool
	IsProxy              bool
	IsOpenSource         bool

	HolderCount   int64
	LPHolderCount int64
	DexCount      int
	InCEX         bool
	CEXList       []string

	RiskScore   int
	RiskLevel   RiskLevel
	RiskFactors []string
}

var taxThreshold = decimal.NewFromFloat(0.1)

// Score computes RiskScore, RiskLevel and RiskFactors from the flags.
func (s *TokenSecurity) Score() {
	score := 0
	var factors []string
	add := func(points int, factor string) {
		score += points
		factors = append(factors, factor)
	}

	if s.IsHoneypot {
		add(100, "honeypot: tokens cannot be sold")
	}
	if s.BuyTax.GreaterThan(taxThreshold) {
		add(min(30, int(s.BuyTax.Shift(2).IntPart())), "buy tax "+percent(s.BuyTax))
	}
	if s.SellTax.GreaterThan(taxThreshold) {
		add(min(30, int(s.SellTax.Shift(2).IntPart())), "sell tax "+percent(s.SellTax))
	}
	if s.IsMintable {
		add(20, "mintable supply")
	}
	if s.CanTakeBackOwnership {
		add(25, "ownership can be taken back")
	}
	if s.OwnerChangeBalance {
		add(30, "owner can change balances")
	}
	if s.HiddenOwner {
		add(15, "hidden owner")
	}
	if s.IsBlacklisted {
		add(10, "blacklist function")
	}
	if s.TransferPausable {
		add(15, "transfers can be paused")
	}
	if !s.IsOpenSource {
		add(20, "source code not verified")
	}
	if s.IsProxy {
		add(10, "proxy contract")
	}

	s.RiskScore = min(100, score)
	s.RiskFactors = factors
	switch {
	case score >= 80:
		s.RiskLevel = RiskCritical
	case score >= 50:
		s.RiskLevel = RiskHigh
	case score >= 25:
		s.RiskLevel = RiskMedium
	case score > 0:
		s.RiskLevel = RiskLow
	default:
		s.RiskLevel = RiskSafe
	}
}

// Report renders the verdict as the paid endpoint's response body.
func (s *TokenSecurity) Report() map[string]any {
	factors := s.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	cex := s.CEXList
	if cex == nil {
		cex = []string{}
	}
	return map[string]any{
		"token": map[string]any{
			"name":    s.Name,
			"symbol":  s.Symbol,
			"address": s.Address,
			"chain":   s.Chain,
		},
		"risk": map[string]any{
			"level":   s.RiskLevel,
			"score":   s.RiskScore,
			"factors": factors,
		},
		"details": map[string]any{
			"is_honeypot":             s.IsHoneypot,
			"buy_tax":                 percent(s.BuyTax),
			"sell_tax":                percent(s.SellTax),
			"is_mintable":             s.IsMintable,
			"can_take_back_ownership": s.CanTakeBackOwnership,
			"owner_change_balance":    s.OwnerChangeBalance,
			"hidden_owner":            s.HiddenOwner,
			"is_blacklisted":          s.IsBlacklisted,
			"transfer_pausable":       s.TransferPausable,
			"is_open_source":          s.IsOpenSource,
			"is_proxy":                s.IsProxy,
		},
		"market": map[string]any{
			"holder_count":    s.HolderCount,
			"lp_holder_count": s.LPHolderCount,
			"is_in_cex":       s.InCEX,
			"cex_list":        cex,
			"dex_count":       s.DexCount,
		},
	}
}

func percent(fraction decimal.Decimal) string {
	return fraction.Shift(2).StringFixed(1) + "%"
}

// GoPlus scans token contracts for honeypots, taxes and owner privileges.
type GoPlus struct {
	client *Client
}

// NewGoPlus returns a GoPlus provider. apiKey is optional.
func NewGoPlus(apiKey string, opts ...Option) *GoPlus {
	base := []Option{WithCacheTTL(5 * time.Minute), WithRateLimit(10.0/60, 5)}
	if apiKey != "" {
		base = append(base, withHeader("Authorization", "Bearer "+apiKey))
	}
	return &GoPlus{client: NewClient("goplus", goplusBaseURL, append(base, opts...)...)}
}

func (g *GoPlus) Validate(q Query) error {
	if err := requireParams(q, "chain", "address"); err != nil {
		return err
	}
	if _, ok := lookupChain(goplusChains, q.Get("chain")); !ok {
		return badQuery("unsupported chain %q", q.Get("chain"))
	}
	return nil
}

func (g *GoPlus) Fetch(ctx context.Context, q Query) (any, error) {
	sec, err := g.TokenSecurity(ctx, q.Get("chain"), q.Get("address"))
	if err != nil {
		return nil, err
	}
	return sec.Report(), nil
}

type goplusFlag string

func (f goplusFlag) set() bool { return f == "1" }

type goplusToken struct {
	TokenName            string          `json:"token_name"`
	TokenSymbol          string          `json:"token_symbol"`
	IsHoneypot           goplusFlag      `json:"is_honeypot"`
	BuyTax               string          `json:"buy_tax"`
	SellTax              string          `json:"sell_tax"`
	IsMintable           goplusFlag      `json:"is_mintable"`
	CanTakeBackOwnership goplusFlag      `json:"can_take_back_ownership"`
	OwnerChangeBalance   goplusFlag      `json:"owner_change_balance"`
	HiddenOwner          goplusFlag      `json:"hidden_owner"`
	IsBlacklisted        goplusFlag      `json:"is_blacklisted"`
	TransferPausable     goplusFlag      `json:"transfer_pausable"`
	IsProxy              goplusFlag      `json:"is_proxy"`
	IsOpenSource         goplusFlag      `json:"is_open_source"`
	HolderCount          string          `json:"holder_count"`
	LPHolderCount        string          `json:"lp_holder_count"`
	Dex                  []any           `json:"dex"`
	IsInCEX              json.RawMessage `json:"is_in_cex"`
}

type goplusCEX struct {
	Listed  goplusFlag `json:"listed"`
	CEXList []string   `json:"cex_list"`
}

// TokenSecurity fetches and scores one token.
func (g *GoPlus) TokenSecurity(ctx context.Context, chain, address string) (*TokenSecurity, error) {
	q := Query{"chain": chain, "address": address}
	if err := g.Validate(q); err != nil {
		return nil, err
	}
	chainID, _ := lookupChain(goplusChains, chain)
	addr := strings.ToLower(strings.TrimSpace(address))

	var resp struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Result  map[string]goplusToken `json:"result"`
	}
	params := url.Values{"contract_addresses": {addr}}
	if err := g.client.GetJSON(ctx, "/token_security/"+chainID, params, true, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 1 {
		return nil, &APIError{Provider: "goplus", StatusCode: 200, Message: resp.Message}
	}
	tok, ok := resp.Result[addr]
	if !ok {
		return nil, fmt.Errorf("goplus: token %s on %s: %w", addr, chain, ErrNotFound)
	}

	sec := &TokenSecurity{
		Address:              addr,
		Chain:                chain,
		Name:                 tok.TokenName,
		Symbol:               tok.TokenSymbol,
		IsHoneypot:           tok.IsHoneypot.set(),
		BuyTax:               parseDecimal(tok.BuyTax),
		SellTax:              parseDecimal(tok.SellTax),
		IsMintable:           tok.IsMintable.set(),
		CanTakeBackOwnership: tok.CanTakeBackOwnership.set(),
		OwnerChangeBalance:   tok.OwnerChangeBalance.set(),
		HiddenOwner:          tok.HiddenOwner.set(),
		IsBlacklisted:        tok.IsBlacklisted.set(),
		TransferPausable:     tok.TransferPausable.set(),
		IsProxy:              tok.IsProxy.set(),
		IsOpenSource:         tok.IsOpenSource.set(),
		HolderCount:          parseDecimal(tok.HolderCount).IntPart(),
		LPHolderCount:        parseDecimal(tok.LPHolderCount).IntPart(),
		DexCount:             len(tok.Dex),
	}
	// is_in_cex is an object on EVM chains and absent or a bare flag elsewhere.
	var cex goplusCEX
	if len(tok.IsInCEX) > 0 && json.Unmarshal(tok.IsInCEX, &cex) == nil {
		sec.InCEX = cex.Listed.set()
		sec.CEXList = cex.CEXList
	}
	sec.Score()
	return sec, nil
}

// parseDecimal reads a decimal string, treating blanks and garbage as zero.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
