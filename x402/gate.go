// Package x402 decides whether a request for a paid tool is served, based on
// a payForCall transaction reference presented by the client.
package x402

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/andrewreder/toolfi/go-api/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentVerifier checks a transaction reference against the chain.
type PaymentVerifier interface {
	Verify(ctx context.Context, txRef string, expectedToolID uint64) verifier.Result
}

// GateConfig describes the chain and token payments are made on.
type GateConfig struct {
	ChainID       int64
	Network       string
	Registry      common.Address
	Token         common.Address
	TokenSymbol   string
	TokenDecimals int32
}

// Gate is stateless; all payment state lives on the chain and in the
// verifier cache.
type Gate struct {
	cfg      GateConfig
	mode     Mode
	verifier PaymentVerifier
	log      zerolog.Logger
}

// NewGate returns a gate for cfg. A zero registry address puts the gate in
// ModeUnconfigured, where any present reference is accepted unverified.
func NewGate(cfg GateConfig, v PaymentVerifier, log zerolog.Logger) *Gate {
	mode := ModeVerified
	if cfg.Registry == (common.Address{}) {
		mode = ModeUnconfigured
	}
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "USDC"
	}
	return &Gate{
		cfg:      cfg,
		mode:     mode,
		verifier: v,
		log:      log.With().Str("component", "gate").Logger(),
	}
}

// Mode reports whether references are verified.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Authorize decides whether a request carrying paymentRef may reach tool.
func (g *Gate) Authorize(ctx context.Context, paymentRef string, tool ToolRef) Decision {
	ref := strings.TrimSpace(paymentRef)
	log := g.log.With().Uint64("tool_id", tool.ID).Str("tool", tool.Name).Logger()

	if ref == "" {
		log.Info().Str("outcome", PaymentRequired.String()).Msg("payment decision")
		return Decision{Kind: PaymentRequired, Required: g.Descriptor(tool)}
	}

	if g.mode == ModeUnconfigured {
		log.Info().Str("outcome", Authorized.String()).Str("mode", g.mode.String()).Msg("payment decision")
		return Decision{Kind: Authorized, Payment: &PaymentInfo{
			ToolID:   tool.ID,
			Caller:   "demo",
			Verified: false,
			TxRef:    ref,
			Mode:     ModeUnconfigured.String(),
		}}
	}

	res := g.verifier.Verify(ctx, ref, tool.ID)
	if !res.Verified || res.Payment == nil {
		log.Info().Str("outcome", Rejected.String()).Str("reason", string(res.Reason)).Msg("payment decision")
		return Decision{Kind: Rejected, Rejection: &Rejection{
			Code:      string(res.Reason),
			Message:   res.Reason.Message(),
			Retryable: res.Reason.Retryable(),
		}}
	}

	log.Info().Str("outcome", Authorized.String()).Str("caller", res.Payment.Caller.Hex()).Msg("payment decision")
	return Decision{Kind: Authorized, Payment: &PaymentInfo{
		ToolID:   res.Payment.ToolID,
		Caller:   res.Payment.Caller.Hex(),
		Verified: true,
		TxRef:    res.Payment.TxRef,
		Mode:     ModeVerified.String(),
	}}
}

// Descriptor tells a client how to pay for tool.
func (g *Gate) Descriptor(tool ToolRef) *Descriptor {
	price := tool.Price
	if price == nil {
		price = new(big.Int)
	}
	formatted := g.FormatPrice(price)
	contract := g.cfg.Registry.Hex()
	return &Descriptor{
		Status:   StatusPaymentRequired,
		Protocol: ProtocolTag,
		Payment: Terms{
			ChainID:        g.cfg.ChainID,
			Network:        g.cfg.Network,
			Contract:       contract,
			Token:          g.cfg.Token.Hex(),
			ToolID:         tool.ID,
			ToolName:       tool.Name,
			Price:          new(big.Int).Set(price),
			PriceFormatted: formatted,
			Instructions: []string{
				fmt.Sprintf("Approve %s: call approve(%s, %s) on token %s", formatted, contract, price, g.cfg.Token.Hex()),
				fmt.Sprintf("Pay: call payForCall(%d) on %s", tool.ID, contract),
				fmt.Sprintf("Retry this request with header %s: <txHash>", HeaderPaymentTx),
			},
		},
	}
}

// FormatPrice renders a base-unit amount of the payment token.
func (g *Gate) FormatPrice(amount *big.Int) string {
	return FormatAmount(amount, g.cfg.TokenDecimals, g.cfg.TokenSymbol)
}

// FormatAmount renders a base-unit amount with the token's decimals,
// e.g. 10000 with 6 decimals is "0.01 USDC".
func FormatAmount(amount *big.Int, decimals int32, symbol string) string {
	if amount == nil {
		amount = new(big.Int)
	}
	s := decimal.NewFromBigInt(amount, -decimals).String()
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
