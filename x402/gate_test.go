package x402

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/andrewreder/toolfi/go-api/chain"
	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAddr    = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	creator      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payer        = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type stubVerifier struct {
	result verifier.Result
	calls  int
}

func (s *stubVerifier) Verify(context.Context, string, uint64) verifier.Result {
	s.calls++
	return s.result
}

func gateConfig(registry common.Address) GateConfig {
	return GateConfig{
		ChainID:       84532,
		Network:       "base-sepolia",
		Registry:      registry,
		Token:         tokenAddr,
		TokenSymbol:   "USDC",
		TokenDecimals: 6,
	}
}

func securityTool(id uint64) ToolRef {
	return ToolRef{ID: id, Name: "Token Security", Price: big.NewInt(10000)}
}

func TestAuthorizeWithoutReferenceRequiresPayment(t *testing.T) {
	t.Parallel()
	stub := &stubVerifier{}
	g := NewGate(gateConfig(registryAddr), stub, zerolog.Nop())

	for _, ref := range []string{"", "   "} {
		d := g.Authorize(context.Background(), ref, securityTool(1))
		require.Equal(t, PaymentRequired, d.Kind)
		require.NotNil(t, d.Required)
		assert.Nil(t, d.Payment)
		assert.Nil(t, d.Rejection)

		terms := d.Required.Payment
		assert.Equal(t, StatusPaymentRequired, d.Required.Status)
		assert.Equal(t, ProtocolTag, d.Required.Protocol)
		assert.Equal(t, int64(84532), terms.ChainID)
		assert.Equal(t, "base-sepolia", terms.Network)
		assert.Equal(t, registryAddr.Hex(), terms.Contract)
		assert.Equal(t, tokenAddr.Hex(), terms.Token)
		assert.Equal(t, uint64(1), terms.ToolID)
		assert.Equal(t, "Token Security", terms.ToolName)
		assert.Equal(t, "10000", terms.Price.String())
		assert.Equal(t, "0.01 USDC", terms.PriceFormatted)
		require.Len(t, terms.Instructions, 3)
		assert.Contains(t, terms.Instructions[0], "approve")
		assert.Contains(t, terms.Instructions[1], "payForCall(1)")
		assert.Contains(t, terms.Instructions[2], HeaderPaymentTx)
	}
	assert.Zero(t, stub.calls)
}

func TestDescriptorPriceIsJSONNumber(t *testing.T) {
	t.Parallel()
	g := NewGate(gateConfig(registryAddr), &stubVerifier{}, zerolog.Nop())

	raw, err := json.Marshal(g.Authorize(context.Background(), "", securityTool(1)).Required)
	require.NoError(t, err)

	var body struct {
		Payment map[string]any `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, float64(10000), body.Payment["price"])
	assert.Equal(t, "0.01 USDC", body.Payment["priceFormatted"])
}

func TestAuthorizeUnconfiguredAcceptsAnyReference(t *testing.T) {
	t.Parallel()
	stub := &stubVerifier{}
	g := NewGate(gateConfig(common.Address{}), stub, zerolog.Nop())
	require.Equal(t, ModeUnconfigured, g.Mode())

	d := g.Authorize(context.Background(), "anything", securityTool(3))
	require.Equal(t, Authorized, d.Kind)
	assert.Equal(t, &PaymentInfo{ToolID: 3, Caller: "demo", Verified: false, TxRef: "anything", Mode: "demo"}, d.Payment)
	assert.Zero(t, stub.calls)

	d = g.Authorize(context.Background(), "", securityTool(3))
	assert.Equal(t, PaymentRequired, d.Kind)
}

func TestAuthorizeMapsVerifierResult(t *testing.T) {
	t.Parallel()
	ref := common.HexToHash("0x01").Hex()
	tests := []struct {
		name      string
		result    verifier.Result
		kind      DecisionKind
		code      string
		retryable bool
	}{
		{
			name: "verified",
			result: verifier.Result{Verified: true, Payment: &verifier.Payment{
				ToolID: 1, Caller: payer, TxRef: ref, VerifiedAt: time.Now(),
			}},
			kind: Authorized,
		},
		{name: "not found", result: verifier.Result{Reason: verifier.ReasonTxNotFound}, kind: Rejected, code: "tx_not_found"},
		{name: "wrong tool", result: verifier.Result{Reason: verifier.ReasonToolMismatch}, kind: Rejected, code: "tool_mismatch"},
		{name: "chain down", result: verifier.Result{Reason: verifier.ReasonChainUnavailable}, kind: Rejected, code: "chain_unavailable", retryable: true},
		{name: "verified without payment", result: verifier.Result{Verified: true}, kind: Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(gateConfig(registryAddr), &stubVerifier{result: tt.result}, zerolog.Nop())
			d := g.Authorize(context.Background(), ref, securityTool(1))
			require.Equal(t, tt.kind, d.Kind)
			if tt.kind == Authorized {
				assert.Equal(t, &PaymentInfo{ToolID: 1, Caller: payer.Hex(), Verified: true, TxRef: ref, Mode: "verified"}, d.Payment)
				return
			}
			require.NotNil(t, d.Rejection)
			assert.Nil(t, d.Payment)
			assert.Equal(t, tt.code, d.Rejection.Code)
			assert.Equal(t, tt.retryable, d.Rejection.Retryable)
		})
	}
}

func TestAuthorizeAgainstSimulatedChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sim := chain.NewSimulated(registryAddr, tokenAddr)
	_, ev, err := sim.Submit(creator, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Register(creator, "Token Security", "/api/token-security", "", big.NewInt(10000))
	})
	require.NoError(t, err)
	tool := securityTool(ev.ToolID)

	require.True(t, sim.Token().Mint(payer, big.NewInt(50000)))
	sim.Approve(payer, big.NewInt(10000))
	tx, _, err := sim.Submit(payer, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Pay(payer, tool.ID)
	})
	require.NoError(t, err)

	g := NewGate(gateConfig(registryAddr), verifier.New(sim, registryAddr), zerolog.Nop())

	assert.Equal(t, PaymentRequired, g.Authorize(ctx, "", tool).Kind)

	d := g.Authorize(ctx, tx.Hex(), tool)
	require.Equal(t, Authorized, d.Kind)
	assert.Equal(t, payer.Hex(), d.Payment.Caller)
	assert.True(t, d.Payment.Verified)

	other := ToolRef{ID: tool.ID + 1, Name: "Other", Price: big.NewInt(1)}
	d = g.Authorize(ctx, tx.Hex(), other)
	require.Equal(t, Rejected, d.Kind)
	assert.Equal(t, string(verifier.ReasonToolMismatch), d.Rejection.Code)
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.01 USDC", FormatAmount(big.NewInt(10000), 6, "USDC"))
	assert.Equal(t, "1.5 USDC", FormatAmount(big.NewInt(1_500_000), 6, "USDC"))
	assert.Equal(t, "0", FormatAmount(nil, 6, ""))
	assert.Equal(t, "42", FormatAmount(big.NewInt(42), 0, ""))
}
