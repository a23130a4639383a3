package x402

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/andrewreder/toolfi/go-api/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Query string `json:"query"`
}

func (in *echoInput) Validate() error {
	if in.Query == "" {
		return errors.New("query is required")
	}
	return nil
}

type echoOutput struct {
	Query string `json:"query"`
}

func echoHandler(calls *int) func(context.Context, *mcp.CallToolRequest, *echoInput) (*mcp.CallToolResult, echoOutput, error) {
	return func(_ context.Context, _ *mcp.CallToolRequest, in *echoInput) (*mcp.CallToolResult, echoOutput, error) {
		*calls++
		return nil, echoOutput{Query: in.Query}, nil
	}
}

func staticTool(ctx context.Context) (ToolRef, error) {
	return ToolRef{ID: 1, Name: "Echo", Price: big.NewInt(10000)}, nil
}

func requestWithRef(ref string) *mcp.CallToolRequest {
	params := &mcp.CallToolParamsRaw{Name: "echo"}
	if ref != "" {
		params.Meta = map[string]any{MetaKeyPaymentTx: ref}
	}
	return &mcp.CallToolRequest{Params: params}
}

func TestWrapToolHandlerRequiresPayment(t *testing.T) {
	t.Parallel()
	calls := 0
	g := NewGate(gateConfig(registryAddr), &stubVerifier{}, zerolog.Nop())
	wrapped := WrapToolHandler(g, staticTool, echoHandler(&calls))

	result, _, err := wrapped(context.Background(), requestWithRef(""), &echoInput{Query: "x"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Zero(t, calls)

	required, ok := result.Meta[MetaKeyPaymentRequired].(*Descriptor)
	require.True(t, ok)
	assert.Equal(t, StatusPaymentRequired, required.Status)
	assert.Equal(t, uint64(1), required.Payment.ToolID)
}

func TestWrapToolHandlerValidatesBeforePayment(t *testing.T) {
	t.Parallel()
	calls := 0
	stub := &stubVerifier{}
	g := NewGate(gateConfig(registryAddr), stub, zerolog.Nop())
	wrapped := WrapToolHandler(g, staticTool, echoHandler(&calls))

	result, _, err := wrapped(context.Background(), requestWithRef(common.HexToHash("0x01").Hex()), &echoInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Zero(t, stub.calls)
	assert.Zero(t, calls)
	assert.Nil(t, result.Meta[MetaKeyPaymentRequired])
}

func TestWrapToolHandlerRejectsUnverifiedPayment(t *testing.T) {
	t.Parallel()
	calls := 0
	g := NewGate(gateConfig(registryAddr), &stubVerifier{result: verifier.Result{Reason: verifier.ReasonChainUnavailable}}, zerolog.Nop())
	wrapped := WrapToolHandler(g, staticTool, echoHandler(&calls))

	result, _, err := wrapped(context.Background(), requestWithRef(common.HexToHash("0x01").Hex()), &echoInput{Query: "x"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Zero(t, calls)

	resp, ok := result.Meta[MetaKeyPaymentResponse].(*PaymentResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, "chain_unavailable", resp.ErrorReason)
	assert.True(t, resp.Retryable)
}

func TestWrapToolHandlerServesVerifiedPayment(t *testing.T) {
	t.Parallel()
	calls := 0
	ref := common.HexToHash("0x01").Hex()
	g := NewGate(gateConfig(registryAddr), &stubVerifier{result: verifier.Result{
		Verified: true,
		Payment:  &verifier.Payment{ToolID: 1, Caller: payer, TxRef: ref, VerifiedAt: time.Now()},
	}}, zerolog.Nop())
	wrapped := WrapToolHandler(g, staticTool, echoHandler(&calls))

	result, out, err := wrapped(context.Background(), requestWithRef(ref), &echoInput{Query: "pepe"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "pepe", out.Query)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	resp, ok := result.Meta[MetaKeyPaymentResponse].(*PaymentResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, payer.Hex(), resp.Payment.Caller)
	assert.Equal(t, ref, resp.Payment.TxRef)
}

func TestWrapToolHandlerResolveFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	g := NewGate(gateConfig(registryAddr), &stubVerifier{}, zerolog.Nop())
	wrapped := WrapToolHandler(g, func(context.Context) (ToolRef, error) {
		return ToolRef{}, errors.New("tool 9 not registered")
	}, echoHandler(&calls))

	result, _, err := wrapped(context.Background(), requestWithRef(""), &echoInput{Query: "x"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Zero(t, calls)
}

func TestPaymentRefFromMeta(t *testing.T) {
	t.Parallel()
	assert.Empty(t, PaymentRefFromMeta(nil))
	assert.Empty(t, PaymentRefFromMeta(&mcp.CallToolRequest{}))
	assert.Empty(t, PaymentRefFromMeta(requestWithRef("")))
	assert.Equal(t, "0xabc", PaymentRefFromMeta(requestWithRef("0xabc")))
}
