package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	creator      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payer        = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestParseTxHash(t *testing.T) {
	t.Parallel()
	valid := "0x" + strings.Repeat("ab", 32)
	h, err := ParseTxHash(valid)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(valid), h)

	for _, bad := range []string{"", "abc", "0x1234", valid[2:], valid + "00", "0x" + "zz" + valid[4:]} {
		_, err := ParseTxHash(bad)
		assert.Error(t, err, bad)
	}
}

func TestEncodeDecodeToolCalled(t *testing.T) {
	t.Parallel()
	ts := time.Unix(1_700_000_000, 0)
	lg, err := EncodeEvent(registryAddr, ledger.Event{
		Kind:      ledger.EventCalled,
		ToolID:    7,
		Actor:     payer,
		Amount:    big.NewInt(10000),
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, registryAddr, lg.Address)
	require.Len(t, lg.Topics, 3)

	decoded, err := DecodeToolCalled(lg)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), decoded.ToolID.Uint64())
	assert.Equal(t, payer, decoded.Caller)
	assert.Equal(t, int64(10000), decoded.Amount.Int64())
	assert.Equal(t, ts.Unix(), decoded.Timestamp.Int64())
}

func TestDecodeToolCalledRejectsOtherLogs(t *testing.T) {
	t.Parallel()
	tipped, err := EncodeEvent(registryAddr, ledger.Event{Kind: ledger.EventTipped, ToolID: 1, Actor: payer, Amount: big.NewInt(5)})
	require.NoError(t, err)
	_, err = DecodeToolCalled(tipped)
	assert.Error(t, err)

	_, err = DecodeToolCalled(&types.Log{Topics: []common.Hash{{0x01}}})
	assert.Error(t, err)

	called := RegistryABI().Events[EventToolCalled].ID
	truncated := &types.Log{Topics: []common.Hash{called, {}, {}}, Data: []byte{0x01}}
	_, err = DecodeToolCalled(truncated)
	assert.Error(t, err)

	_, err = DecodeToolCalled(nil)
	assert.Error(t, err)
}

func TestEncodeEventAllKinds(t *testing.T) {
	t.Parallel()
	kinds := []ledger.Event{
		{Kind: ledger.EventRegistered, ToolID: 1, Actor: creator, Name: "n", Endpoint: "e", NewPrice: big.NewInt(1)},
		{Kind: ledger.EventTipped, ToolID: 1, Actor: payer, Amount: big.NewInt(2)},
		{Kind: ledger.EventWithdrawn, Actor: creator, Amount: big.NewInt(3)},
		{Kind: ledger.EventDeactivated, ToolID: 1},
		{Kind: ledger.EventReactivated, ToolID: 1},
		{Kind: ledger.EventPriceUpdated, ToolID: 1, OldPrice: big.NewInt(1), NewPrice: big.NewInt(2)},
	}
	for _, ev := range kinds {
		lg, err := EncodeEvent(registryAddr, ev)
		require.NoError(t, err, ev.Kind)
		assert.NotEmpty(t, lg.Topics, ev.Kind)
	}
	_, err := EncodeEvent(registryAddr, ledger.Event{Kind: "bogus"})
	assert.Error(t, err)
}

func TestSimulatedSubmit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sim := NewSimulated(registryAddr, tokenAddr)

	_, ev, err := sim.Submit(creator, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Register(creator, "security", "https://x", "", big.NewInt(100))
	})
	require.NoError(t, err)
	toolID := ev.ToolID

	require.True(t, sim.Token().Mint(payer, big.NewInt(1000)))
	approveHash := sim.Approve(payer, big.NewInt(100))
	approveOut, err := sim.TransactionOutcome(ctx, approveHash)
	require.NoError(t, err)
	assert.True(t, approveOut.Success)
	assert.Equal(t, tokenAddr, approveOut.To)

	payHash, _, err := sim.Submit(payer, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Pay(payer, toolID)
	})
	require.NoError(t, err)

	out, err := sim.TransactionOutcome(ctx, payHash)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, registryAddr, out.To)
	require.Len(t, out.Logs, 1)
	decoded, err := DecodeToolCalled(out.Logs[0])
	require.NoError(t, err)
	assert.Equal(t, toolID, decoded.ToolID.Uint64())
	assert.Equal(t, payer, decoded.Caller)

	// Allowance is spent, so the next pay reverts but is still mined.
	failHash, _, err := sim.Submit(payer, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Pay(payer, toolID)
	})
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)
	failed, err := sim.TransactionOutcome(ctx, failHash)
	require.NoError(t, err)
	assert.False(t, failed.Success)
	assert.Empty(t, failed.Logs)
	assert.NotEqual(t, payHash, failHash)

	_, err = sim.TransactionOutcome(ctx, common.HexToHash("0xdead"))
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestSimulatedHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	sim := NewSimulated(registryAddr, tokenAddr)
	hash := sim.Record(Outcome{Success: true, To: registryAddr})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sim.TransactionOutcome(ctx, hash)
	assert.ErrorIs(t, err, context.Canceled)
}
