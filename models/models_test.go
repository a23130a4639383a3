package models

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLedgerEvent(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	actor := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	row := NewLedgerEvent(ledger.Event{
		Seq:       7,
		Kind:      ledger.EventPriceUpdated,
		ToolID:    3,
		Actor:     actor,
		OldPrice:  big.NewInt(10_000),
		NewPrice:  big.NewInt(25_000),
		Timestamp: at,
	})

	assert.Equal(t, uint64(7), row.Seq)
	assert.Equal(t, "price_updated", row.Kind)
	assert.Equal(t, uint64(3), row.ToolID)
	assert.Equal(t, actor.Hex(), row.Actor)
	assert.Empty(t, row.Amount)
	assert.Equal(t, "10000", row.OldPrice)
	assert.Equal(t, "25000", row.NewPrice)
	assert.Equal(t, at, row.OccurredAt)
}

func TestLedgerEventOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(NewLedgerEvent(ledger.Event{Seq: 1, Kind: ledger.EventWithdrawn, Amount: big.NewInt(5)}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "5", decoded["amount"])
	assert.NotContains(t, decoded, "old_price")
	assert.NotContains(t, decoded, "tool_id")
}

func TestToolCallBeforeCreate(t *testing.T) {
	call := &ToolCall{ToolName: "token_security"}
	require.NoError(t, call.BeforeCreate(nil))
	_, err := uuid.Parse(call.ID)
	assert.NoError(t, err)

	kept := &ToolCall{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	assert.Equal(t, "fixed", kept.ID)
}
