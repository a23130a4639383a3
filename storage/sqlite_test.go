package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(Config{DatabasePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStorage_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStorage(Config{DatabasePath: "/nonexistent/path/test.db"})
	assert.Error(t, err)
}

func TestLedgerEvents(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, seq := range []uint64{2, 1, 3} {
		require.NoError(t, store.CreateLedgerEvent(ctx, &models.LedgerEvent{Seq: seq, Kind: "called", ToolID: 1}))
	}
	// replays are ignored
	require.NoError(t, store.CreateLedgerEvent(ctx, &models.LedgerEvent{Seq: 2, Kind: "tipped"}))

	events, total, err := store.GetLedgerEvents(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, "called", events[1].Kind)

	events, _, err = store.GetLedgerEvents(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(3), events[0].Seq)

	require.NoError(t, store.DeleteAllLedgerEvents(ctx))
	require.NoError(t, store.CreateLedgerEvent(ctx, &models.LedgerEvent{Seq: 1, Kind: "registered"}))
	events, total, err = store.GetLedgerEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "registered", events[0].Kind)
}

func TestToolCalls(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	alice := "0x00000000000000000000000000000000000000Aa"
	calls := []*models.ToolCall{
		{CreatedAt: base, ToolID: 1, ToolName: "token_security", Caller: alice, TxRef: "0x01", Success: true},
		{CreatedAt: base.Add(time.Minute), ToolID: 2, ToolName: "token_price", Caller: alice, TxRef: "0x02", Success: true},
		{CreatedAt: base.Add(2 * time.Minute), ToolID: 1, ToolName: "token_security", Caller: "demo", TxRef: "x", Success: false, ErrorMessage: "goplus: HTTP 500"},
	}
	for _, c := range calls {
		require.NoError(t, store.CreateToolCall(ctx, c))
		assert.NotEmpty(t, c.ID)
	}

	got, err := store.GetToolCall(ctx, calls[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "goplus: HTTP 500", got.ErrorMessage)
	assert.False(t, got.Success)

	_, err = store.GetToolCall(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, total, err := store.GetToolCalls(ctx, CallFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, calls[2].ID, all[0].ID, "newest first")

	mine, total, err := store.GetToolCalls(ctx, CallFilter{Caller: "0x00000000000000000000000000000000000000AA"}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, mine, 1)
	assert.Equal(t, "0x02", mine[0].TxRef)

	byTool, total, err := store.GetToolCalls(ctx, CallFilter{Caller: alice, ToolID: 1}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, byTool, 1)
	assert.Equal(t, "0x01", byTool[0].TxRef)
}

func TestJournalPersistsLedgerEvents(t *testing.T) {
	store := setupTestDB(t)
	token := ledger.NewMemoryToken()
	reg := ledger.New(common.HexToAddress("0x1000"), token)
	reg.OnEvent(Journal(store, zerolog.Nop()))

	creator := common.HexToAddress("0x2000")
	_, err := reg.Register(creator, "token_security", "/api/token-security", "", big.NewInt(10_000))
	require.NoError(t, err)
	_, err = reg.UpdatePrice(creator, 1, big.NewInt(20_000))
	require.NoError(t, err)

	events, total, err := store.GetLedgerEvents(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "registered", events[0].Kind)
	assert.Equal(t, "/api/token-security", events[0].Endpoint)
	assert.Equal(t, "20000", events[1].NewPrice)
	assert.Equal(t, creator.Hex(), events[1].Actor)
}

func TestRecordCall(t *testing.T) {
	store := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	RecordCall(ctx, store, zerolog.Nop(), &models.ToolCall{ToolID: 1, ToolName: "dex_search", Success: true})
	RecordCall(ctx, nil, zerolog.Nop(), &models.ToolCall{ToolID: 1, ToolName: "dex_search"})

	_, total, err := store.GetToolCalls(context.Background(), CallFilter{ToolID: 1}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "a cancelled request still gets recorded")
}
