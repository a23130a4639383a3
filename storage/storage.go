package storage

import (
	"context"

	"github.com/andrewreder/toolfi/go-api/models"
)

// CallFilter narrows GetToolCalls. Zero fields match everything.
type CallFilter struct {
	Caller string
	ToolID uint64
}

type Storage interface {
	// Ledger journal
	CreateLedgerEvent(ctx context.Context, ev *models.LedgerEvent) error
	GetLedgerEvents(ctx context.Context, limit, offset int) ([]models.LedgerEvent, int64, error)
	DeleteAllLedgerEvents(ctx context.Context) error

	// Served calls
	CreateToolCall(ctx context.Context, call *models.ToolCall) error
	GetToolCall(ctx context.Context, id string) (*models.ToolCall, error)
	GetToolCalls(ctx context.Context, filter CallFilter, limit, offset int) ([]models.ToolCall, int64, error)

	// Lifecycle
	Close() error
}
