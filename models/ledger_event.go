package models

import (
	"math/big"
	"time"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerEvent is a journaled ledger notification. Amounts are decimal
// strings in token base units.
type LedgerEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Kind       string    `gorm:"type:varchar(32);index;not null" json:"kind"`
	ToolID     uint64    `gorm:"index" json:"tool_id,omitempty"`
	Actor      string    `gorm:"type:varchar(42);index" json:"actor"`
	Amount     string    `gorm:"type:varchar(80)" json:"amount,omitempty"`
	OldPrice   string    `gorm:"type:varchar(80)" json:"old_price,omitempty"`
	NewPrice   string    `gorm:"type:varchar(80)" json:"new_price,omitempty"`
	Name       string    `gorm:"type:varchar(255)" json:"name,omitempty"`
	Endpoint   string    `gorm:"type:text" json:"endpoint,omitempty"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// NewLedgerEvent converts a ledger notification into its journal row.
func NewLedgerEvent(ev ledger.Event) *LedgerEvent {
	return &LedgerEvent{
		Seq:        ev.Seq,
		Kind:       string(ev.Kind),
		ToolID:     ev.ToolID,
		Actor:      ev.Actor.Hex(),
		Amount:     intString(ev.Amount),
		OldPrice:   intString(ev.OldPrice),
		NewPrice:   intString(ev.NewPrice),
		Name:       ev.Name,
		Endpoint:   ev.Endpoint,
		OccurredAt: ev.Timestamp,
	}
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// ToolCall records one paid request that was authorized and handed to a
// content provider.
type ToolCall struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	RequestID    string         `gorm:"type:varchar(36);index" json:"request_id,omitempty"`
	ToolID       uint64         `gorm:"index;not null" json:"tool_id"`
	ToolName     string         `gorm:"type:varchar(255);index;not null" json:"tool_name"`
	Surface      string         `gorm:"type:varchar(16)" json:"surface"`
	Caller       string         `gorm:"type:varchar(42);index" json:"caller"`
	TxRef        string         `gorm:"type:varchar(66);index" json:"tx_ref"`
	Mode         string         `gorm:"type:varchar(16)" json:"mode"`
	QueryJSON    string         `gorm:"type:text" json:"query_json"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Success      bool           `gorm:"index" json:"success"`
}

// BeforeCreate assigns a random id to rows created without one.
func (c *ToolCall) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
