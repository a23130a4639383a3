package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Tool is a registered, priced, callable unit of content.
type Tool struct {
	ID           uint64         `json:"id"`
	Creator      common.Address `json:"creator"`
	Name         string         `json:"name"`
	Endpoint     string         `json:"endpoint"`
	Description  string         `json:"description"`
	PricePerCall *big.Int       `json:"pricePerCall"`
	TotalCalls   uint64         `json:"totalCalls"`
	TotalEarned  *big.Int       `json:"totalEarned"`
	TotalTips    *big.Int       `json:"totalTips"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// clone returns a deep copy so callers cannot reach ledger-owned big.Ints.
func (t *Tool) clone() Tool {
	c := *t
	c.PricePerCall = new(big.Int).Set(t.PricePerCall)
	c.TotalEarned = new(big.Int).Set(t.TotalEarned)
	c.TotalTips = new(big.Int).Set(t.TotalTips)
	return c
}

// EventKind names a ledger notification.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventCalled       EventKind = "called"
	EventTipped       EventKind = "tipped"
	EventWithdrawn    EventKind = "withdrawn"
	EventDeactivated  EventKind = "deactivated"
	EventReactivated  EventKind = "reactivated"
	EventPriceUpdated EventKind = "price_updated"
)

// Event is one entry of the append-only notification log. Fields not
// relevant to Kind are left zero.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	ToolID    uint64         `json:"toolId,omitempty"`
	Actor     common.Address `json:"actor"`
	Amount    *big.Int       `json:"amount,omitempty"`
	OldPrice  *big.Int       `json:"oldPrice,omitempty"`
	NewPrice  *big.Int       `json:"newPrice,omitempty"`
	Name      string         `json:"name,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *Event) clone() Event {
	c := *e
	c.Amount = copyInt(e.Amount)
	c.OldPrice = copyInt(e.OldPrice)
	c.NewPrice = copyInt(e.NewPrice)
	return c
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
