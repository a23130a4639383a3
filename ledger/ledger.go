// Package ledger implements the ToolRegistry: tool records, creator balances
// and per-caller usage counters, mutated only through serialized operations
// that either apply fully or not at all.
package ledger

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger owns all registry state. Every mutating method takes the write lock
// for its whole duration, including token collaborator calls, so operations
// are totally ordered and never observed half-applied.
type Ledger struct {
	address common.Address
	token   Token
	now     func() time.Time

	mu        sync.RWMutex
	nextID    uint64
	tools     map[uint64]*Tool
	order     []uint64
	balances  map[common.Address]*big.Int
	usage     map[common.Address]map[uint64]uint64
	events    []Event
	observers []func(Event)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty ledger holding custody at address and settling
// through token.
func New(address common.Address, token Token, opts ...Option) *Ledger {
	l := &Ledger{
		address:  address,
		token:    token,
		now:      time.Now,
		nextID:   1,
		tools:    make(map[uint64]*Tool),
		balances: make(map[common.Address]*big.Int),
		usage:    make(map[common.Address]map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address is the ledger's custody address.
func (l *Ledger) Address() common.Address {
	return l.address
}

// OnEvent registers fn to receive every event appended after the call.
// Observers run after the emitting operation has committed, outside the lock.
func (l *Ledger) OnEvent(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Register creates a tool owned by caller. The returned event carries the
// assigned id.
func (l *Ledger) Register(caller common.Address, name, endpoint, description string, price *big.Int) (*Event, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if !positive(price) {
		return nil, ErrZeroPrice
	}

	return l.commit(func() (Event, error) {
		id := l.nextID
		l.nextID++
		l.tools[id] = &Tool{
			ID:           id,
			Creator:      caller,
			Name:         name,
			Endpoint:     endpoint,
			Description:  description,
			PricePerCall: new(big.Int).Set(price),
			TotalEarned:  new(big.Int),
			TotalTips:    new(big.Int),
			Active:       true,
			CreatedAt:    l.now(),
		}
		l.order = append(l.order, id)
		return Event{
			Kind:     EventRegistered,
			ToolID:   id,
			Actor:    caller,
			Name:     name,
			Endpoint: endpoint,
			NewPrice: new(big.Int).Set(price),
		}, nil
	})
}

// Pay charges caller the tool's current price and credits its creator.
func (l *Ledger) Pay(caller common.Address, toolID uint64) (*Event, error) {
	return l.commit(func() (Event, error) {
		tool, ok := l.tools[toolID]
		if !ok {
			return Event{}, fmt.Errorf("pay tool %d: %w", toolID, ErrToolNotFound)
		}
		if !tool.Active {
			return Event{}, fmt.Errorf("pay tool %d: %w", toolID, ErrToolInactive)
		}
		amount := new(big.Int).Set(tool.PricePerCall)
		if !l.token.TransferFrom(l.address, caller, l.address, amount) {
			return Event{}, fmt.Errorf("pay tool %d: %w", toolID, ErrTransferFailed)
		}

		l.credit(tool.Creator, amount)
		tool.TotalCalls++
		tool.TotalEarned.Add(tool.TotalEarned, amount)
		if l.usage[caller] == nil {
			l.usage[caller] = make(map[uint64]uint64)
		}
		l.usage[caller][toolID]++

		return Event{Kind: EventCalled, ToolID: toolID, Actor: caller, Amount: amount}, nil
	})
}

// Tip sends amount from caller to the tool's creator. Inactive tools still
// accept tips.
func (l *Ledger) Tip(caller common.Address, toolID uint64, amount *big.Int) (*Event, error) {
	if !positive(amount) {
		return nil, ErrZeroAmount
	}
	return l.commit(func() (Event, error) {
		tool, ok := l.tools[toolID]
		if !ok {
			return Event{}, fmt.Errorf("tip tool %d: %w", toolID, ErrToolNotFound)
		}
		value := new(big.Int).Set(amount)
		if !l.token.TransferFrom(l.address, caller, l.address, value) {
			return Event{}, fmt.Errorf("tip tool %d: %w", toolID, ErrTransferFailed)
		}
		l.credit(tool.Creator, value)
		tool.TotalTips.Add(tool.TotalTips, value)
		return Event{Kind: EventTipped, ToolID: toolID, Actor: caller, Amount: value}, nil
	})
}

// Withdraw pays out caller's whole balance. The balance is zeroed before the
// token transfer and restored only if that transfer fails.
func (l *Ledger) Withdraw(caller common.Address) (*Event, error) {
	return l.commit(func() (Event, error) {
		balance, ok := l.balances[caller]
		if !ok || balance.Sign() == 0 {
			return Event{}, ErrNothingToWithdraw
		}
		amount := new(big.Int).Set(balance)
		delete(l.balances, caller)
		if !l.token.Transfer(l.address, caller, amount) {
			l.balances[caller] = amount
			return Event{}, fmt.Errorf("withdraw: %w", ErrTransferFailed)
		}
		return Event{Kind: EventWithdrawn, Actor: caller, Amount: new(big.Int).Set(amount)}, nil
	})
}

// DeactivateTool stops a tool from accepting payments.
func (l *Ledger) DeactivateTool(caller common.Address, toolID uint64) (*Event, error) {
	return l.setActive(caller, toolID, false)
}

// ReactivateTool lets a deactivated tool accept payments again.
func (l *Ledger) ReactivateTool(caller common.Address, toolID uint64) (*Event, error) {
	return l.setActive(caller, toolID, true)
}

func (l *Ledger) setActive(caller common.Address, toolID uint64, active bool) (*Event, error) {
	return l.commit(func() (Event, error) {
		tool, err := l.ownedTool(caller, toolID)
		if err != nil {
			return Event{}, err
		}
		tool.Active = active
		kind := EventDeactivated
		if active {
			kind = EventReactivated
		}
		return Event{Kind: kind, ToolID: toolID, Actor: caller}, nil
	})
}

// UpdatePrice replaces the per-call price of a tool.
func (l *Ledger) UpdatePrice(caller common.Address, toolID uint64, newPrice *big.Int) (*Event, error) {
	if !positive(newPrice) {
		return nil, ErrZeroPrice
	}
	return l.commit(func() (Event, error) {
		tool, err := l.ownedTool(caller, toolID)
		if err != nil {
			return Event{}, err
		}
		old := tool.PricePerCall
		tool.PricePerCall = new(big.Int).Set(newPrice)
		return Event{
			Kind:     EventPriceUpdated,
			ToolID:   toolID,
			Actor:    caller,
			OldPrice: new(big.Int).Set(old),
			NewPrice: new(big.Int).Set(newPrice),
		}, nil
	})
}

// GetTool returns a copy of the tool record.
func (l *Ledger) GetTool(toolID uint64) (Tool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tool, ok := l.tools[toolID]
	if !ok {
		return Tool{}, fmt.Errorf("get tool %d: %w", toolID, ErrToolNotFound)
	}
	return tool.clone(), nil
}

// ToolCount counts every tool ever registered, active or not.
func (l *Ledger) ToolCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.order))
}

// GetTools pages through all tools in registration order.
func (l *Ledger) GetTools(offset, limit uint64) []Tool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := uint64(len(l.order))
	if offset >= total || limit == 0 {
		return []Tool{}
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	out := make([]Tool, 0, end-offset)
	for _, id := range l.order[offset:end] {
		out = append(out, l.tools[id].clone())
	}
	return out
}

// GetActiveTools pages through active tools only; offset indexes the
// filtered sequence. It counts active tools first, then walks registration
// order filling the requested window.
func (l *Ledger) GetActiveTools(offset, limit uint64) []Tool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var active uint64
	for _, id := range l.order {
		if l.tools[id].Active {
			active++
		}
	}
	if offset >= active || limit == 0 {
		return []Tool{}
	}
	size := active - offset
	if limit < size {
		size = limit
	}

	out := make([]Tool, 0, size)
	var seen uint64
	for _, id := range l.order {
		tool := l.tools[id]
		if !tool.Active {
			continue
		}
		if seen >= offset {
			out = append(out, tool.clone())
			if uint64(len(out)) == size {
				break
			}
		}
		seen++
	}
	return out
}

// ToolsByCreator lists every tool registered by creator in registration order.
func (l *Ledger) ToolsByCreator(creator common.Address) []Tool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Tool{}
	for _, id := range l.order {
		if tool := l.tools[id]; tool.Creator == creator {
			out = append(out, tool.clone())
		}
	}
	return out
}

// BalanceOf is the creator's withdrawable balance.
func (l *Ledger) BalanceOf(creator common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyInt(l.balanceLocked(creator))
}

// UserCallCount is how many successful paid calls caller made to toolID.
func (l *Ledger) UserCallCount(caller common.Address, toolID uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usage[caller][toolID]
}

// Events pages through the notification log in emission order.
func (l *Ledger) Events(offset, limit uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := uint64(len(l.events))
	if offset >= total || limit == 0 {
		return []Event{}
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	out := make([]Event, 0, end-offset)
	for i := range l.events[offset:end] {
		out = append(out, l.events[offset+uint64(i)].clone())
	}
	return out
}

// commit runs mutate under the write lock and, on success, appends and
// publishes the event it returns. mutate must not change state before it
// can no longer fail.
func (l *Ledger) commit(mutate func() (Event, error)) (*Event, error) {
	l.mu.Lock()
	ev, err := mutate()
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	ev.Seq = uint64(len(l.events)) + 1
	ev.Timestamp = l.now()
	l.events = append(l.events, ev)
	observers := l.observers
	published := ev.clone()
	l.mu.Unlock()

	for _, fn := range observers {
		fn(published.clone())
	}
	return &published, nil
}

func (l *Ledger) ownedTool(caller common.Address, toolID uint64) (*Tool, error) {
	tool, ok := l.tools[toolID]
	if !ok {
		return nil, fmt.Errorf("tool %d: %w", toolID, ErrToolNotFound)
	}
	if tool.Creator != caller {
		return nil, fmt.Errorf("tool %d: %w", toolID, ErrNotToolCreator)
	}
	return tool, nil
}

func (l *Ledger) credit(creator common.Address, amount *big.Int) {
	l.balances[creator] = new(big.Int).Add(l.balanceLocked(creator), amount)
}

func (l *Ledger) balanceLocked(creator common.Address) *big.Int {
	if b, ok := l.balances[creator]; ok {
		return b
	}
	return new(big.Int)
}
