package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the fungible-token collaborator the ledger pulls payments from and
// pushes withdrawals through. spender/from make msg.sender explicit.
// A false return is a failed transfer and must abort the calling operation.
type Token interface {
	TransferFrom(spender, from, to common.Address, amount *big.Int) bool
	Transfer(from, to common.Address, amount *big.Int) bool
	Approve(owner, spender common.Address, amount *big.Int) bool
	BalanceOf(owner common.Address) *big.Int
}

// MemoryToken is an in-process ERC-20 with standard allowance semantics.
type MemoryToken struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewMemoryToken returns an empty token.
func NewMemoryToken() *MemoryToken {
	return &MemoryToken{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount to owner out of thin air.
func (t *MemoryToken) Mint(owner common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Add(t.balanceLocked(owner), amount)
	return true
}

func (t *MemoryToken) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balanceLocked(owner))
}

// Allowance returns how much spender may still pull from owner.
func (t *MemoryToken) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowanceLocked(owner, spender))
}

func (t *MemoryToken) Approve(owner, spender common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	return true
}

func (t *MemoryToken) Transfer(from, to common.Address, amount *big.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

func (t *MemoryToken) TransferFrom(spender, from, to common.Address, amount *big.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowanceLocked(from, spender)
	if amount == nil || allowed.Cmp(amount) < 0 {
		return false
	}
	if !t.moveLocked(from, to, amount) {
		return false
	}
	if t.allowances[from] == nil {
		t.allowances[from] = make(map[common.Address]*big.Int)
	}
	t.allowances[from][spender] = new(big.Int).Sub(allowed, amount)
	return true
}

func (t *MemoryToken) moveLocked(from, to common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	balance := t.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return false
	}
	t.balances[from] = new(big.Int).Sub(balance, amount)
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	return true
}

func (t *MemoryToken) balanceLocked(owner common.Address) *big.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

func (t *MemoryToken) allowanceLocked(owner, spender common.Address) *big.Int {
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}
