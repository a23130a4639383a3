package chain

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Simulated is an in-process chain hosting a single ToolRegistry ledger and
// its payment token. Every submitted operation becomes a mined transaction
// whose outcome can be looked up by hash, like on a real node.
type Simulated struct {
	registry     *ledger.Ledger
	token        *ledger.MemoryToken
	tokenAddress common.Address
	salt         [8]byte

	mu       sync.Mutex
	nonce    uint64
	outcomes map[common.Hash]*Outcome
}

// NewSimulated deploys a fresh registry at registryAddress settling in a
// fresh token at tokenAddress.
func NewSimulated(registryAddress, tokenAddress common.Address, opts ...ledger.Option) *Simulated {
	token := ledger.NewMemoryToken()
	s := &Simulated{
		registry:     ledger.New(registryAddress, token, opts...),
		token:        token,
		tokenAddress: tokenAddress,
		outcomes:     make(map[common.Hash]*Outcome),
	}
	_, _ = rand.Read(s.salt[:])
	return s
}

// Ledger exposes the hosted registry for reads.
func (s *Simulated) Ledger() *ledger.Ledger {
	return s.registry
}

// Token exposes the hosted token for reads.
func (s *Simulated) Token() *ledger.MemoryToken {
	return s.token
}

// RegistryAddress is the destination of registry transactions.
func (s *Simulated) RegistryAddress() common.Address {
	return s.registry.Address()
}

// TokenAddress is the destination of token transactions.
func (s *Simulated) TokenAddress() common.Address {
	return s.tokenAddress
}

// Submit executes op as a registry transaction sent by caller. A rejected
// op is still mined, as a failed transaction without logs, and its error is
// returned alongside the hash.
func (s *Simulated) Submit(caller common.Address, op func(*ledger.Ledger) (*ledger.Event, error)) (common.Hash, *ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := s.nextHashLocked(caller)
	out := &Outcome{Hash: hash, To: s.registry.Address()}
	ev, opErr := op(s.registry)
	if opErr == nil {
		lg, err := EncodeEvent(s.registry.Address(), *ev)
		if err != nil {
			return common.Hash{}, nil, err
		}
		lg.TxHash = hash
		out.Success = true
		out.Logs = []*types.Log{lg}
	}
	s.outcomes[hash] = out
	return hash, ev, opErr
}

// Approve records an ERC-20 approve transaction from owner to the registry.
func (s *Simulated) Approve(owner common.Address, amount *big.Int) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := s.nextHashLocked(owner)
	ok := s.token.Approve(owner, s.registry.Address(), amount)
	s.outcomes[hash] = &Outcome{Hash: hash, Success: ok, To: s.tokenAddress}
	return hash
}

// Record stores an arbitrary outcome, e.g. a transaction to another
// contract. A zero Hash is replaced with a fresh one.
func (s *Simulated) Record(out Outcome) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.Hash == (common.Hash{}) {
		out.Hash = s.nextHashLocked(out.To)
	}
	s.outcomes[out.Hash] = &out
	return out.Hash
}

// TransactionOutcome implements Source.
func (s *Simulated) TransactionOutcome(ctx context.Context, hash common.Hash) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulated outcome: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outcomes[hash]
	if !ok {
		return nil, ErrTxNotFound
	}
	cp := *out
	cp.Logs = append([]*types.Log(nil), out.Logs...)
	return &cp, nil
}

func (s *Simulated) nextHashLocked(sender common.Address) common.Hash {
	s.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.nonce)
	return crypto.Keccak256Hash(s.salt[:], sender.Bytes(), nonce[:])
}
