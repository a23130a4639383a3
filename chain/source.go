// Package chain resolves transaction references into finalized outcomes,
// either over JSON-RPC or from an in-process simulated registry.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTxNotFound means the reference does not resolve to a mined transaction.
var ErrTxNotFound = errors.New("chain: transaction not found")

// Outcome is the finalized result of a transaction.
type Outcome struct {
	Hash    common.Hash
	Success bool
	To      common.Address
	Logs    []*types.Log
}

// Source looks up transaction outcomes. Implementations return
// ErrTxNotFound for unknown hashes and any other error for transport
// failures.
type Source interface {
	TransactionOutcome(ctx context.Context, hash common.Hash) (*Outcome, error)
}

// ParseTxHash parses a 0x-prefixed 32-byte hex transaction hash.
func ParseTxHash(ref string) (common.Hash, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "0x") && !strings.HasPrefix(ref, "0X") {
		return common.Hash{}, fmt.Errorf("transaction hash %q: missing 0x prefix", ref)
	}
	raw := ref[2:]
	if len(raw) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("transaction hash %q: want %d hex chars", ref, 2*common.HashLength)
	}
	for _, r := range raw {
		if !isHex(r) {
			return common.Hash{}, fmt.Errorf("transaction hash %q: invalid hex", ref)
		}
	}
	return common.HexToHash(raw), nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
