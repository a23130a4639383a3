package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC reads outcomes from a JSON-RPC node.
type RPC struct {
	client *ethclient.Client
}

// DialRPC connects to the node at url.
func DialRPC(ctx context.Context, url string) (*RPC, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return &RPC{client: client}, nil
}

// TransactionOutcome combines the receipt (status, logs) with the
// transaction itself (destination).
func (r *RPC) TransactionOutcome(ctx context.Context, hash common.Hash) (*Outcome, error) {
	receipt, err := r.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	tx, _, err := r.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}

	out := &Outcome{
		Hash:    hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		Logs:    receipt.Logs,
	}
	if to := tx.To(); to != nil {
		out.To = *to
	}
	return out, nil
}

// Close releases the underlying connection.
func (r *RPC) Close() {
	r.client.Close()
}
