package chain

import (
	"context"
	"math/big"
)

// Transaction is the subset of an on-chain transaction the gateway inspects.
type Transaction struct {
	Recipient string
	Value     *big.Int
	Pending   bool
}

// Confirmation reports how deep a mined transaction sits below the head.
type Confirmation struct {
	BlockNumber uint64
	Depth       uint64
}

// Reader is read-only access to a blockchain node. Both lookups return
// (nil, nil) when the hash is unknown to the node.
type Reader interface {
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	ConfirmationsByHash(ctx context.Context, hash string) (*Confirmation, error)
}

// HealthChecker is implemented by readers backed by a live node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
