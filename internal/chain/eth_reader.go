package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthReader fetches transactions and receipts from an Ethereum JSON-RPC node.
type EthReader struct {
	client *ethclient.Client
}

func DialEthReader(ctx context.Context, rpcURL string) (*EthReader, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &EthReader{client: cli}, nil
}

func (r *EthReader) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	tx, pending, err := r.client.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	out := &Transaction{Value: tx.Value(), Pending: pending}
	// To is nil for contract creation; those never pay a wallet.
	if to := tx.To(); to != nil {
		out.Recipient = to.Hex()
	}
	return out, nil
}

func (r *EthReader) ConfirmationsByHash(ctx context.Context, hash string) (*Confirmation, error) {
	receipt, err := r.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}

	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}

	conf := &Confirmation{BlockNumber: receipt.BlockNumber.Uint64()}
	if head >= conf.BlockNumber {
		conf.Depth = head - conf.BlockNumber + 1
	}
	return conf, nil
}

func (r *EthReader) Ping(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := r.client.BlockNumber(ctx)
	return err
}

func (r *EthReader) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
