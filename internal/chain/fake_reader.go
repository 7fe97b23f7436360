package chain

import (
	"context"
	"strings"
	"sync"
)

// FakeReader serves fixture transactions from memory. Used in tests and in
// local runs without an RPC node.
type FakeReader struct {
	mu            sync.RWMutex
	transactions  map[string]Transaction
	confirmations map[string]Confirmation
	err           error
}

func NewFakeReader() *FakeReader {
	return &FakeReader{
		transactions:  make(map[string]Transaction),
		confirmations: make(map[string]Confirmation),
	}
}

// AddTransaction registers a mined fixture with the given confirmation depth.
func (f *FakeReader) AddTransaction(hash string, tx Transaction, depth uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(hash)
	f.transactions[key] = tx
	f.confirmations[key] = Confirmation{BlockNumber: 1, Depth: depth}
}

// Fail makes every lookup return err, emulating an unreachable node.
func (f *FakeReader) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeReader) TransactionByHash(_ context.Context, hash string) (*Transaction, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.transactions[strings.ToLower(hash)]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (f *FakeReader) ConfirmationsByHash(_ context.Context, hash string) (*Confirmation, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	conf, ok := f.confirmations[strings.ToLower(hash)]
	if !ok {
		return nil, nil
	}
	return &conf, nil
}
