package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia/escrowd/internal/model"
)

// MemoryBank is an in-process Mover holding per-(account, asset) balances.
// It backs the local build target and tests; balances are funded through
// Credit (a faucet, not part of the Mover surface).
type MemoryBank struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // account -> asset -> balance
	custody  map[string]int64            // asset -> custodied balance
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[string]map[string]int64),
		custody:  make(map[string]int64),
	}
}

// Credit funds an external account.
func (b *MemoryBank) Credit(account string, asset model.Asset, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[account] == nil {
		b.balances[account] = make(map[string]int64)
	}
	b.balances[account][asset.String()] += amount
}

// BalanceOf reports an external account balance.
func (b *MemoryBank) BalanceOf(account string, asset model.Asset) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account][asset.String()]
}

// CustodyBalance reports funds held in custody for an asset.
func (b *MemoryBank) CustodyBalance(asset model.Asset) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody[asset.String()]
}

func (b *MemoryBank) TransferIn(ctx context.Context, asset model.Asset, from string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := asset.String()
	if b.balances[from][key] < amount {
		return fmt.Errorf("%w: account %s holds %d of %s, need %d",
			model.ErrTransferFailed, from, b.balances[from][key], key, amount)
	}
	b.balances[from][key] -= amount
	b.custody[key] += amount
	return nil
}

func (b *MemoryBank) TransferOut(ctx context.Context, asset model.Asset, to string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := asset.String()
	if b.custody[key] < amount {
		return fmt.Errorf("%w: custody holds %d of %s, need %d",
			model.ErrTransferFailed, b.custody[key], key, amount)
	}
	b.custody[key] -= amount
	if b.balances[to] == nil {
		b.balances[to] = make(map[string]int64)
	}
	b.balances[to][key] += amount
	return nil
}
