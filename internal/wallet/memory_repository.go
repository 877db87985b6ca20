package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
	byOwner map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet), byOwner: make(map[string]string)}
}

func (r *memoryRepository) Create(ctx context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return ErrExists
	}
	if _, exists := r.byOwner[wallet.OwnerID]; exists {
		return ErrExists
	}
	r.storage[wallet.ID] = wallet
	r.byOwner[wallet.OwnerID] = wallet.ID
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.storage, wallet.ID)
		delete(r.byOwner, wallet.OwnerID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, ownerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[ownerID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.storage[id], nil
}

// GetForUpdate relies on the keyed lock taken by the service.
func (r *memoryRepository) GetForUpdate(ctx context.Context, id string) (Wallet, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	return r.update(ctx, id, func(w *Wallet) {
		w.Balance = balance
		w.UpdatedAt = at
	})
}

func (r *memoryRepository) UpdateFlags(ctx context.Context, id string, active, frozen bool, at time.Time) error {
	return r.update(ctx, id, func(w *Wallet) {
		w.IsActive = active
		w.IsFrozen = frozen
		w.UpdatedAt = at
	})
}

func (r *memoryRepository) update(ctx context.Context, id string, mutate func(w *Wallet)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	next := prev
	mutate(&next)
	r.storage[id] = next
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		r.storage[id] = prev
		r.mu.Unlock()
	})
	return nil
}
