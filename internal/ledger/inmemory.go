package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

type inMemoryRepository struct {
	mu    sync.RWMutex
	rows  map[string]Transaction
	byRef map[string]string
}

// NewInMemory creates a concurrency-safe in-memory ledger repository.
func NewInMemory() Repository {
	return &inMemoryRepository{rows: make(map[string]Transaction), byRef: make(map[string]string)}
}

func (r *inMemoryRepository) Insert(ctx context.Context, txn Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[txn.Reference]; exists {
		return ErrDuplicateReference
	}
	r.rows[txn.ID] = txn
	r.byRef[txn.Reference] = txn.ID
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.rows, txn.ID)
		delete(r.byRef, txn.Reference)
		r.mu.Unlock()
	})
	return nil
}

func (r *inMemoryRepository) ReferenceExists(_ context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRef[reference]
	return ok, nil
}

func (r *inMemoryRepository) GetByID(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txn, ok := r.rows[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (r *inMemoryRepository) GetByReference(_ context.Context, walletID, reference string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRef[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	txn := r.rows[id]
	if txn.WalletID != walletID {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (r *inMemoryRepository) Transition(ctx context.Context, id string, to Status, balanceAfter decimal.NullDecimal, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	if prev.Status != StatusPending {
		return ErrNotPending
	}
	next := prev
	next.Status = to
	next.BalanceAfter = balanceAfter
	next.CompletedAt = completedAt
	r.rows[id] = next
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		r.rows[id] = prev
		r.mu.Unlock()
	})
	return nil
}

func (r *inMemoryRepository) List(_ context.Context, walletID string, filter Filter, limit, offset int) ([]Transaction, int, error) {
	r.mu.RLock()
	matched := make([]Transaction, 0)
	for _, txn := range r.rows {
		if txn.WalletID == walletID && matches(txn, filter) {
			matched = append(matched, txn)
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	if offset >= total {
		return []Transaction{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *inMemoryRepository) CompletedBetween(_ context.Context, walletID string, from, to time.Time) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, txn := range r.rows {
		if txn.WalletID != walletID || txn.Status != StatusCompleted || txn.CompletedAt == nil {
			continue
		}
		at := *txn.CompletedAt
		if at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *inMemoryRepository) FailPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, txn := range r.rows {
		if txn.Status != StatusPending || !txn.CreatedAt.Before(cutoff) {
			continue
		}
		prev := txn
		txn.Status = StatusFailed
		r.rows[id] = txn
		store.OnRollback(ctx, func() {
			r.mu.Lock()
			r.rows[prev.ID] = prev
			r.mu.Unlock()
		})
		n++
	}
	return n, nil
}

func matches(txn Transaction, f Filter) bool {
	if f.Type != "" && txn.Type != f.Type {
		return false
	}
	if f.Status != "" && txn.Status != f.Status {
		return false
	}
	if f.Category != "" && txn.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && txn.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !txn.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// sortNewestFirst orders by creation time, then reference, descending.
// References are time-ordered so the tie-break keeps insertion order.
func sortNewestFirst(txns []Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].Reference > txns[j].Reference
	})
}
