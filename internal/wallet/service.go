package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/store"
)

// DefaultCurrency is used when a wallet is created without one.
const DefaultCurrency = "USD"

var errInvalidOwner = apperr.New(apperr.KindValidation, "invalid_owner", "owner id must be a UUID")

// Service is the only component allowed to change wallet balances.
type Service struct {
	tx       store.Manager
	repo     Repository
	currency string
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(tx store.Manager, repo Repository, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	return &Service{tx: tx, repo: repo, currency: strings.ToUpper(defaultCurrency), now: time.Now}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions the owner's wallet with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, errInvalidOwner
	}

	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = s.currency
	}

	now := s.now().UTC()
	wallet := Wallet{
		ID:        uuid.New().String(),
		OwnerID:   input.OwnerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the user's wallet.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// LockAndRead takes the wallet's exclusive lock for the current unit of work
// and returns its state as of acquisition.
func (s *Service) LockAndRead(ctx context.Context, id string) (Wallet, error) {
	if err := store.Lock(ctx, LockKey(id)); err != nil {
		return Wallet{}, err
	}
	return s.repo.GetForUpdate(ctx, id)
}

// LockAll locks every listed wallet in ascending id order. Duplicates are
// locked once.
func (s *Service) LockAll(ctx context.Context, ids ...string) (map[string]Wallet, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	locked := make(map[string]Wallet, len(unique))
	for _, id := range unique {
		w, err := s.LockAndRead(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

// ApplyDelta adds delta (negative for debits) to the wallet balance. The
// caller must hold the wallet's lock in the current unit of work.
func (s *Service) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (Wallet, error) {
	if !store.Holds(ctx, LockKey(id)) {
		return Wallet{}, ErrLockNotHeld
	}
	w, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	if err := w.Usable(); err != nil {
		return Wallet{}, err
	}

	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return Wallet{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, w.Balance.StringFixed(2), delta.Neg().StringFixed(2))
	}

	now := s.now().UTC()
	if err := s.repo.UpdateBalance(ctx, id, next, now); err != nil {
		return Wallet{}, err
	}
	w.Balance = next
	w.UpdatedAt = now
	return w, nil
}

// SetFrozen freezes or unfreezes the wallet.
func (s *Service) SetFrozen(ctx context.Context, id string, frozen bool) (Wallet, error) {
	return s.setFlags(ctx, id, func(w *Wallet) { w.IsFrozen = frozen })
}

// SetActive activates or deactivates the wallet.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Wallet, error) {
	return s.setFlags(ctx, id, func(w *Wallet) { w.IsActive = active })
}

func (s *Service) setFlags(ctx context.Context, id string, mutate func(w *Wallet)) (Wallet, error) {
	var out Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.LockAndRead(ctx, id)
		if err != nil {
			return err
		}
		mutate(&w)
		w.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateFlags(ctx, id, w.IsActive, w.IsFrozen, w.UpdatedAt); err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}
