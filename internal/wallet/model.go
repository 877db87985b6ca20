package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "wallet_not_found", "wallet not found")
	ErrExists            = apperr.New(apperr.KindConflict, "wallet_exists", "wallet already exists for owner")
	ErrInactive          = apperr.New(apperr.KindWalletInactive, "wallet_inactive", "wallet is inactive")
	ErrFrozen            = apperr.New(apperr.KindWalletFrozen, "wallet_frozen", "wallet is frozen")
	ErrInsufficientFunds = apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds")
	ErrLockNotHeld       = apperr.New(apperr.KindInternal, "wallet_lock_not_held", "wallet balance changed without holding its lock")
)

// Wallet is a user's stored-value account.
type Wallet struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	IsFrozen  bool            `json:"is_frozen"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Usable returns ErrInactive or ErrFrozen when the wallet cannot move funds.
func (w Wallet) Usable() error {
	if !w.IsActive {
		return ErrInactive
	}
	if w.IsFrozen {
		return ErrFrozen
	}
	return nil
}

// LockKey is the unit-of-work lock guarding the wallet's balance.
func LockKey(id string) string {
	return "wallet:" + id
}
