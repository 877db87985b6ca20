package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// SeedBalance credits a wallet directly under its lock, bypassing the
// ledger. Intended for tests that need a funded wallet.
func SeedBalance(ctx context.Context, tx store.Manager, svc *Service, id string, amount decimal.Decimal) error {
	return tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.LockAndRead(ctx, id); err != nil {
			return err
		}
		_, err := svc.ApplyDelta(ctx, id, amount)
		return err
	})
}
