package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/store"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

var ErrInvalidRange = apperr.New(apperr.KindValidation, "invalid_range", "invalid date range")

// Event announces that a wallet gained a completed transaction at At.
type Event struct {
	UserID   string
	WalletID string
	At       time.Time
}

// Service maintains the per-user daily rollups.
type Service struct {
	tx      store.Manager
	ledger  *ledger.Service
	wallets *wallet.Service
	repo    Repository
	loc     *time.Location
	now     func() time.Time
}

// NewService builds an aggregator. Day boundaries are computed in loc.
func NewService(tx store.Manager, ledgerSvc *ledger.Service, wallets *wallet.Service, repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{tx: tx, ledger: ledgerSvc, wallets: wallets, repo: repo, loc: loc, now: time.Now}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordEvent recomputes the row for the event's day from the ledger and
// snapshots the wallet's current balance as the closing balance. Calling it
// again for the same event writes the same row.
func (s *Service) RecordEvent(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	return s.refresh(ctx, ev.UserID, ev.WalletID, s.dayStart(ev.At), true)
}

// Rebuild recomputes every day in [from, to] that has completed
// transactions. Closing balances are taken from each day's last entry.
func (s *Service) Rebuild(ctx context.Context, userID, walletID string, from, to time.Time) (int, error) {
	start, end := s.dayStart(from), s.dayStart(to)
	if end.Before(start) {
		return 0, ErrInvalidRange
	}
	n := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := s.refresh(ctx, userID, walletID, day, false); err != nil {
			return n, fmt.Errorf("rebuild %s: %w", day.Format(dateLayout), err)
		}
		n++
	}
	return n, nil
}

// Report returns the rows for the days in [from, to] and their totals.
func (s *Service) Report(ctx context.Context, userID, walletID string, from, to time.Time) (Report, error) {
	start, end := s.dayStart(from), s.dayStart(to)
	if end.Before(start) {
		return Report{}, ErrInvalidRange
	}
	days, err := s.repo.Range(ctx, userID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return Report{}, err
	}
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return Report{}, err
	}

	sum := Summary{TotalCredits: decimal.Zero, TotalDebits: decimal.Zero, CurrentBalance: w.Balance}
	for _, d := range days {
		sum.TotalCredits = sum.TotalCredits.Add(d.TotalCredits)
		sum.TotalDebits = sum.TotalDebits.Add(d.TotalDebits)
		sum.TotalTransactions += d.TotalTransactions
	}
	return Report{Daily: days, Summary: sum}, nil
}

func (s *Service) dayStart(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// refresh serialises writers of one (user, day) row so a slow recompute
// cannot overwrite a newer one.
func (s *Service) refresh(ctx context.Context, userID, walletID string, day time.Time, snapshot bool) error {
	date := day.Format(dateLayout)
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Lock(ctx, "analytics:"+userID+":"+date); err != nil {
			return err
		}
		txns, err := s.ledger.CompletedBetween(ctx, walletID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			return nil
		}

		row := aggregate(txns)
		row.UserID = userID
		row.Date = date
		row.UpdatedAt = s.now().UTC()
		if snapshot {
			w, err := s.wallets.Get(ctx, walletID)
			if err != nil {
				return err
			}
			row.ClosingBalance = w.Balance
		}
		return s.repo.Upsert(ctx, row)
	})
}

// aggregate folds a day's completed rows. ClosingBalance is the balance
// after the latest entry.
func aggregate(txns []ledger.Transaction) Day {
	d := Day{TotalCredits: decimal.Zero, TotalDebits: decimal.Zero, ClosingBalance: decimal.Zero}
	var last time.Time
	for _, t := range txns {
		d.TotalTransactions++
		if t.Type == ledger.TypeCredit {
			d.TotalCredits = d.TotalCredits.Add(t.Amount)
			if t.Category == ledger.CategoryTransfer {
				d.TransfersReceived++
			}
		} else {
			d.TotalDebits = d.TotalDebits.Add(t.Amount)
			switch {
			case t.Category == ledger.CategoryTransfer:
				d.TransfersSent++
			case t.Category == ledger.CategoryBillPayment && t.BillType == ledger.BillAirtime:
				d.AirtimePurchases++
			case t.Category == ledger.CategoryBillPayment:
				d.BillPayments++
			}
		}
		if t.CompletedAt != nil && t.BalanceAfter.Valid && !t.CompletedAt.Before(last) {
			last = *t.CompletedAt
			d.ClosingBalance = t.BalanceAfter.Decimal
		}
	}
	return d
}
