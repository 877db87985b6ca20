package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	referenceAttempts = 3
)

// Service owns the transaction ledger.
type Service struct {
	repo Repository
	refs *ReferenceGenerator
	now  func() time.Time
}

// NewService builds a ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, refs: NewReferenceGenerator(), now: time.Now}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PendingEntry describes a ledger row about to be written.
type PendingEntry struct {
	WalletID          string
	CorrelationID     string
	Type              Type
	Category          Category
	BillType          BillType
	Amount            decimal.Decimal
	Currency          string
	SenderWalletID    string
	RecipientWalletID string
	BalanceBefore     decimal.Decimal
	Description       string
	Narration         string
	Metadata          map[string]string
}

func (e PendingEntry) validate() error {
	if e.WalletID == "" {
		return fmt.Errorf("%w: wallet is required", ErrInvalidEntry)
	}
	if e.Type != TypeCredit && e.Type != TypeDebit {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	}
	switch e.Category {
	case CategoryTransfer, CategoryDeposit:
	case CategoryBillPayment:
		if e.Type != TypeDebit || !e.BillType.Valid() {
			return fmt.Errorf("%w: bill payment must be a debit with a known bill type", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, e.Category)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	return nil
}

// RecordPending inserts a pending row with a freshly generated reference.
func (s *Service) RecordPending(ctx context.Context, entry PendingEntry) (Transaction, error) {
	if err := entry.validate(); err != nil {
		return Transaction{}, err
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = uuid.NewString()
	}

	now := s.now().UTC()
	txn := Transaction{
		ID:                uuid.NewString(),
		CorrelationID:     entry.CorrelationID,
		WalletID:          entry.WalletID,
		Type:              entry.Type,
		Category:          entry.Category,
		BillType:          entry.BillType,
		Amount:            entry.Amount,
		Currency:          entry.Currency,
		SenderWalletID:    entry.SenderWalletID,
		RecipientWalletID: entry.RecipientWalletID,
		BalanceBefore:     entry.BalanceBefore,
		Status:            StatusPending,
		Description:       entry.Description,
		Narration:         entry.Narration,
		Metadata:          entry.Metadata,
		CreatedAt:         now,
	}

	for attempt := 0; attempt < referenceAttempts; attempt++ {
		txn.Reference = s.refs.New(now)
		exists, err := s.repo.ReferenceExists(ctx, txn.Reference)
		if err != nil {
			return Transaction{}, err
		}
		if exists {
			continue
		}
		err = s.repo.Insert(ctx, txn)
		if errors.Is(err, ErrDuplicateReference) {
			continue
		}
		if err != nil {
			return Transaction{}, err
		}
		return txn, nil
	}
	return Transaction{}, ErrDuplicateReference
}

// MarkCompleted moves txn to completed after checking that balanceAfter
// follows from its balance before and amount.
func (s *Service) MarkCompleted(ctx context.Context, txn Transaction, balanceAfter decimal.Decimal) (Transaction, error) {
	expected := txn.BalanceBefore.Add(txn.Signed())
	if !expected.Equal(balanceAfter) {
		return Transaction{}, fmt.Errorf("%w: %s %s %s gives %s, got %s", ErrBalanceMismatch,
			txn.BalanceBefore.StringFixed(2), txn.Type, txn.Amount.StringFixed(2), expected.StringFixed(2), balanceAfter.StringFixed(2))
	}

	now := s.now().UTC()
	after := decimal.NewNullDecimal(balanceAfter)
	if err := s.repo.Transition(ctx, txn.ID, StatusCompleted, after, &now); err != nil {
		return Transaction{}, err
	}
	txn.Status = StatusCompleted
	txn.BalanceAfter = after
	txn.CompletedAt = &now
	return txn, nil
}

// MarkFailed moves a pending row to failed. Failing an already failed row
// is a no-op; failing a completed row returns ErrNotPending.
func (s *Service) MarkFailed(ctx context.Context, id string) error {
	err := s.repo.Transition(ctx, id, StatusFailed, decimal.NullDecimal{}, nil)
	if errors.Is(err, ErrNotPending) {
		current, getErr := s.repo.GetByID(ctx, id)
		if getErr == nil && current.Status == StatusFailed {
			return nil
		}
	}
	return err
}

// Get returns the wallet's transaction with the given reference.
func (s *Service) Get(ctx context.Context, walletID, reference string) (Transaction, error) {
	return s.repo.GetByReference(ctx, walletID, reference)
}

// PageRequest selects a page of history. Number starts at 1.
type PageRequest struct {
	Number int
	Size   int
}

func (p PageRequest) normalize() PageRequest {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Page is one page of history, newest first.
type Page struct {
	Items      []Transaction `json:"results"`
	Total      int           `json:"count"`
	Number     int           `json:"page"`
	Size       int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// List returns the wallet's history matching filter.
func (s *Service) List(ctx context.Context, walletID string, filter Filter, page PageRequest) (Page, error) {
	page = page.normalize()
	items, total, err := s.repo.List(ctx, walletID, filter, page.Size, (page.Number-1)*page.Size)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return Page{
		Items:      items,
		Total:      total,
		Number:     page.Number,
		Size:       page.Size,
		TotalPages: (total + page.Size - 1) / page.Size,
	}, nil
}

// CompletedBetween returns completed rows whose completion time is in [from, to).
func (s *Service) CompletedBetween(ctx context.Context, walletID string, from, to time.Time) ([]Transaction, error) {
	return s.repo.CompletedBetween(ctx, walletID, from, to)
}

// Summary totals completed movements of a wallet.
type Summary struct {
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalSent     decimal.Decimal `json:"total_sent"`
	Count         int             `json:"transaction_count"`
}

// Summarize returns totals for completed rows in [from, to).
func (s *Service) Summarize(ctx context.Context, walletID string, from, to time.Time) (Summary, error) {
	txns, err := s.repo.CompletedBetween(ctx, walletID, from, to)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{TotalReceived: decimal.Zero, TotalSent: decimal.Zero}
	for _, t := range txns {
		if t.Type == TypeCredit {
			sum.TotalReceived = sum.TotalReceived.Add(t.Amount)
		} else {
			sum.TotalSent = sum.TotalSent.Add(t.Amount)
		}
		sum.Count++
	}
	return sum, nil
}

// ExpireStale fails pending rows older than maxAge. Pending rows only
// survive a unit that committed without resolving them, so they never
// carry a balance change.
func (s *Service) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.FailPendingBefore(ctx, s.now().UTC().Add(-maxAge))
}
