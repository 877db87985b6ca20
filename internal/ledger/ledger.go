package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	ErrNotFound           = apperr.New(apperr.KindNotFound, "transaction_not_found", "transaction not found")
	ErrNotPending         = apperr.New(apperr.KindConflict, "transaction_not_pending", "transaction is no longer pending")
	ErrInvalidEntry       = apperr.New(apperr.KindValidation, "invalid_transaction", "invalid transaction")
	ErrBalanceMismatch    = apperr.New(apperr.KindInternal, "balance_mismatch", "balance after does not match amount and balance before")
	ErrDuplicateReference = apperr.New(apperr.KindConflict, "duplicate_reference", "transaction reference already exists")
)

// Type is the direction of a ledger row relative to its wallet.
type Type string

const (
	TypeCredit Type = "credit"
	TypeDebit  Type = "debit"
)

// Category is the business event that produced a ledger row.
type Category string

const (
	CategoryTransfer    Category = "transfer"
	CategoryDeposit     Category = "deposit"
	CategoryBillPayment Category = "bill_payment"
)

// Status is the lifecycle state of a ledger row. Only pending rows change.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// BillType qualifies bill payments.
type BillType string

const (
	BillAirtime     BillType = "airtime"
	BillData        BillType = "data"
	BillElectricity BillType = "electricity"
	BillCableTV     BillType = "cable_tv"
)

// Valid reports whether b is a known bill type.
func (b BillType) Valid() bool {
	switch b {
	case BillAirtime, BillData, BillElectricity, BillCableTV:
		return true
	}
	return false
}

// Transaction is one immutable ledger row owned by a single wallet. A
// transfer produces two rows, a debit and a credit, sharing CorrelationID.
type Transaction struct {
	ID                string              `json:"id"`
	Reference         string              `json:"reference"`
	CorrelationID     string              `json:"correlation_id"`
	WalletID          string              `json:"wallet_id"`
	Type              Type                `json:"type"`
	Category          Category            `json:"category"`
	BillType          BillType            `json:"bill_type,omitempty"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          string              `json:"currency"`
	SenderWalletID    string              `json:"sender_wallet_id,omitempty"`
	RecipientWalletID string              `json:"recipient_wallet_id,omitempty"`
	BalanceBefore     decimal.Decimal     `json:"balance_before"`
	BalanceAfter      decimal.NullDecimal `json:"balance_after"`
	Status            Status              `json:"status"`
	Description       string              `json:"description,omitempty"`
	Narration         string              `json:"narration,omitempty"`
	Metadata          map[string]string   `json:"metadata,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

// Signed returns the amount with the sign of the row's direction.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Filter narrows history queries. Zero fields match everything.
type Filter struct {
	Type     Type
	Status   Status
	Category Category
	From     time.Time
	To       time.Time
}

// Repository persists ledger rows. Implementations never modify amount,
// balance_before, type or category after Insert.
type Repository interface {
	Insert(ctx context.Context, txn Transaction) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	GetByID(ctx context.Context, id string) (Transaction, error)
	GetByReference(ctx context.Context, walletID, reference string) (Transaction, error)
	// Transition moves a row out of pending. It returns ErrNotPending when
	// the row is not pending.
	Transition(ctx context.Context, id string, to Status, balanceAfter decimal.NullDecimal, completedAt *time.Time) error
	List(ctx context.Context, walletID string, filter Filter, limit, offset int) ([]Transaction, int, error)
	CompletedBetween(ctx context.Context, walletID string, from, to time.Time) ([]Transaction, error)
	FailPendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
