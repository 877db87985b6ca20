package beneficiary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "beneficiary_not_found", "beneficiary not found")
	ErrSelf     = apperr.New(apperr.KindValidation, "beneficiary_self", "cannot add yourself as a beneficiary")
)

// Contact holds rolling statistics for one (owner, counterparty) pair.
type Contact struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"-"`
	BeneficiaryID     string          `json:"beneficiary_id"`
	Name              string          `json:"beneficiary_name"`
	Phone             string          `json:"beneficiary_phone"`
	AccountNumber     string          `json:"beneficiary_account"`
	Nickname          string          `json:"nickname"`
	IsFavorite        bool            `json:"is_favorite"`
	TotalSent         decimal.Decimal `json:"total_sent"`
	TransactionCount  int             `json:"transaction_count"`
	LastTransactionAt *time.Time      `json:"last_transaction_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Repository persists contacts. Name, Phone and AccountNumber are filled
// by the service and not stored.
type Repository interface {
	// RecordTransfer creates the pair if needed and atomically adds amount
	// to its totals.
	RecordTransfer(ctx context.Context, ownerID, beneficiaryID string, amount decimal.Decimal, at time.Time) error
	Upsert(ctx context.Context, contact Contact) (Contact, error)
	SetFavorite(ctx context.Context, ownerID, beneficiaryID string, favorite bool) (Contact, error)
	List(ctx context.Context, ownerID string, favoritesOnly bool) ([]Contact, error)
}
