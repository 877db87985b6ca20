package identity

import (
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	ErrNotFound     = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrExists       = apperr.New(apperr.KindConflict, "user_exists", "a user with this phone number already exists")
	ErrInvalidPhone = apperr.New(apperr.KindValidation, "invalid_phone", "phone number is required")
	ErrEmptyLookup  = apperr.New(apperr.KindValidation, "invalid_lookup", "phone number or account number is required")
)

// User represents a registered wallet owner.
type User struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone_number"`
	AccountNumber string    `json:"account_number"`
	FullName      string    `json:"full_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterInput is the data needed to onboard a user.
type RegisterInput struct {
	Phone    string
	FullName string
}

// Lookup identifies a counterparty by account number or phone. The
// account number wins when both are set.
type Lookup struct {
	Phone         string `json:"phone_number"`
	AccountNumber string `json:"account_number"`
}
