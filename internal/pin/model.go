package pin

import (
	"fmt"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	ErrNotSet        = apperr.New(apperr.KindValidation, "pin_not_set", "transaction PIN has not been set")
	ErrInvalid       = apperr.New(apperr.KindPinInvalid, "pin_invalid", "invalid transaction PIN")
	ErrLocked        = apperr.New(apperr.KindPinLocked, "pin_locked", "transaction PIN is locked")
	ErrInvalidFormat = apperr.New(apperr.KindValidation, "pin_invalid_format", "PIN must be exactly 4 digits")
	ErrMismatch      = apperr.New(apperr.KindValidation, "pin_mismatch", "PIN and confirmation do not match")
)

// Record is the stored transaction PIN of a user.
type Record struct {
	UserID         string
	Hash           []byte
	IsActive       bool
	FailedAttempts int
	LockedUntil    *time.Time
	UpdatedAt      time.Time
}

// Status is the caller-visible state of a user's PIN.
type Status struct {
	IsSet       bool       `json:"is_set"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// InvalidError reports a wrong PIN and the attempts left before lockout.
type InvalidError struct {
	Remaining int
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid transaction PIN, %d attempt(s) remaining", e.Remaining)
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// LockoutError reports that the PIN is locked until Until.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("transaction PIN locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Unwrap() error { return ErrLocked }

func lockKey(userID string) string {
	return "pin:" + userID
}
