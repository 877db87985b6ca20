package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Day is the rollup of one user's completed transactions for one calendar
// day. There is at most one row per (UserID, Date).
type Day struct {
	UserID            string          `json:"-"`
	Date              string          `json:"date"`
	TotalCredits      decimal.Decimal `json:"total_credits"`
	TotalDebits       decimal.Decimal `json:"total_debits"`
	TotalTransactions int             `json:"total_transactions"`
	TransfersSent     int             `json:"transfers_sent"`
	TransfersReceived int             `json:"transfers_received"`
	BillPayments      int             `json:"bill_payments"`
	AirtimePurchases  int             `json:"airtime_purchases"`
	ClosingBalance    decimal.Decimal `json:"closing_balance"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Summary totals a range of Day rows.
type Summary struct {
	TotalCredits      decimal.Decimal `json:"total_credits"`
	TotalDebits       decimal.Decimal `json:"total_debits"`
	TotalTransactions int             `json:"total_transactions"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
}

// Report is the analytics view for a date range.
type Report struct {
	Daily   []Day   `json:"daily"`
	Summary Summary `json:"summary"`
}

// Repository persists Day rows.
type Repository interface {
	// Upsert replaces the row for (day.UserID, day.Date).
	Upsert(ctx context.Context, day Day) error
	// Range returns rows with from <= Date <= to, oldest first.
	Range(ctx context.Context, userID, from, to string) ([]Day, error)
}
