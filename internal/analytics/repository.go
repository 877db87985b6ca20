package analytics

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// PostgresRepository stores rollups in the transaction_analytics table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed analytics repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes the row, replacing any previous aggregate for the same day.
func (r *PostgresRepository) Upsert(ctx context.Context, d Day) error {
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return err
	}
	_, err = store.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transaction_analytics (
            user_id, date, total_credits, total_debits, total_transactions,
            transfers_sent, transfers_received, bill_payments, airtime_purchases,
            closing_balance, updated_at)
        VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (user_id, date) DO UPDATE SET
            total_credits = EXCLUDED.total_credits,
            total_debits = EXCLUDED.total_debits,
            total_transactions = EXCLUDED.total_transactions,
            transfers_sent = EXCLUDED.transfers_sent,
            transfers_received = EXCLUDED.transfers_received,
            bill_payments = EXCLUDED.bill_payments,
            airtime_purchases = EXCLUDED.airtime_purchases,
            closing_balance = EXCLUDED.closing_balance,
            updated_at = EXCLUDED.updated_at`,
		userID, d.Date, d.TotalCredits, d.TotalDebits, d.TotalTransactions,
		d.TransfersSent, d.TransfersReceived, d.BillPayments, d.AirtimePurchases,
		d.ClosingBalance, d.UpdatedAt.UTC())
	return err
}

// Range returns the user's rows between two dates inclusive.
func (r *PostgresRepository) Range(ctx context.Context, userID, from, to string) ([]Day, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return []Day{}, nil
	}
	rows, err := store.Conn(ctx, r.db).Query(ctx, `SELECT to_char(date, 'YYYY-MM-DD'), total_credits, total_debits,
            total_transactions, transfers_sent, transfers_received, bill_payments, airtime_purchases,
            closing_balance, updated_at
        FROM transaction_analytics
        WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date
        ORDER BY date`, uid, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Day, 0)
	for rows.Next() {
		d := Day{UserID: userID}
		if err := rows.Scan(&d.Date, &d.TotalCredits, &d.TotalDebits, &d.TotalTransactions,
			&d.TransfersSent, &d.TransfersReceived, &d.BillPayments, &d.AirtimePurchases,
			&d.ClosingBalance, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type memoryRepository struct {
	mu   sync.RWMutex
	days map[string]Day
}

// NewMemoryRepository builds an in-memory analytics store.
func NewMemoryRepository() Repository {
	return &memoryRepository{days: make(map[string]Day)}
}

func (r *memoryRepository) Upsert(_ context.Context, d Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days[d.UserID+"|"+d.Date] = d
	return nil
}

func (r *memoryRepository) Range(_ context.Context, userID, from, to string) ([]Day, error) {
	r.mu.RLock()
	out := make([]Day, 0)
	for _, d := range r.days {
		// ISO dates compare lexically.
		if d.UserID == userID && d.Date >= from && d.Date <= to {
			out = append(out, d)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
