package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// PostgresRepository persists ledger rows in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed ledger repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `id, reference, correlation_id, wallet_id, type, category, bill_type, amount, currency,
        sender_wallet_id, recipient_wallet_id, balance_before, balance_after, status, description, narration,
        metadata, created_at, completed_at`

// Insert writes a new pending row.
func (r *PostgresRepository) Insert(ctx context.Context, txn Transaction) error {
	id, err := uuid.Parse(txn.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(txn.WalletID)
	if err != nil {
		return err
	}
	correlationID, err := uuid.Parse(txn.CorrelationID)
	if err != nil {
		return err
	}
	metadata := txn.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err = store.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		id, txn.Reference, correlationID, walletID, string(txn.Type), string(txn.Category), string(txn.BillType),
		txn.Amount, txn.Currency, nullUUID(txn.SenderWalletID), nullUUID(txn.RecipientWalletID),
		txn.BalanceBefore, txn.BalanceAfter, string(txn.Status), txn.Description, txn.Narration,
		metadata, txn.CreatedAt.UTC(), txn.CompletedAt)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

// ReferenceExists reports whether a reference is already taken.
func (r *PostgresRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := store.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference = $1)`, reference).Scan(&exists)
	return exists, err
}

// GetByID fetches a row by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	row := store.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	return scanTransaction(row)
}

// GetByReference fetches a wallet's row by reference.
func (r *PostgresRepository) GetByReference(ctx context.Context, walletID, reference string) (Transaction, error) {
	wID, err := uuid.Parse(walletID)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	row := store.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM transactions WHERE wallet_id = $1 AND reference = $2`, wID, reference)
	return scanTransaction(row)
}

// Transition moves a pending row to a terminal status.
func (r *PostgresRepository) Transition(ctx context.Context, id string, to Status, balanceAfter decimal.NullDecimal, completedAt *time.Time) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := store.Conn(ctx, r.db).Exec(ctx, `UPDATE transactions
        SET status = $1, balance_after = $2, completed_at = $3
        WHERE id = $4 AND status = 'pending'`, string(to), balanceAfter, completedAt, txID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

// List returns a page of the wallet's history, newest first, and the total match count.
func (r *PostgresRepository) List(ctx context.Context, walletID string, filter Filter, limit, offset int) ([]Transaction, int, error) {
	wID, err := uuid.Parse(walletID)
	if err != nil {
		return nil, 0, nil
	}
	where := []string{"wallet_id = $1"}
	args := []any{wID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To.UTC())
	}
	clause := strings.Join(where, " AND ")

	db := store.Conn(ctx, r.db)
	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Query(ctx, fmt.Sprintf(`SELECT `+transactionColumns+` FROM transactions WHERE %s
        ORDER BY created_at DESC, reference DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

// CompletedBetween returns completed rows with completed_at in [from, to).
func (r *PostgresRepository) CompletedBetween(ctx context.Context, walletID string, from, to time.Time) ([]Transaction, error) {
	wID, err := uuid.Parse(walletID)
	if err != nil {
		return nil, nil
	}
	rows, err := store.Conn(ctx, r.db).Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE wallet_id = $1 AND status = 'completed' AND completed_at >= $2 AND completed_at < $3
        ORDER BY completed_at DESC`, wID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// FailPendingBefore fails pending rows created before cutoff.
func (r *PostgresRepository) FailPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := store.Conn(ctx, r.db).Exec(ctx, `UPDATE transactions SET status = 'failed'
        WHERE status = 'pending' AND created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	out := make([]Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn               Transaction
		id, correlationID uuid.UUID
		walletID          uuid.UUID
		sender, recipient uuid.NullUUID
		txType, category  string
		status            string
		billType          *string
	)
	err := row.Scan(&id, &txn.Reference, &correlationID, &walletID, &txType, &category, &billType, &txn.Amount,
		&txn.Currency, &sender, &recipient, &txn.BalanceBefore, &txn.BalanceAfter, &status, &txn.Description,
		&txn.Narration, &txn.Metadata, &txn.CreatedAt, &txn.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.CorrelationID = correlationID.String()
	txn.WalletID = walletID.String()
	txn.Type = Type(txType)
	txn.Category = Category(category)
	txn.Status = Status(status)
	if billType != nil {
		txn.BillType = BillType(*billType)
	}
	if sender.Valid {
		txn.SenderWalletID = sender.UUID.String()
	}
	if recipient.Valid {
		txn.RecipientWalletID = recipient.UUID.String()
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, nil
}

func nullUUID(s string) uuid.NullUUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}
