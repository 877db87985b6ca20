package pin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// Repository persists transaction PINs.
type Repository interface {
	Get(ctx context.Context, userID string) (Record, error)
	GetForUpdate(ctx context.Context, userID string) (Record, error)
	Save(ctx context.Context, rec Record) error
	UpdateAttempts(ctx context.Context, userID string, failed int, lockedUntil *time.Time, at time.Time) error
}

// PostgresRepository stores PINs in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed PIN repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pinColumns = `user_id, pin_hash, is_active, failed_attempts, locked_until, updated_at`

// Get fetches a user's PIN record.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (Record, error) {
	return r.get(ctx, userID, "")
}

// GetForUpdate fetches the record and locks its row.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID string) (Record, error) {
	return r.get(ctx, userID, " FOR UPDATE")
}

func (r *PostgresRepository) get(ctx context.Context, userID, suffix string) (Record, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Record{}, ErrNotSet
	}
	row := store.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+pinColumns+` FROM transaction_pins WHERE user_id = $1`+suffix, id)
	var (
		rec Record
		uid uuid.UUID
	)
	if err := row.Scan(&uid, &rec.Hash, &rec.IsActive, &rec.FailedAttempts, &rec.LockedUntil, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotSet
		}
		return Record{}, err
	}
	rec.UserID = uid.String()
	return rec, nil
}

// Save inserts or replaces a user's PIN.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.UserID)
	if err != nil {
		return err
	}
	_, err = store.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transaction_pins (`+pinColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, is_active = EXCLUDED.is_active,
            failed_attempts = EXCLUDED.failed_attempts, locked_until = EXCLUDED.locked_until, updated_at = EXCLUDED.updated_at`,
		id, rec.Hash, rec.IsActive, rec.FailedAttempts, rec.LockedUntil, rec.UpdatedAt.UTC())
	return err
}

// UpdateAttempts stores the failure counter and lock expiry.
func (r *PostgresRepository) UpdateAttempts(ctx context.Context, userID string, failed int, lockedUntil *time.Time, at time.Time) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ErrNotSet
	}
	cmd, err := store.Conn(ctx, r.db).Exec(ctx, `UPDATE transaction_pins SET failed_attempts = $1, locked_until = $2, updated_at = $3
        WHERE user_id = $4`, failed, lockedUntil, at.UTC(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotSet
	}
	return nil
}

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRepository builds an in-memory PIN store.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Record)}
}

func (r *memoryRepository) Get(_ context.Context, userID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return Record{}, ErrNotSet
	}
	return rec, nil
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, userID string) (Record, error) {
	return r.Get(ctx, userID)
}

func (r *memoryRepository) Save(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.records[rec.UserID]
	r.records[rec.UserID] = rec
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existed {
			r.records[rec.UserID] = prev
		} else {
			delete(r.records, rec.UserID)
		}
	})
	return nil
}

func (r *memoryRepository) UpdateAttempts(ctx context.Context, userID string, failed int, lockedUntil *time.Time, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.records[userID]
	if !ok {
		return ErrNotSet
	}
	next := prev
	next.FailedAttempts = failed
	next.LockedUntil = lockedUntil
	next.UpdatedAt = at
	r.records[userID] = next
	store.OnRollback(ctx, func() {
		r.mu.Lock()
		r.records[userID] = prev
		r.mu.Unlock()
	})
	return nil
}
