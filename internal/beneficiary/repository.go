package beneficiary

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// PostgresRepository stores contacts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed contact repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const contactColumns = `id, owner_id, beneficiary_id, nickname, is_favorite, total_sent, transaction_count, last_transaction_at, created_at`

// RecordTransfer upserts the pair and increments its totals in one statement.
func (r *PostgresRepository) RecordTransfer(ctx context.Context, ownerID, beneficiaryID string, amount decimal.Decimal, at time.Time) error {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return err
	}
	target, err := uuid.Parse(beneficiaryID)
	if err != nil {
		return err
	}
	_, err = store.Conn(ctx, r.db).Exec(ctx, `INSERT INTO beneficiaries (`+contactColumns+`)
        VALUES ($1, $2, $3, '', FALSE, $4, 1, $5, $5)
        ON CONFLICT (owner_id, beneficiary_id) DO UPDATE SET
            total_sent = beneficiaries.total_sent + EXCLUDED.total_sent,
            transaction_count = beneficiaries.transaction_count + 1,
            last_transaction_at = EXCLUDED.last_transaction_at`,
		uuid.New(), owner, target, amount, at.UTC())
	return err
}

// Upsert creates the pair or updates its nickname.
func (r *PostgresRepository) Upsert(ctx context.Context, c Contact) (Contact, error) {
	owner, err := uuid.Parse(c.OwnerID)
	if err != nil {
		return Contact{}, err
	}
	target, err := uuid.Parse(c.BeneficiaryID)
	if err != nil {
		return Contact{}, err
	}
	row := store.Conn(ctx, r.db).QueryRow(ctx, `INSERT INTO beneficiaries (`+contactColumns+`)
        VALUES ($1, $2, $3, $4, $5, 0, 0, NULL, $6)
        ON CONFLICT (owner_id, beneficiary_id) DO UPDATE SET nickname = EXCLUDED.nickname
        RETURNING `+contactColumns, uuid.New(), owner, target, c.Nickname, c.IsFavorite, c.CreatedAt.UTC())
	return scanContact(row)
}

// SetFavorite flags or unflags an existing contact.
func (r *PostgresRepository) SetFavorite(ctx context.Context, ownerID, beneficiaryID string, favorite bool) (Contact, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Contact{}, ErrNotFound
	}
	target, err := uuid.Parse(beneficiaryID)
	if err != nil {
		return Contact{}, ErrNotFound
	}
	row := store.Conn(ctx, r.db).QueryRow(ctx, `UPDATE beneficiaries SET is_favorite = $1
        WHERE owner_id = $2 AND beneficiary_id = $3 RETURNING `+contactColumns, favorite, owner, target)
	return scanContact(row)
}

// List returns the owner's contacts, most recently paid first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, favoritesOnly bool) ([]Contact, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []Contact{}, nil
	}
	rows, err := store.Conn(ctx, r.db).Query(ctx, `SELECT `+contactColumns+` FROM beneficiaries
        WHERE owner_id = $1 AND ($2 = FALSE OR is_favorite)
        ORDER BY last_transaction_at DESC NULLS LAST, created_at DESC`, owner, favoritesOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		c                 Contact
		id, owner, target uuid.UUID
	)
	if err := row.Scan(&id, &owner, &target, &c.Nickname, &c.IsFavorite, &c.TotalSent, &c.TransactionCount, &c.LastTransactionAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	c.ID = id.String()
	c.OwnerID = owner.String()
	c.BeneficiaryID = target.String()
	return c, nil
}

type memoryRepository struct {
	mu       sync.Mutex
	contacts map[string]Contact
}

// NewMemoryRepository builds an in-memory contact store.
func NewMemoryRepository() Repository {
	return &memoryRepository{contacts: make(map[string]Contact)}
}

func pairKey(ownerID, beneficiaryID string) string {
	return ownerID + "|" + beneficiaryID
}

func (r *memoryRepository) RecordTransfer(_ context.Context, ownerID, beneficiaryID string, amount decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(ownerID, beneficiaryID)
	c, ok := r.contacts[key]
	if !ok {
		c = Contact{ID: uuid.NewString(), OwnerID: ownerID, BeneficiaryID: beneficiaryID, TotalSent: decimal.Zero, CreatedAt: at}
	}
	c.TotalSent = c.TotalSent.Add(amount)
	c.TransactionCount++
	last := at
	c.LastTransactionAt = &last
	r.contacts[key] = c
	return nil
}

func (r *memoryRepository) Upsert(_ context.Context, in Contact) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(in.OwnerID, in.BeneficiaryID)
	c, ok := r.contacts[key]
	if !ok {
		c = in
		c.ID = uuid.NewString()
		c.TotalSent = decimal.Zero
	}
	c.Nickname = in.Nickname
	r.contacts[key] = c
	return c, nil
}

func (r *memoryRepository) SetFavorite(_ context.Context, ownerID, beneficiaryID string, favorite bool) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(ownerID, beneficiaryID)
	c, ok := r.contacts[key]
	if !ok {
		return Contact{}, ErrNotFound
	}
	c.IsFavorite = favorite
	r.contacts[key] = c
	return c, nil
}

func (r *memoryRepository) List(_ context.Context, ownerID string, favoritesOnly bool) ([]Contact, error) {
	r.mu.Lock()
	out := make([]Contact, 0)
	for _, c := range r.contacts {
		if c.OwnerID != ownerID || (favoritesOnly && !c.IsFavorite) {
			continue
		}
		out = append(out, c)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastTransactionAt, out[j].LastTransactionAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
