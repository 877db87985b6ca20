package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (User, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, account_number, full_name, created_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = store.Conn(ctx, r.db).Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5)`, userID, user.Phone, user.AccountNumber, user.FullName, user.CreatedAt.UTC())
	if store.IsUniqueViolation(err) {
		return ErrExists
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

// FindByAccountNumber fetches a user by account number.
func (r *PostgresRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE account_number = $1`, accountNumber)
}

// AccountNumberExists reports whether the account number is taken.
func (r *PostgresRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := store.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE account_number = $1)`, accountNumber).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx, query, arg)
	var (
		id   uuid.UUID
		user User
	)
	if err := row.Scan(&id, &user.Phone, &user.AccountNumber, &user.FullName, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
