package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLSTATE codes reported when Postgres gives up on a lock.
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

// Postgres opens units of work as pgx transactions. Nested units are
// savepoints. Keyed locks are transaction-scoped advisory locks; wallet
// repositories additionally lock their rows with SELECT ... FOR UPDATE.
type Postgres struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgres builds a manager over pool. lockTimeout is applied to every
// unit with SET LOCAL lock_timeout.
func NewPostgres(pool *pgxpool.Pool, lockTimeout time.Duration) *Postgres {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Postgres{pool: pool, lockTimeout: lockTimeout}
}

// WithinTx runs fn inside a database transaction, or a savepoint when ctx
// already carries one.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return run(ctx, p, fn)
}

func (p *Postgres) begin(ctx context.Context) (txHandle, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return pgTx{tx: tx}, nil
}

// acquire waits at most lock_timeout; Postgres releases the lock itself
// when the transaction ends.
func (p *Postgres) acquire(ctx context.Context, key string) (func(), error) {
	if _, err := Conn(ctx, p.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return nil, Translate(err)
	}
	return func() {}, nil
}

func (p *Postgres) translate(err error) error {
	return Translate(err)
}

// Conn returns the transaction carried by ctx, or pool when there is none.
func (p *Postgres) Conn(ctx context.Context) Querier {
	return Conn(ctx, p.pool)
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) nested(ctx context.Context) (txHandle, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgTx{tx: sp}, nil
}

func (t pgTx) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t pgTx) rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Conn returns the innermost transaction carried by ctx, or fallback.
func Conn(ctx context.Context, fallback Querier) Querier {
	if u := current(ctx); u != nil {
		if t, ok := u.handle.(pgTx); ok {
			return t.tx
		}
	}
	return fallback
}

// Translate maps lock contention reported by Postgres to ErrBusy. Other
// errors are returned unchanged.
func Translate(err error) error {
	if err == nil || errors.Is(err, ErrBusy) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("%w: %s", ErrBusy, pgErr.Message)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
