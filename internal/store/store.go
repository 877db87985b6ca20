package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	// ErrBusy is returned when a keyed lock could not be acquired in time or
	// the database aborted the unit because of lock contention.
	ErrBusy = apperr.New(apperr.KindBusy, "busy", "resource busy, retry later")

	// ErrNoTx is returned by helpers that require an open unit of work.
	ErrNoTx = apperr.New(apperr.KindInternal, "no_unit_of_work", "operation requires an open unit of work")
)

// Manager opens units of work. A call made with a context that already
// carries a unit opens a savepoint nested in it: an error returned from the
// nested function undoes only the nested writes, while locks stay held until
// the outermost unit ends.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txHandle interface {
	nested(ctx context.Context) (txHandle, error)
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type backend interface {
	begin(ctx context.Context) (txHandle, error)
	acquire(ctx context.Context, key string) (func(), error)
	translate(err error) error
}

type unitKey struct{}

type unit struct {
	root   *unit
	handle txHandle
	b      backend

	// root only
	mu       sync.Mutex
	held     map[string]struct{}
	releases []func()
}

func current(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

// InTx reports whether ctx carries an open unit of work.
func InTx(ctx context.Context) bool {
	return current(ctx) != nil
}

func run(ctx context.Context, b backend, fn func(ctx context.Context) error) (err error) {
	parent := current(ctx)

	var u *unit
	if parent != nil {
		h, err := parent.handle.nested(ctx)
		if err != nil {
			return b.translate(err)
		}
		u = &unit{root: parent.root, handle: h, b: b}
	} else {
		h, err := b.begin(ctx)
		if err != nil {
			return b.translate(err)
		}
		u = &unit{handle: h, b: b, held: make(map[string]struct{})}
		u.root = u
		defer u.releaseAll()
	}

	defer func() {
		if p := recover(); p != nil {
			_ = u.handle.rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		if rbErr := u.handle.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", b.translate(err), rbErr)
		}
		return b.translate(err)
	}

	if parent == nil {
		if err := ctx.Err(); err != nil {
			_ = u.handle.rollback(context.WithoutCancel(ctx))
			return err
		}
	}
	if err := u.handle.commit(ctx); err != nil {
		_ = u.handle.rollback(context.WithoutCancel(ctx))
		return b.translate(err)
	}
	return nil
}

func (u *unit) releaseAll() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := len(u.releases) - 1; i >= 0; i-- {
		u.releases[i]()
	}
	u.releases = nil
	u.held = nil
}

// Lock acquires the exclusive lock for key on behalf of the current unit of
// work. The lock is released when the outermost unit commits or rolls back.
// Acquiring a key the unit already holds is a no-op.
func Lock(ctx context.Context, key string) error {
	u := current(ctx)
	if u == nil {
		return ErrNoTx
	}
	root := u.root
	root.mu.Lock()
	_, ok := root.held[key]
	root.mu.Unlock()
	if ok {
		return nil
	}

	release, err := u.b.acquire(ctx, key)
	if err != nil {
		return err
	}

	root.mu.Lock()
	root.held[key] = struct{}{}
	root.releases = append(root.releases, release)
	root.mu.Unlock()
	return nil
}

// Holds reports whether the current unit of work holds the lock for key.
func Holds(ctx context.Context, key string) bool {
	u := current(ctx)
	if u == nil {
		return false
	}
	u.root.mu.Lock()
	defer u.root.mu.Unlock()
	_, ok := u.root.held[key]
	return ok
}

// OnRollback registers an undo step for an in-memory write. It runs if the
// innermost unit (or any enclosing one) rolls back. Outside a unit, or on
// the Postgres backend, it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	u := current(ctx)
	if u == nil {
		return
	}
	if j, ok := u.handle.(*journal); ok {
		j.record(undo)
	}
}
