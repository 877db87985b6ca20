package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long a unit waits for a keyed lock.
const DefaultLockTimeout = 5 * time.Second

// Memory is an in-process unit-of-work manager used by the memory
// repositories. Writes register undo steps through OnRollback; locks are
// per-key channels acquired with a timeout.
//
// Readers that do not take a lock may observe writes of a unit that later
// rolls back.
type Memory struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemory builds a memory manager. A non-positive timeout selects DefaultLockTimeout.
func NewMemory(lockTimeout time.Duration) *Memory {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Memory{timeout: lockTimeout, locks: make(map[string]chan struct{})}
}

// WithinTx runs fn inside a unit of work.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return run(ctx, m, fn)
}

func (m *Memory) begin(_ context.Context) (txHandle, error) {
	return &journal{}, nil
}

func (m *Memory) acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: lock %s not acquired within %s", ErrBusy, key, m.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) translate(err error) error {
	return err
}

type journal struct {
	parent *journal

	mu   sync.Mutex
	undo []func()
}

func (j *journal) record(fn func()) {
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

func (j *journal) nested(_ context.Context) (txHandle, error) {
	return &journal{parent: j}, nil
}

func (j *journal) commit(_ context.Context) error {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()
	if j.parent != nil {
		j.parent.mu.Lock()
		j.parent.undo = append(j.parent.undo, steps...)
		j.parent.mu.Unlock()
	}
	return nil
}

func (j *journal) rollback(_ context.Context) error {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
	return nil
}
