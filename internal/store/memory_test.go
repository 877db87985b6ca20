package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type counter struct {
	mu    sync.Mutex
	value int
}

func (c *counter) add(ctx context.Context, n int) {
	c.mu.Lock()
	c.value += n
	c.mu.Unlock()
	OnRollback(ctx, func() {
		c.mu.Lock()
		c.value -= n
		c.mu.Unlock()
	})
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func TestMemoryRollbackUndoesWrites(t *testing.T) {
	m := NewMemory(time.Second)
	c := &counter{}
	boom := errors.New("boom")

	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		c.add(ctx, 5)
		c.add(ctx, 7)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.get() != 0 {
		t.Fatalf("expected writes undone, got %d", c.get())
	}
}

func TestMemorySavepointRollsBackOnlyNestedWrites(t *testing.T) {
	m := NewMemory(time.Second)
	c := &counter{}
	boom := errors.New("boom")

	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		c.add(ctx, 1)
		if err := m.WithinTx(ctx, func(ctx context.Context) error {
			c.add(ctx, 10)
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("expected nested boom, got %v", err)
		}
		if c.get() != 1 {
			t.Fatalf("expected nested write undone, got %d", c.get())
		}
		return m.WithinTx(ctx, func(ctx context.Context) error {
			c.add(ctx, 100)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("outer unit: %v", err)
	}
	if c.get() != 101 {
		t.Fatalf("expected 101, got %d", c.get())
	}
}

func TestMemoryCommittedSavepointUndoneByOuterRollback(t *testing.T) {
	m := NewMemory(time.Second)
	c := &counter{}

	_ = m.WithinTx(context.Background(), func(ctx context.Context) error {
		_ = m.WithinTx(ctx, func(ctx context.Context) error {
			c.add(ctx, 3)
			return nil
		})
		return errors.New("outer failure")
	})
	if c.get() != 0 {
		t.Fatalf("expected outer rollback to undo savepoint writes, got %d", c.get())
	}
}

func TestMemoryLockTimeoutIsBusy(t *testing.T) {
	m := NewMemory(50 * time.Millisecond)
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = m.WithinTx(ctx, func(ctx context.Context) error {
			if err := Lock(ctx, "wallet:a"); err != nil {
				t.Errorf("lock: %v", err)
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		return Lock(ctx, "wallet:a")
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestMemoryLockHeldUntilOutermostEnds(t *testing.T) {
	m := NewMemory(time.Second)
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		if err := m.WithinTx(ctx, func(ctx context.Context) error {
			return Lock(ctx, "wallet:a")
		}); err != nil {
			return err
		}
		if !Holds(ctx, "wallet:a") {
			t.Fatalf("expected lock to outlive savepoint")
		}
		// reentrant
		return Lock(ctx, "wallet:a")
	})
	if err != nil {
		t.Fatalf("unit: %v", err)
	}

	err = m.WithinTx(ctx, func(ctx context.Context) error {
		return Lock(ctx, "wallet:a")
	})
	if err != nil {
		t.Fatalf("expected lock released after commit, got %v", err)
	}
}

func TestMemoryPanicRollsBackAndReleases(t *testing.T) {
	m := NewMemory(100 * time.Millisecond)
	c := &counter{}
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = m.WithinTx(ctx, func(ctx context.Context) error {
			_ = Lock(ctx, "k")
			c.add(ctx, 9)
			panic("crash")
		})
	}()

	if c.get() != 0 {
		t.Fatalf("expected rollback after panic, got %d", c.get())
	}
	if err := m.WithinTx(ctx, func(ctx context.Context) error { return Lock(ctx, "k") }); err != nil {
		t.Fatalf("expected lock released after panic: %v", err)
	}
}

func TestMemoryCancelledContextRollsBack(t *testing.T) {
	m := NewMemory(time.Second)
	c := &counter{}
	ctx, cancel := context.WithCancel(context.Background())

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		c.add(ctx, 4)
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.get() != 0 {
		t.Fatalf("expected rollback on cancellation, got %d", c.get())
	}
}

func TestLockRequiresUnit(t *testing.T) {
	if err := Lock(context.Background(), "x"); !errors.Is(err, ErrNoTx) {
		t.Fatalf("expected ErrNoTx, got %v", err)
	}
}
