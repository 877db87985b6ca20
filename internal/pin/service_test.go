package pin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *fakeClock, string) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store.NewMemory(time.Second), NewMemoryRepository(), Policy{Cost: bcrypt.MinCost}).WithClock(clock.Now)
	userID := uuid.NewString()
	if err := svc.SetPin(context.Background(), userID, "1234", "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	return svc, clock, userID
}

func TestSetPinValidation(t *testing.T) {
	svc := NewService(store.NewMemory(time.Second), NewMemoryRepository(), Policy{Cost: bcrypt.MinCost})
	ctx := context.Background()
	user := uuid.NewString()

	cases := []struct {
		pin, confirm string
		want         error
	}{
		{"1234", "1235", ErrMismatch},
		{"123", "123", ErrInvalidFormat},
		{"12345", "12345", ErrInvalidFormat},
		{"12a4", "12a4", ErrInvalidFormat},
	}
	for _, tc := range cases {
		if err := svc.SetPin(ctx, user, tc.pin, tc.confirm); !errors.Is(err, tc.want) {
			t.Fatalf("SetPin(%q,%q): expected %v, got %v", tc.pin, tc.confirm, tc.want, err)
		}
	}
}

func TestVerifyNotSet(t *testing.T) {
	svc := NewService(store.NewMemory(time.Second), NewMemoryRepository(), Policy{Cost: bcrypt.MinCost})
	if err := svc.Verify(context.Background(), uuid.NewString(), "1234"); !errors.Is(err, ErrNotSet) {
		t.Fatalf("expected ErrNotSet, got %v", err)
	}
}

func TestVerifyLocksAfterThreeFailures(t *testing.T) {
	svc, clock, user := newTestService(t)
	ctx := context.Background()

	err := svc.Verify(ctx, user, "0000")
	var invalid *InvalidError
	if !errors.As(err, &invalid) || invalid.Remaining != 2 {
		t.Fatalf("expected 2 attempts remaining, got %v", err)
	}
	if err := svc.Verify(ctx, user, "0000"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	err = svc.Verify(ctx, user, "0000")
	var lockout *LockoutError
	if !errors.As(err, &lockout) {
		t.Fatalf("expected lockout on third failure, got %v", err)
	}
	if !lockout.Until.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("unexpected lock expiry %s", lockout.Until)
	}

	// correct PIN is refused while locked
	clock.Advance(29 * time.Minute)
	if err := svc.Verify(ctx, user, "1234"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked during lockout, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	if err := svc.Verify(ctx, user, "1234"); err != nil {
		t.Fatalf("expected success after expiry, got %v", err)
	}

	rec, _ := svc.repo.Get(ctx, user)
	if rec.FailedAttempts != 0 || rec.LockedUntil != nil {
		t.Fatalf("expected failure state cleared, got %+v", rec)
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	_ = svc.Verify(ctx, user, "9999")
	_ = svc.Verify(ctx, user, "9999")
	if err := svc.Verify(ctx, user, "1234"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	err := svc.Verify(ctx, user, "9999")
	var invalid *InvalidError
	if !errors.As(err, &invalid) || invalid.Remaining != 2 {
		t.Fatalf("expected counter reset, got %v", err)
	}
}

func TestSetPinClearsLockout(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = svc.Verify(ctx, user, "0000")
	}
	st, _ := svc.Status(ctx, user)
	if st.LockedUntil == nil {
		t.Fatalf("expected locked status")
	}

	if err := svc.SetPin(ctx, user, "4321", "4321"); err != nil {
		t.Fatalf("reset pin: %v", err)
	}
	if err := svc.Verify(ctx, user, "4321"); err != nil {
		t.Fatalf("expected new PIN to verify, got %v", err)
	}
}

func TestConcurrentFailuresCountEachAttempt(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		lockouts int
		invalids int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Verify(ctx, user, "0000")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrLocked):
				lockouts++
			case errors.Is(err, ErrInvalid):
				invalids++
			}
		}()
	}
	wg.Wait()

	if lockouts != 1 || invalids != 2 {
		t.Fatalf("expected 2 invalid + 1 lockout, got %d invalid, %d lockout", invalids, lockouts)
	}
}
