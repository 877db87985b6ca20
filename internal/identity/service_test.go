package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Phone: "+2348030000001", FullName: "Ada Obi"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(user.AccountNumber) != accountNumberDigits {
		t.Fatalf("expected %d digit account number, got %q", accountNumberDigits, user.AccountNumber)
	}

	byPhone, err := svc.Resolve(ctx, Lookup{Phone: user.Phone})
	if err != nil || byPhone.ID != user.ID {
		t.Fatalf("resolve by phone: %v", err)
	}
	byAccount, err := svc.Resolve(ctx, Lookup{AccountNumber: user.AccountNumber, Phone: "unknown"})
	if err != nil || byAccount.ID != user.ID {
		t.Fatalf("account number should take precedence: %v", err)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Phone: "123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Phone: "123"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, Lookup{}); !errors.Is(err, ErrEmptyLookup) {
		t.Fatalf("expected ErrEmptyLookup, got %v", err)
	}
	if _, err := svc.Resolve(ctx, Lookup{Phone: "nobody"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Phone: "  "}); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}
