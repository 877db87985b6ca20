package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	accountNumberDigits   = 10
	accountNumberAttempts = 5
)

// Service manages users and resolves counterparties.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a user with a fresh account number.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		return User{}, ErrInvalidPhone
	}

	account, err := s.newAccountNumber(ctx)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:            uuid.New().String(),
		Phone:         phone,
		AccountNumber: account,
		FullName:      strings.TrimSpace(input.FullName),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Resolve finds the user named by lookup.
func (s *Service) Resolve(ctx context.Context, lookup Lookup) (User, error) {
	if acct := strings.TrimSpace(lookup.AccountNumber); acct != "" {
		return s.repo.FindByAccountNumber(ctx, acct)
	}
	if phone := strings.TrimSpace(lookup.Phone); phone != "" {
		return s.repo.FindByPhone(ctx, phone)
	}
	return User{}, ErrEmptyLookup
}

func (s *Service) newAccountNumber(ctx context.Context) (string, error) {
	limit := big.NewInt(10)
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		var b strings.Builder
		for i := 0; i < accountNumberDigits; i++ {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", err
			}
			b.WriteByte(byte('0' + n.Int64()))
		}
		candidate := b.String()
		exists, err := s.repo.AccountNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate account number after %d attempts", accountNumberAttempts)
}
