package beneficiary

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/identity"
)

// Service tracks the counterparties a user sends money to.
type Service struct {
	repo  Repository
	users *identity.Service
	now   func() time.Time
}

// NewService builds a beneficiary tracker.
func NewService(repo Repository, users *identity.Service) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

// RecordTransfer adds a completed transfer to the pair's totals.
func (s *Service) RecordTransfer(ctx context.Context, ownerID, beneficiaryID string, amount decimal.Decimal) error {
	return s.repo.RecordTransfer(ctx, ownerID, beneficiaryID, amount, s.now().UTC())
}

// Upsert saves the user named by lookup as a beneficiary of ownerID, or
// renames an existing one.
func (s *Service) Upsert(ctx context.Context, ownerID string, lookup identity.Lookup, nickname string) (Contact, error) {
	target, err := s.users.Resolve(ctx, lookup)
	if err != nil {
		return Contact{}, err
	}
	if target.ID == ownerID {
		return Contact{}, ErrSelf
	}
	c, err := s.repo.Upsert(ctx, Contact{
		OwnerID:       ownerID,
		BeneficiaryID: target.ID,
		Nickname:      strings.TrimSpace(nickname),
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return Contact{}, err
	}
	fill(&c, target)
	return c, nil
}

// SetFavorite flags or unflags a saved beneficiary.
func (s *Service) SetFavorite(ctx context.Context, ownerID, beneficiaryID string, favorite bool) (Contact, error) {
	c, err := s.repo.SetFavorite(ctx, ownerID, beneficiaryID, favorite)
	if err != nil {
		return Contact{}, err
	}
	if u, err := s.users.Get(ctx, beneficiaryID); err == nil {
		fill(&c, u)
	}
	return c, nil
}

// List returns the owner's beneficiaries, most recently paid first.
func (s *Service) List(ctx context.Context, ownerID string, favoritesOnly bool) ([]Contact, error) {
	contacts, err := s.repo.List(ctx, ownerID, favoritesOnly)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if u, err := s.users.Get(ctx, contacts[i].BeneficiaryID); err == nil {
			fill(&contacts[i], u)
		}
	}
	return contacts, nil
}

func fill(c *Contact, u identity.User) {
	c.Name = u.FullName
	c.Phone = u.Phone
	c.AccountNumber = u.AccountNumber
}
