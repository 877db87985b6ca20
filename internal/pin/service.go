package pin

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

const pinLength = 4

// Policy controls lockout behaviour and hashing cost.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
	Cost        int
}

// DefaultPolicy locks the PIN for 30 minutes after 3 consecutive failures.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Lockout: 30 * time.Minute, Cost: bcrypt.DefaultCost}
}

// Service sets and verifies transaction PINs.
type Service struct {
	tx     store.Manager
	repo   Repository
	policy Policy
	now    func() time.Time
}

// NewService builds a PIN service. Zero policy fields take their defaults.
func NewService(tx store.Manager, repo Repository, policy Policy) *Service {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Lockout <= 0 {
		policy.Lockout = def.Lockout
	}
	if policy.Cost == 0 {
		policy.Cost = def.Cost
	}
	return &Service{tx: tx, repo: repo, policy: policy, now: time.Now}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SetPin stores a new PIN for the user and clears any failure state.
func (s *Service) SetPin(ctx context.Context, userID, pin, confirm string) error {
	if pin != confirm {
		return ErrMismatch
	}
	if !validFormat(pin) {
		return ErrInvalidFormat
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.policy.Cost)
	if err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Lock(ctx, lockKey(userID)); err != nil {
			return err
		}
		return s.repo.Save(ctx, Record{
			UserID:    userID,
			Hash:      hash,
			IsActive:  true,
			UpdatedAt: s.now().UTC(),
		})
	})
}

// Verify checks pin against the user's stored PIN. Failures are persisted
// even though an error is returned: ErrNotSet, *InvalidError (Is ErrInvalid)
// or *LockoutError (Is ErrLocked).
func (s *Service) Verify(ctx context.Context, userID, pin string) error {
	var outcome error
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Lock(ctx, lockKey(userID)); err != nil {
			return err
		}
		rec, err := s.repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !rec.IsActive {
			return ErrNotSet
		}

		now := s.now().UTC()
		if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
			outcome = &LockoutError{Until: *rec.LockedUntil}
			return nil
		}

		if bcrypt.CompareHashAndPassword(rec.Hash, []byte(pin)) == nil {
			if rec.FailedAttempts == 0 && rec.LockedUntil == nil {
				return nil
			}
			return s.repo.UpdateAttempts(ctx, userID, 0, nil, now)
		}

		failed := rec.FailedAttempts + 1
		if failed >= s.policy.MaxAttempts {
			until := now.Add(s.policy.Lockout)
			outcome = &LockoutError{Until: until}
			return s.repo.UpdateAttempts(ctx, userID, 0, &until, now)
		}
		outcome = &InvalidError{Remaining: s.policy.MaxAttempts - failed}
		return s.repo.UpdateAttempts(ctx, userID, failed, nil, now)
	})
	if err != nil {
		return err
	}
	return outcome
}

// Status reports whether the user has a PIN and whether it is locked.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotSet) {
			return Status{}, nil
		}
		return Status{}, err
	}
	st := Status{IsSet: rec.IsActive}
	if rec.LockedUntil != nil && s.now().Before(*rec.LockedUntil) {
		until := *rec.LockedUntil
		st.LockedUntil = &until
	}
	return st, nil
}

func validFormat(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
