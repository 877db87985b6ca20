package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu        sync.RWMutex
	users     map[string]User
	byPhone   map[string]string
	byAccount map[string]string
}

// NewMemoryRepository builds an in-memory user store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:     make(map[string]User),
		byPhone:   make(map[string]string),
		byAccount: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[user.Phone]; exists {
		return ErrExists
	}
	if _, exists := r.byAccount[user.AccountNumber]; exists {
		return ErrExists
	}
	r.users[user.ID] = user
	r.byPhone[user.Phone] = user.ID
	r.byAccount[user.AccountNumber] = user.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	r.mu.RLock()
	id, ok := r.byPhone[phone]
	r.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (User, error) {
	r.mu.RLock()
	id, ok := r.byAccount[accountNumber]
	r.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) AccountNumberExists(_ context.Context, accountNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAccount[accountNumber]
	return ok, nil
}
