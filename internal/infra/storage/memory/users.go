package memory

import (
	"context"
	"strings"
	"sync"

	domainuser "propchat/internal/domain/user"
)

// UserRepository keeps accounts by value so callers never share state with
// the store. Emails are unique after normalization.
type UserRepository struct {
	mu      sync.RWMutex
	users   map[domainuser.ID]domainuser.User
	byEmail map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   map[domainuser.ID]domainuser.User{},
		byEmail: map[string]domainuser.ID{},
	}
}

func (r *UserRepository) ByID(_ context.Context, id domainuser.ID) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

func (r *UserRepository) ByEmail(_ context.Context, email string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(r.byEmail[domainuser.NormalizeEmail(email)])
}

// Save inserts or replaces a user. Changing a user's email frees the old one.
func (r *UserRepository) Save(_ context.Context, u *domainuser.User) error {
	switch {
	case u == nil || strings.TrimSpace(string(u.ID)) == "":
		return domainuser.ErrIDRequired
	case domainuser.NormalizeEmail(u.Email) == "":
		return domainuser.ErrEmailRequired
	}
	key := domainuser.NormalizeEmail(u.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, taken := r.byEmail[key]; taken && owner != u.ID {
		return domainuser.ErrEmailAlreadyUsed
	}
	if prev, ok := r.users[u.ID]; ok {
		delete(r.byEmail, domainuser.NormalizeEmail(prev.Email))
	}
	r.byEmail[key] = u.ID
	r.users[u.ID] = *u
	return nil
}

// DisplayName resolves a user's name for conversation summaries.
func (r *UserRepository) DisplayName(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, err := r.get(domainuser.ID(id))
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func (r *UserRepository) get(id domainuser.ID) (*domainuser.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return &u, nil
}

var _ domainuser.Repository = (*UserRepository)(nil)
