package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrInvalidRole         = errors.New("user: invalid role")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
)

type ID string

// Role is the account kind. It maps one to one onto chat roles.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Listing-site vocabulary accepted on input.
var roleAliases = map[string]Role{
	"buyer":   RoleBuyer,
	"guest":   RoleBuyer,
	"tenant":  RoleBuyer,
	"seller":  RoleSeller,
	"agent":   RoleSeller,
	"host":    RoleSeller,
	"admin":   RoleAdmin,
	"support": RoleAdmin,
}

// User is an account that can take part in conversations.
type User struct {
	ID           ID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Blocked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// NewUser normalizes params and builds a user. An empty role means buyer.
func NewUser(params CreateParams) (*User, error) {
	u := &User{
		ID:           ID(strings.TrimSpace(string(params.ID))),
		Email:        NormalizeEmail(params.Email),
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: params.PasswordHash,
		Role:         RoleBuyer,
	}
	if raw := strings.TrimSpace(string(params.Role)); raw != "" {
		role, err := ParseRole(raw)
		if err != nil {
			return nil, err
		}
		u.Role = role
	}
	if err := u.validate(); err != nil {
		return nil, err
	}
	created := params.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	u.CreatedAt = created.UTC()
	u.UpdatedAt = u.CreatedAt
	return u, nil
}

func (u *User) validate() error {
	switch {
	case u.ID == "":
		return ErrIDRequired
	case u.Email == "":
		return ErrEmailRequired
	case strings.TrimSpace(u.PasswordHash) == "":
		return ErrPasswordHashMissing
	case u.Name == "":
		return ErrNameRequired
	}
	return nil
}

// Block marks the account as unable to sign in or hold sessions.
func (u *User) Block(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.Blocked = true
	u.UpdatedAt = now.UTC()
}

func ParseRole(raw string) (Role, error) {
	if role, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return role, nil
	}
	return "", ErrInvalidRole
}

// NormalizeEmail is the lookup key form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
