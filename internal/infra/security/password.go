package security

import (
	"golang.org/x/crypto/bcrypt"

	appauth "propchat/internal/app/services/auth"
)

// BcryptHasher hashes login passwords. A zero Cost uses bcrypt.DefaultCost;
// tests pass bcrypt.MinCost to stay fast.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (h BcryptHasher) cost() int {
	if h.Cost >= bcrypt.MinCost && h.Cost <= bcrypt.MaxCost {
		return h.Cost
	}
	return bcrypt.DefaultCost
}

var _ appauth.PasswordHasher = BcryptHasher{}
