package user

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrInvalidPassword is returned for an empty or over-long password.
var ErrInvalidPassword = errors.New("password is required and must be at most 72 bytes")

// dummyHash is compared against when no user matches, so a login for an
// unknown email costs the same as one with a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("farmrank-dummy-password"), bcrypt.DefaultCost)
	return hash
})

// SetPassword validates plain and stores its bcrypt hash. A zero cost uses
// bcrypt.DefaultCost.
func (u *User) SetPassword(plain string, cost int) error {
	if plain == "" || len(plain) > MaxPasswordBytes {
		return ErrInvalidPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.HashedPassword = string(hash)
	return nil
}

// CheckPassword reports whether plain matches the stored hash. A nil user
// is checked against a dummy hash and never matches.
func (u *User) CheckPassword(plain string) bool {
	if u == nil || u.HashedPassword == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(plain)) == nil
}
