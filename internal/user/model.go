// Package user provides the user model and the owner directory used to resolve
// farm owners and the origin coordinates for distance ranking.
package user

import (
	"errors"
	"time"

	"github.com/onnwee/farmrank/internal/geo"
	"github.com/onnwee/farmrank/internal/validate"
)

// User is a registered account. A user owns zero or more farms, and its
// coordinates are the origin for distances on that user's farm listing.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Coordinates    string    `json:"coordinates"`
	Address        string    `json:"address"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validation errors for user input.
var (
	ErrInvalidEmail       = errors.New("email must be a valid address")
	ErrInvalidCoordinates = errors.New("coordinates must be a valid latitude,longitude pair")
	ErrInvalidAddress     = errors.New("address is required and must be a single line")
)

// Normalize validates the user's fields and rewrites Email and Address to
// their stored form. It returns every violation found.
func (u *User) Normalize() []error {
	var errs []error

	if email, err := validate.Email(u.Email); err != nil {
		errs = append(errs, ErrInvalidEmail)
	} else {
		u.Email = email
	}
	if _, err := geo.ParsePoint(u.Coordinates); err != nil {
		errs = append(errs, ErrInvalidCoordinates)
	}
	if addr, err := validate.Address(u.Address); err != nil {
		errs = append(errs, ErrInvalidAddress)
	} else {
		u.Address = addr
	}

	return errs
}
