// Package farm provides the farm model, input validation, and the store query
// layer used by the ranking pipeline: sorted, paginated, optionally
// yield-filtered reads joined to owner identity, and the mean-yield aggregate.
package farm

import (
	"errors"
	"math"
	"time"

	"github.com/onnwee/farmrank/internal/geo"
	"github.com/onnwee/farmrank/internal/validate"
)

// Farm is a persisted farm record.
type Farm struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Coordinates string    `json:"coordinates"`
	Address     string    `json:"address"`
	Size        float64   `json:"size"`
	Yield       float64   `json:"yield"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Projection is the read-side view of a farm joined to its owner.
// Owner holds the owning user's email.
type Projection struct {
	Name        string
	Address     string
	Coordinates string
	Size        float64
	Yield       float64
	Owner       string
	CreatedAt   time.Time
}

// Validation errors for farm input.
var (
	ErrNameRequired      = errors.New("name is required")
	ErrInvalidName       = errors.New("name must be at most 255 characters without control characters")
	ErrAddressRequired   = errors.New("address is required")
	ErrInvalidAddress    = errors.New("address must be a single line of at most 500 characters")
	ErrInvalidSize       = errors.New("size must be a positive number with at most 2 decimal places")
	ErrInvalidYield      = errors.New("yield must be a non-negative number with at most 2 decimal places")
	ErrOwnerRequired     = errors.New("owner is required")
	ErrInvalidCoordinate = errors.New("coordinates must be a valid latitude,longitude pair")
)

// maxDecimalValue is the largest value a numeric(6,2) column holds.
const maxDecimalValue = 9999.99

// Validate checks the farm's user-supplied fields. It returns every violation found.
func (f *Farm) Validate() []error {
	var errs []error

	if _, err := validate.FarmName(f.Name); err != nil {
		errs = append(errs, textError(err, ErrNameRequired, ErrInvalidName))
	}
	if _, err := validate.Address(f.Address); err != nil {
		errs = append(errs, textError(err, ErrAddressRequired, ErrInvalidAddress))
	}
	if _, err := geo.ParsePoint(f.Coordinates); err != nil {
		errs = append(errs, ErrInvalidCoordinate)
	}
	if f.Size <= 0 || !hasAtMostTwoDecimals(f.Size) {
		errs = append(errs, ErrInvalidSize)
	}
	if f.Yield < 0 || !hasAtMostTwoDecimals(f.Yield) {
		errs = append(errs, ErrInvalidYield)
	}
	if f.UserID == "" {
		errs = append(errs, ErrOwnerRequired)
	}

	return errs
}

// textError maps a text validation failure to the missing or invalid variant.
func textError(err, missing, invalid error) error {
	if errors.Is(err, validate.ErrEmpty) {
		return missing
	}
	return invalid
}

// hasAtMostTwoDecimals reports whether v fits a numeric(6,2) column without rounding.
func hasAtMostTwoDecimals(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v > maxDecimalValue {
		return false
	}
	scaled := v * 100
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
