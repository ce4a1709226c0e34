package ranking

import (
	"errors"
	"fmt"
	"strings"
)

// SortColumn is a caller-facing sort key. Unlike farm.Column it includes
// distance, which only exists after enrichment.
type SortColumn string

const (
	SortByName     SortColumn = "name"
	SortByDate     SortColumn = "date"
	SortByDistance SortColumn = "distance"
)

// SortOrder is the caller-facing sort direction.
type SortOrder string

const (
	Ascending  SortOrder = "ASC"
	Descending SortOrder = "DESC"
)

// Pagination bounds.
const (
	MaxLimit     = 100
	DefaultLimit = 100
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid ranking request")

// Request holds the parameters of one ranking call.
type Request struct {
	Limit      int
	Offset     int
	SortColumn SortColumn
	SortOrder  SortOrder
	Outliers   bool
}

// DefaultRequest returns a request with every parameter at its default:
// first 100 farms by name, descending, no outlier filter.
func DefaultRequest() Request {
	return Request{
		Limit:      DefaultLimit,
		SortColumn: SortByName,
		SortOrder:  Descending,
	}
}

// ParseSortColumn parses a sort column. An empty string yields the default.
func ParseSortColumn(s string) (SortColumn, error) {
	switch SortColumn(s) {
	case "":
		return SortByName, nil
	case SortByName, SortByDate, SortByDistance:
		return SortColumn(s), nil
	default:
		return "", fmt.Errorf("%w: sortColumn must be one of name, date, distance (got %q)", ErrInvalidRequest, s)
	}
}

// ParseSortOrder parses a sort order case-insensitively. An empty string yields the default.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToUpper(s)) {
	case "":
		return Descending, nil
	case Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	default:
		return "", fmt.Errorf("%w: sortOrder must be ASC or DESC (got %q)", ErrInvalidRequest, s)
	}
}

// withDefaults fills an empty sort column or order.
func (r Request) withDefaults() Request {
	if r.SortColumn == "" {
		r.SortColumn = SortByName
	}
	if r.SortOrder == "" {
		r.SortOrder = Descending
	}
	return r
}

// Validate checks bounds and enumerations. Empty sort fields are accepted
// and take their defaults.
func (r Request) Validate() error {
	r = r.withDefaults()

	if r.Limit < 0 || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d (got %d)", ErrInvalidRequest, MaxLimit, r.Limit)
	}
	if r.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0 (got %d)", ErrInvalidRequest, r.Offset)
	}
	if _, err := ParseSortColumn(string(r.SortColumn)); err != nil {
		return err
	}
	if r.SortOrder != Ascending && r.SortOrder != Descending {
		return fmt.Errorf("%w: sortOrder must be ASC or DESC (got %q)", ErrInvalidRequest, r.SortOrder)
	}
	return nil
}
