package farm

import (
	"errors"
	"fmt"
)

// Column is a store-level sort column. Only persisted attributes can be columns.
type Column int

const (
	ColumnName Column = iota
	ColumnCreatedAt
)

// String returns the column's API name.
func (c Column) String() string {
	switch c {
	case ColumnName:
		return "name"
	case ColumnCreatedAt:
		return "date"
	default:
		return fmt.Sprintf("Column(%d)", int(c))
	}
}

// DefaultOutlierBand is the default tolerance around the mean yield (30%).
const DefaultOutlierBand = 0.30

// ErrInvalidPageQuery is returned for negative limits or offsets or unknown columns.
var ErrInvalidPageQuery = errors.New("invalid page query")

// YieldBand restricts a page to farms whose yield lies strictly inside
// (Center*(1-Band), Center*(1+Band)).
type YieldBand struct {
	Center float64
	Band   float64
}

// Min returns the exclusive lower bound.
func (b YieldBand) Min() float64 { return b.Center * (1 - b.Band) }

// Max returns the exclusive upper bound.
func (b YieldBand) Max() float64 { return b.Center * (1 + b.Band) }

// Contains reports whether yield lies strictly inside the band.
func (b YieldBand) Contains(yield float64) bool {
	return yield > b.Min() && yield < b.Max()
}

// PageQuery describes one sorted, paginated read of the farm collection.
// Rows that compare equal on Column come back in store-native order; no
// secondary sort key is applied, so ties are not deterministic across stores.
type PageQuery struct {
	Limit      int
	Offset     int
	Column     Column
	Descending bool

	// Band enables outlier filtering when non-nil.
	Band *YieldBand
}

// Validate checks the query bounds.
func (q PageQuery) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0 (got %d)", ErrInvalidPageQuery, q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0 (got %d)", ErrInvalidPageQuery, q.Offset)
	}
	if q.Column != ColumnName && q.Column != ColumnCreatedAt {
		return fmt.Errorf("%w: unknown column %s", ErrInvalidPageQuery, q.Column)
	}
	return nil
}
