package ranking

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindEntityNotFound
	KindInvalidParameter
	KindStoreUnavailable
	KindUpstreamUnavailable
)

// String returns the stable snake_case name of the kind.
// The API uses it as the error code.
func (k Kind) String() string {
	switch k {
	case KindEntityNotFound:
		return "entity_not_found"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the pipeline.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ranking %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("ranking %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain,
// or KindUnknown if there is none.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}
