// Package distance resolves distances from one origin to many destinations.
//
// Coordinates are passed as "lat,lng" text exactly as stored. Results are in
// meters and positionally aligned with the destinations slice: result[i] is the
// distance from origin to destinations[i].
//
// GoogleClient sends the whole page in one Distance Matrix request. The
// provider accepts at most GoogleMaxDestinations destinations per request and
// answers larger ones with MAX_DIMENSIONS_EXCEEDED, which surfaces as
// ErrUpstreamUnavailable. With the Google backend, keep page limits at or
// below GoogleMaxDestinations; the great-circle backend has no such cap.
package distance

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamUnavailable is returned when the distance provider fails, times out,
	// or returns a response that cannot be aligned with the request.
	ErrUpstreamUnavailable = errors.New("distance provider unavailable")

	// ErrNoDestinations is returned when Distances is called with no destinations.
	ErrNoDestinations = errors.New("at least one destination is required")
)

// Client computes distances from one origin to N destinations.
type Client interface {
	// Distances returns len(destinations) distances in meters, in destination order.
	Distances(ctx context.Context, origin string, destinations []string) ([]float64, error)
}
