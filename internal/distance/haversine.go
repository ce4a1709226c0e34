package distance

import (
	"context"
	"fmt"

	"github.com/onnwee/farmrank/internal/geo"
)

// HaversineClient computes great-circle distances locally.
// It serves development setups that have no Distance Matrix API key.
type HaversineClient struct{}

// NewHaversineClient creates a local great-circle distance client.
func NewHaversineClient() *HaversineClient {
	return &HaversineClient{}
}

// Distances returns the great-circle distance in meters to each destination.
// Unparseable coordinates fail the whole call, like an element error upstream.
func (c *HaversineClient) Distances(ctx context.Context, origin string, destinations []string) ([]float64, error) {
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}

	from, err := geo.ParsePoint(origin)
	if err != nil {
		return nil, fmt.Errorf("%w: origin: %w", ErrUpstreamUnavailable, err)
	}

	distances := make([]float64, len(destinations))
	for i, d := range destinations {
		to, err := geo.ParsePoint(d)
		if err != nil {
			return nil, fmt.Errorf("%w: destination %d: %w", ErrUpstreamUnavailable, i, err)
		}
		distances[i] = geo.HaversineMeters(from, to)
	}
	return distances, nil
}
