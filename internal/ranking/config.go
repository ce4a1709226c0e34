package ranking

import (
	"fmt"

	"github.com/onnwee/farmrank/internal/farm"
)

// Config holds tunable pipeline parameters.
type Config struct {
	// OutlierBand is the relative tolerance around the mean yield used when
	// outlier filtering is requested (0.3 keeps yields within ±30%).
	OutlierBand float64
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{OutlierBand: farm.DefaultOutlierBand}
}

// Validate checks that the band is a usable fraction.
func (c Config) Validate() error {
	if c.OutlierBand <= 0 || c.OutlierBand >= 1 {
		return fmt.Errorf("outlier band must be between 0 and 1 exclusive (got %v)", c.OutlierBand)
	}
	return nil
}
