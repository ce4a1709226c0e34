package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/farmrank/internal/tracing"
)

// DefaultGoogleURL is the Google Distance Matrix JSON endpoint.
const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// GoogleMaxDestinations is the provider's per-request destination limit.
const GoogleMaxDestinations = 25

// googleStatusOK is the status Google uses for both the envelope and each element.
const googleStatusOK = "OK"

// GoogleConfig configures a GoogleClient.
type GoogleConfig struct {
	URL     string
	APIKey  string
	Units   string
	Timeout time.Duration

	// HTTPClient overrides the default instrumented client. Used in tests.
	HTTPClient *http.Client
}

// GoogleClient resolves distances with the Google Distance Matrix API.
type GoogleClient struct {
	url     string
	apiKey  string
	units   string
	timeout time.Duration
	client  *http.Client
	metrics *Metrics
	logger  *slog.Logger
}

// NewGoogleClient creates a Distance Matrix client. metrics may be nil.
func NewGoogleClient(cfg GoogleConfig, metrics *Metrics, logger *slog.Logger) *GoogleClient {
	if cfg.URL == "" {
		cfg.URL = DefaultGoogleURL
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			}),
		}
	}

	return &GoogleClient{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		units:   cfg.Units,
		timeout: cfg.Timeout,
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
}

// matrixResponse is the subset of the Distance Matrix response the client reads.
type matrixResponse struct {
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Rows         []matrixRow `json:"rows"`
}

type matrixRow struct {
	Elements []matrixElement `json:"elements"`
}

type matrixElement struct {
	Status   string      `json:"status"`
	Distance matrixValue `json:"distance"`
	Duration matrixValue `json:"duration"`
}

type matrixValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// Distances calls the Distance Matrix API once for all destinations. More
// than GoogleMaxDestinations destinations are sent as is and rejected by the
// provider.
// The call is bounded by the configured timeout. Any failure, including a
// response whose element count differs from len(destinations), wraps
// ErrUpstreamUnavailable.
func (c *GoogleClient) Distances(ctx context.Context, origin string, destinations []string) (result []float64, err error) {
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}

	ctx, endSpan := tracing.StartSpan(ctx, "distance.lookup",
		attribute.Int("distance.destinations", len(destinations)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveLookup(lookupStatus(err), time.Since(start).Seconds())
		endSpan(err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.fetch(ctx, origin, destinations)
	if err != nil {
		c.logger.WarnContext(ctx, "distance lookup failed",
			slog.Int("destinations", len(destinations)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	result, err = parseMatrix(body, len(destinations))
	if err != nil {
		c.logger.WarnContext(ctx, "distance response rejected",
			slog.Int("destinations", len(destinations)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return result, nil
}

func (c *GoogleClient) fetch(ctx context.Context, origin string, destinations []string) ([]byte, error) {
	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", strings.Join(destinations, "|"))
	params.Set("units", c.units)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// parseMatrix extracts rows[0].elements[i].distance.value for each destination.
func parseMatrix(body []byte, want int) ([]float64, error) {
	var resp matrixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	if resp.Status != googleStatusOK {
		if resp.ErrorMessage != "" {
			return nil, fmt.Errorf("provider status %s: %s", resp.Status, resp.ErrorMessage)
		}
		return nil, fmt.Errorf("provider status %s", resp.Status)
	}
	if len(resp.Rows) == 0 {
		return nil, errors.New("response has no rows")
	}

	elements := resp.Rows[0].Elements
	if len(elements) != want {
		return nil, fmt.Errorf("expected %d elements, got %d", want, len(elements))
	}

	distances := make([]float64, len(elements))
	for i, el := range elements {
		if el.Status != googleStatusOK {
			return nil, fmt.Errorf("element %d status %s", i, el.Status)
		}
		distances[i] = el.Distance.Value
	}
	return distances, nil
}

func lookupStatus(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusError
	}
}
