package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// UpstreamChecker checks that the distance provider is reachable.
// Any response below 500 counts as reachable; the provider answers
// unauthenticated probes with a 200 and an error status in the body.
type UpstreamChecker struct {
	url    string
	client *http.Client
}

// NewUpstreamChecker creates a checker for the given endpoint URL.
func NewUpstreamChecker(url string) *UpstreamChecker {
	return &UpstreamChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck issues a GET against the endpoint.
func (u *UpstreamChecker) HealthCheck(ctx context.Context) error {
	if u.url == "" {
		return fmt.Errorf("upstream url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream unhealthy: status code %d", resp.StatusCode)
	}
	return nil
}
