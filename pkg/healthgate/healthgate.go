package healthgate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/socialite-ai/supervisor/pkg/errors"
	"github.com/socialite-ai/supervisor/pkg/logging"
)

// Policy is the constant liveness polling configuration.
type Policy struct {
	URL         string
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

func ValidatePolicy(policy Policy) error {
	if policy.URL == "" {
		return errors.NewValidationError("health check URL cannot be empty", nil)
	}
	if policy.Interval <= 0 {
		return errors.NewValidationError(fmt.Sprintf("health check interval must be positive: %v", policy.Interval), nil)
	}
	if policy.MaxAttempts <= 0 {
		return errors.NewValidationError(fmt.Sprintf("health check attempts must be positive: %d", policy.MaxAttempts), nil)
	}
	return nil
}

// Gate polls the backend's liveness endpoint before the lifecycle manager
// branches on deployment mode. Polling is sequential and blocking: one
// request, one sleep, no concurrency.
type Gate struct {
	policy Policy
	client *http.Client
	logger logging.Logger
}

func New(policy Policy, logger logging.Logger) *Gate {
	return &Gate{
		policy: policy,
		client: &http.Client{Timeout: policy.Timeout},
		logger: logger,
	}
}

// Wait polls until the endpoint answers with a 2xx status or the attempt
// budget is exhausted. Exhaustion returns a health_check error that the
// caller is expected to treat as non-fatal: a slow-starting backend should
// not take the whole container down with it.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ValidatePolicy(g.policy); err != nil {
		return err
	}

	g.logger.Infof("Waiting for backend liveness, url: %s, interval: %v, max_attempts: %d",
		g.policy.URL, g.policy.Interval, g.policy.MaxAttempts)

	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		healthy, message := g.probe(ctx)
		if healthy {
			g.logger.Infof("Backend is live, attempt: %d/%d, status: %s", attempt, g.policy.MaxAttempts, message)
			return nil
		}

		g.logger.Debugf("Liveness probe failed, attempt: %d/%d, message: %s", attempt, g.policy.MaxAttempts, message)

		select {
		case <-time.After(g.policy.Interval):
		case <-ctx.Done():
			return errors.NewHealthCheckError("liveness polling cancelled", ctx.Err()).WithContext("url", g.policy.URL)
		}
	}

	return errors.NewHealthCheckError(
		fmt.Sprintf("backend not live after %d attempts", g.policy.MaxAttempts), nil,
	).WithContext("url", g.policy.URL)
}

func (g *Gate) probe(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.policy.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("failed to create liveness request: %v", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("liveness request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, resp.Status
	}
	return false, fmt.Sprintf("unexpected status: %s", resp.Status)
}
