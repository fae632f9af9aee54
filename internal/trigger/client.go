// Package trigger invokes the auto-cancel endpoint from outside the service,
// once or on a cron schedule.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mobilemech/internal/config"

	"github.com/rs/zerolog"
)

// Result mirrors the endpoint's response body.
type Result struct {
	Success                bool     `json:"success"`
	Message                string   `json:"message,omitempty"`
	EliminatedCount        int      `json:"eliminatedCount"`
	EliminatedAppointments []string `json:"eliminatedAppointments,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auto-cancel returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("auto-cancel returned status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	endpoint   string
	serviceKey string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.TriggerConfig, logger *zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("trigger.endpoint is required")
	}
	if cfg.ServiceKey == "" {
		return nil, errors.New("trigger.service_key is required")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      PolicyFromConfig(cfg.Retry),
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

// Invoke calls the endpoint, retrying network errors, 429 and 5xx
// responses according to the retry policy.
func (c *Client) Invoke(ctx context.Context) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.NextDelay(attempt)
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying auto-cancel")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		res, err := c.call(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("auto-cancel failed after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}

func (c *Client) call(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var res Result
	decodeErr := json.Unmarshal(body, &res)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: res.Error}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
