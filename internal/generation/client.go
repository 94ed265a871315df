// Package generation adapts raw provider generators to domain.Generator with
// per-call timeouts, bounded retry and typed errors.
package generation

import (
	"context"
	"fmt"
	"time"

	"studyrag/internal/domain"
	"studyrag/internal/provider"
	"studyrag/internal/resilience"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// Client implements domain.Generator.
type Client struct {
	provider provider.Generator
	timeout  time.Duration
	retry    resilience.RetryConfig
}

var _ domain.Generator = (*Client)(nil)

// New wraps p. A zero timeout selects DefaultTimeout.
func New(p provider.Generator, timeout time.Duration, retry resilience.RetryConfig) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{provider: p, timeout: timeout, retry: retry}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.provider.Name() }

// Generate returns the provider's raw text. Empty text is not an error at
// this layer; callers decide what an empty answer means.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	var out string
	err := resilience.Do(ctx, c.retry, "generate:"+c.provider.Name(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		text, err := c.provider.Generate(callCtx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGenerationProvider, c.provider.Name(), err)
	}
	return out, nil
}
