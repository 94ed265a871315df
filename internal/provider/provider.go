// Package provider declares the raw contracts implemented by concrete model
// backends. Callers wrap them with embedding.Client and generation.Client,
// which add timeouts, retry and validation.
package provider

import (
	"context"
	"net/http"

	"studyrag/internal/domain"
	"studyrag/internal/resilience"
)

// Embedder maps a batch of texts to vectors, one per input in input order.
type Embedder interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces raw text for a request.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
}

// ClassifyStatus marks client errors other than rate limiting as permanent so
// they are not retried.
func ClassifyStatus(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return resilience.Permanent(err)
	}
	return err
}
