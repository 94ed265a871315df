// Package embedding adapts raw provider embedders to domain.Embedder, adding
// batching, per-call timeouts, bounded retry, output validation and an
// optional cache.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"studyrag/internal/domain"
	"studyrag/internal/provider"
	"studyrag/internal/resilience"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
	DefaultTimeout   = 30 * time.Second
)

// Cache stores vectors by model and text. Lookup returns a slice aligned
// with texts holding nil for misses.
type Cache interface {
	Lookup(ctx context.Context, model string, texts []string) [][]float32
	Store(ctx context.Context, model string, texts []string, vecs [][]float32)
}

// Options tune a Client. Zero values select defaults; Retry's zero value
// makes a single attempt.
type Options struct {
	BatchSize int
	Workers   int
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	Cache     Cache
}

// Client implements domain.Embedder over a provider.Embedder.
type Client struct {
	provider provider.Embedder
	opts     Options
	pool     *ants.Pool
}

var _ domain.Embedder = (*Client)(nil)

// New creates a Client and its worker pool. Call Close to release the pool.
func New(p provider.Embedder, opts Options) (*Client, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	pool, err := ants.NewPool(opts.Workers,
		ants.WithExpiryDuration(time.Minute),
		ants.WithPanicHandler(func(r interface{}) {
			logger.Errorw("embedding worker panic", "provider", p.Name(), "panic", fmt.Sprint(r))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding worker pool: %w", err)
	}
	return &Client{provider: p, opts: opts, pool: pool}, nil
}

// Close releases the worker pool.
func (c *Client) Close() { c.pool.Release() }

// Name returns the provider and model in use.
func (c *Client) Name() string { return c.provider.Name() + "/" + c.provider.Model() }

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts and returns vectors in input order. Provider
// batches run concurrently on the worker pool.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	model := c.provider.Model()
	if c.opts.Cache != nil {
		copy(out, c.opts.Cache.Lookup(ctx, model, texts))
	}
	var missing []int
	for i, v := range out {
		if v == nil {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		if err := c.fill(ctx, texts, missing, out); err != nil {
			return nil, err
		}
	}
	if err := validate(out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingProvider, c.provider.Name(), err)
	}

	if c.opts.Cache != nil && len(missing) > 0 {
		fresh := make([]string, len(missing))
		vecs := make([][]float32, len(missing))
		for j, i := range missing {
			fresh[j], vecs[j] = texts[i], out[i]
		}
		c.opts.Cache.Store(ctx, model, fresh, vecs)
	}
	return out, nil
}

// fill embeds texts[idx] for every idx in missing and writes the vectors into out.
func (c *Client) fill(ctx context.Context, texts []string, missing []int, out [][]float32) error {
	var batches [][]int
	for start := 0; start < len(missing); start += c.opts.BatchSize {
		batches = append(batches, missing[start:min(start+c.opts.BatchSize, len(missing))])
	}
	if len(batches) == 1 {
		return c.runBatch(ctx, texts, batches[0], out)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for _, b := range batches {
		wg.Add(1)
		if err := c.pool.Submit(func() {
			defer wg.Done()
			if err := c.runBatch(ctx, texts, b, out); err != nil {
				fail(err)
			}
		}); err != nil {
			wg.Done()
			fail(fmt.Errorf("%w: submit batch: %w", domain.ErrEmbeddingProvider, err))
			break
		}
	}
	wg.Wait()
	return firstErr
}

func (c *Client) runBatch(ctx context.Context, texts []string, idx []int, out [][]float32) error {
	in := make([]string, len(idx))
	for j, i := range idx {
		in[j] = texts[i]
	}
	var vecs [][]float32
	err := resilience.Do(ctx, c.opts.Retry, "embed:"+c.provider.Name(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		v, err := c.provider.Embed(callCtx, in)
		if err != nil {
			return err
		}
		if len(v) != len(in) {
			return resilience.Permanent(fmt.Errorf("got %d vectors for %d inputs", len(v), len(in)))
		}
		vecs = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingProvider, c.provider.Name(), err)
	}
	for j, i := range idx {
		out[i] = vecs[j]
	}
	return nil
}

var (
	errEmptyVector = errors.New("empty vector")
	errNonFinite   = errors.New("non-finite value in vector")
	errRagged      = errors.New("vectors of different lengths in one call")
)

func validate(vecs [][]float32) error {
	dim := -1
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("vector %d: %w", i, errEmptyVector)
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("vector %d has length %d, want %d: %w", i, len(v), dim, errRagged)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("vector %d: %w", i, errNonFinite)
			}
		}
	}
	return nil
}
