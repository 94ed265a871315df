// Package local provides an offline embedder that needs no model server.
package local

import (
	"context"
	"fmt"
	"math"

	"github.com/minio/highwayhash"

	"studyrag/internal/domain"
	"studyrag/internal/textutil"
)

// DefaultDimension is the vector length used when none is configured.
const DefaultDimension = 384

// hashKey is fixed so vectors are stable across processes and snapshots.
var hashKey = []byte("studyrag/local/hashing/embedder.")

// HashingEmbedder projects term frequencies into a fixed number of buckets
// using signed feature hashing, then L2-normalizes the result.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates an embedder producing vectors of the given length.
func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension == 0 {
		dimension = DefaultDimension
	}
	if dimension < 0 {
		return nil, fmt.Errorf("%w: local embedder dimension must be positive, got %d", domain.ErrInvalidConfiguration, dimension)
	}
	return &HashingEmbedder{dimension: dimension}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *HashingEmbedder) Name() string { return "local" }

// Model encodes the dimension so cache keys differ between configurations.
func (e *HashingEmbedder) Model() string { return fmt.Sprintf("hashing-%d", e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

// Embed returns one vector per text. Text without any terms maps to the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashingEmbedder) vector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range textutil.Terms(text) {
		tf[tok]++
	}
	acc := make([]float64, e.dimension)
	for tok, count := range tf {
		h := highwayhash.Sum64([]byte(tok), hashKey)
		idx := int(h % uint64(e.dimension))
		w := 1 + math.Log(float64(count))
		if h&(1<<63) != 0 {
			w = -w
		}
		acc[idx] += w
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}
