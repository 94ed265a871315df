package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

// letterEmbedder maps text to its a-z letter counts, optionally padded to a
// larger dimension.
type letterEmbedder struct {
	dim        int
	embedCalls atomic.Int32
	batchCalls atomic.Int32
	err        error
}

func (e *letterEmbedder) Name() string { return "letters" }

func (e *letterEmbedder) vec(text string) []float32 {
	dim := e.dim
	if dim == 0 {
		dim = 26
	}
	v := make([]float32, dim)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e *letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.embedCalls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec(text), nil
}

func (e *letterEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func chunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Content: t, Index: i}
	}
	return out
}

func TestAddAndSearch(t *testing.T) {
	emb := &letterEmbedder{}
	s := NewStorage(emb)
	ctx := context.Background()

	require.NoError(t, s.AddDocument(ctx, "doc", chunks("aaaa", "bbbb", "abab", "cccc", "zzzz")))
	assert.Equal(t, int32(1), emb.batchCalls.Load(), "chunks are embedded in one batch")

	res, err := s.SimilaritySearch(ctx, "doc", "bbbb", 0)
	require.NoError(t, err)
	require.Len(t, res, 3, "default top k")
	assert.Equal(t, "bbbb", res[0].Chunk.Content)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "doc_1", res[0].Chunk.ID)
	assert.Equal(t, "abab", res[1].Chunk.Content)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	res, err = s.SimilaritySearch(ctx, "doc", "bbbb", 10)
	require.NoError(t, err)
	assert.Len(t, res, 5)

	res, err = s.SimilaritySearch(ctx, "doc", "bbbb", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSearchTiesKeepChunkOrder(t *testing.T) {
	s := NewStorage(&letterEmbedder{})
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, "doc", chunks("xy", "aa", "yx", "bb", "xxyy")))

	res, err := s.SimilaritySearch(ctx, "doc", "xy", 5)
	require.NoError(t, err)
	got := make([]int, len(res))
	for i, r := range res {
		got[i] = r.Chunk.Metadata.ChunkIndex
	}
	assert.Equal(t, []int{0, 2, 4, 1, 3}, got)
}

func TestSearchZeroVectorsDoNotBreakOrdering(t *testing.T) {
	s := NewStorage(&letterEmbedder{})
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, "doc", chunks("123", "abc", "...", "cab")))

	res, err := s.SimilaritySearch(ctx, "doc", "abc", 4)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, []string{"abc", "cab", "123", "..."}, []string{
		res[0].Chunk.Content, res[1].Chunk.Content, res[2].Chunk.Content, res[3].Chunk.Content,
	})
	assert.Zero(t, res[2].Score)

	res, err = s.SimilaritySearch(ctx, "doc", "!!!", 2)
	require.NoError(t, err)
	for _, r := range res {
		assert.Zero(t, r.Score)
	}
	assert.Equal(t, 0, res[0].Chunk.Metadata.ChunkIndex)
}

func TestUnknownDocumentIsEmpty(t *testing.T) {
	emb := &letterEmbedder{}
	s := NewStorage(emb)
	res, err := s.SimilaritySearch(context.Background(), "nonexistent-id", "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
	assert.Zero(t, emb.embedCalls.Load(), "no embedding for unknown documents")
}

func TestStoredOrderFollowsChunkIndex(t *testing.T) {
	s := NewStorage(&letterEmbedder{})
	in := []domain.Chunk{{Content: "c", Index: 2}, {Content: "a", Index: 0}, {Content: "b", Index: 1, Page: 4}}
	require.NoError(t, s.AddDocument(context.Background(), "doc", in))

	res, err := s.SimilaritySearch(context.Background(), "doc", "z", 3)
	require.NoError(t, err)
	assert.Equal(t, "a", res[0].Chunk.Content)
	assert.Equal(t, "b", res[1].Chunk.Content)
	assert.Equal(t, 4, res[1].Chunk.Metadata.Page)
	assert.Equal(t, "c", res[2].Chunk.Content)
	assert.Equal(t, 2, in[0].Index, "input slice untouched")
}

func TestRemoveDocumentIsIdempotent(t *testing.T) {
	s := NewStorage(&letterEmbedder{})
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, "doc", chunks("abc")))
	s.RemoveDocument("doc")
	s.RemoveDocument("doc")
	s.RemoveDocument("never-added")

	res, err := s.SimilaritySearch(ctx, "doc", "abc", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Empty(t, s.Documents())
	assert.Zero(t, s.Dimension())
}

func TestEmbeddingErrorsPropagate(t *testing.T) {
	cause := fmt.Errorf("%w: boom", domain.ErrEmbeddingProvider)
	emb := &letterEmbedder{err: cause}
	s := NewStorage(emb)
	err := s.AddDocument(context.Background(), "doc", chunks("abc"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.Empty(t, s.Documents(), "failed ingestion stores nothing")
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	small := &letterEmbedder{dim: 26}
	s := NewStorage(small)
	require.NoError(t, s.AddDocument(ctx, "a", chunks("abc")))
	require.NoError(t, s.AddDocument(ctx, "b", chunks("def")))

	small.dim = 32
	err := s.AddDocument(ctx, "c", chunks("ghi"))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	var dm *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 26, dm.Want)
	assert.Equal(t, 32, dm.Got)

	_, err = s.SimilaritySearch(ctx, "a", "abc", 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestReingestReplacesAtomically(t *testing.T) {
	s := NewStorage(&letterEmbedder{})
	ctx := context.Background()
	v1 := chunks("alpha one", "alpha two", "alpha three")
	v2 := chunks("beta one", "beta two", "beta three", "beta four")
	require.NoError(t, s.AddDocument(ctx, "doc", v1))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var mixed atomic.Int32
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := s.SimilaritySearch(ctx, "doc", "one", 10)
				if err != nil {
					mixed.Add(1)
					return
				}
				alpha, beta := 0, 0
				for _, r := range res {
					if strings.HasPrefix(r.Chunk.Content, "alpha") {
						alpha++
					} else {
						beta++
					}
				}
				if (alpha > 0 && beta > 0) || (alpha != 0 && alpha != 3) || (beta != 0 && beta != 4) {
					mixed.Add(1)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		next := v2
		if i%2 == 1 {
			next = v1
		}
		require.NoError(t, s.AddDocument(ctx, "doc", next))
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, mixed.Load())

	stats, ok := s.Stats("doc")
	require.True(t, ok)
	assert.Equal(t, 3, stats.Chunks)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(&letterEmbedder{}, WithDefaultTopK(1))
	require.NoError(t, s.AddDocument(ctx, "doc", []domain.Chunk{{Content: "abc", Index: 0, Page: 2}, {Content: "xyz", Index: 1}}))

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf))

	restored := NewStorage(&letterEmbedder{}, WithDefaultTopK(1))
	require.NoError(t, restored.Load(&buf))
	assert.Equal(t, []string{"doc"}, restored.Documents())
	assert.Equal(t, 26, restored.Dimension())

	res, err := restored.SimilaritySearch(ctx, "doc", "abc", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "abc", res[0].Chunk.Content)
	assert.Equal(t, 2, res[0].Chunk.Metadata.Page)

	path := filepath.Join(t.TempDir(), "nested", "index.gob")
	require.NoError(t, restored.LoadFile(path), "missing snapshot is not an error")
	require.NoError(t, s.SaveFile(path))
	fromFile := NewStorage(&letterEmbedder{})
	require.NoError(t, fromFile.LoadFile(path))
	assert.Equal(t, []string{"doc"}, fromFile.Documents())

	assert.Error(t, fromFile.Load(strings.NewReader("garbage")))
	assert.Equal(t, []string{"doc"}, fromFile.Documents(), "failed load keeps contents")
}
