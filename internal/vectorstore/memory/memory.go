package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

// Storage is an in-memory vector index using brute-force cosine similarity.
// Each document's chunk set is immutable once stored; re-ingestion swaps in
// a new set under the write lock, so readers see the old or the new set but
// never a mix.
type Storage struct {
	embedder    domain.Embedder
	defaultTopK int

	mu        sync.RWMutex
	dimension int
	docs      map[string]*docSet
}

type docSet struct {
	chunks    []domain.EmbeddedChunk
	dimension int
}

var _ vectorstore.Storage = (*Storage)(nil)

// Option configures a Storage.
type Option func(*Storage)

// WithDefaultTopK sets the result count used when a search passes topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(s *Storage) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// NewStorage creates an empty index that embeds through embedder.
func NewStorage(embedder domain.Embedder, opts ...Option) *Storage {
	s := &Storage{
		embedder:    embedder,
		defaultTopK: vectorstore.DefaultTopK,
		docs:        make(map[string]*docSet),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddDocument embeds chunks in one batch and replaces any previous set for
// documentID. The stored order follows chunk index regardless of input order.
func (s *Storage) AddDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	ordered := make([]domain.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	set := &docSet{chunks: make([]domain.EmbeddedChunk, len(ordered))}
	if len(ordered) > 0 {
		texts := make([]string, len(ordered))
		for i, ch := range ordered {
			texts[i] = ch.Content
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("add document %s: %w", documentID, err)
		}
		if len(vecs) != len(ordered) {
			return fmt.Errorf("add document %s: %w: got %d vectors for %d chunks",
				documentID, domain.ErrEmbeddingProvider, len(vecs), len(ordered))
		}
		set.dimension = len(vecs[0])
		for i, ch := range ordered {
			if len(vecs[i]) != set.dimension {
				return fmt.Errorf("add document %s: chunk %d: %w", documentID, ch.Index,
					&domain.DimensionMismatchError{Want: set.dimension, Got: len(vecs[i])})
			}
			set.chunks[i] = domain.EmbeddedChunk{
				ID:         fmt.Sprintf("%s_%d", documentID, ch.Index),
				DocumentID: documentID,
				Content:    ch.Content,
				Embedding:  vecs[i],
				Metadata:   domain.ChunkMetadata{ChunkIndex: ch.Index, Page: ch.Page},
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if set.dimension > 0 {
		if s.dimension == 0 || s.onlyDocument(documentID) {
			s.dimension = set.dimension
		} else if s.dimension != set.dimension {
			return fmt.Errorf("add document %s: %w", documentID,
				&domain.DimensionMismatchError{Want: s.dimension, Got: set.dimension})
		}
	}
	s.docs[documentID] = set
	logger.Infow("document indexed", "document_id", documentID, "chunks", len(set.chunks), "dimension", set.dimension)
	return nil
}

// onlyDocument reports whether id is the sole document holding vectors.
// Caller holds s.mu.
func (s *Storage) onlyDocument(id string) bool {
	for other, set := range s.docs {
		if other != id && set.dimension > 0 {
			return false
		}
	}
	return true
}

// SimilaritySearch embeds query and returns the topK most similar chunks of
// documentID, best first. Equal scores keep chunk order.
func (s *Storage) SimilaritySearch(ctx context.Context, documentID, query string, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	set := s.docs[documentID]
	s.mu.RUnlock()
	if set == nil || len(set.chunks) == 0 {
		return []domain.SearchResult{}, nil
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %s: embed query: %w", documentID, err)
	}
	if len(q) != set.dimension {
		return nil, fmt.Errorf("search %s: %w", documentID,
			&domain.DimensionMismatchError{Want: set.dimension, Got: len(q)})
	}

	results := make([]domain.SearchResult, len(set.chunks))
	for i, ch := range set.chunks {
		results[i] = domain.SearchResult{Chunk: ch, Score: vectorstore.Cosine(q, ch.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// RemoveDocument drops documentID. Unknown ids are ignored.
func (s *Storage) RemoveDocument(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return
	}
	delete(s.docs, documentID)
	if s.onlyDocument(documentID) {
		s.dimension = 0
	}
	logger.Infow("document removed from index", "document_id", documentID)
}

// DocumentStats describes one indexed document.
type DocumentStats struct {
	Chunks    int `json:"chunks"`
	Dimension int `json:"dimension"`
}

// Stats reports the chunk count and dimension of documentID.
func (s *Storage) Stats(documentID string) (DocumentStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.docs[documentID]
	if !ok {
		return DocumentStats{}, false
	}
	return DocumentStats{Chunks: len(set.chunks), Dimension: set.dimension}, true
}

// Documents returns the indexed document ids in sorted order.
func (s *Storage) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dimension returns the vector length shared by every stored chunk, or 0
// while the index holds no vectors.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}
