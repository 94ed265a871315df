package vectorstore

import (
	"context"

	"studyrag/internal/domain"
)

// DefaultTopK is used when a search asks for a non-positive number of results.
const DefaultTopK = 3

// Storage holds one ordered set of embedded chunks per document and answers
// per-document similarity queries. Searching an unknown document returns an
// empty result, not an error.
type Storage interface {
	AddDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error
	SimilaritySearch(ctx context.Context, documentID, query string, topK int) ([]domain.SearchResult, error)
	RemoveDocument(documentID string)
}
