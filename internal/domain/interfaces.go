package domain

import "context"

// Chunk is a bounded window of a document's normalized text.
type Chunk struct {
	Content string
	Index   int
	// Page is the 1-based page the window starts on; 0 when unknown.
	Page int
}

// ChunkMetadata travels with an embedded chunk.
type ChunkMetadata struct {
	ChunkIndex int `json:"chunkIndex"`
	Page       int `json:"page,omitempty"`
}

// EmbeddedChunk is a chunk together with its embedding vector.
type EmbeddedChunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId"`
	Content    string        `json:"content"`
	Embedding  []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk EmbeddedChunk
	Score float64
}

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of caller-supplied conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateRequest is a single call to a generative model.
type GenerateRequest struct {
	System      string
	History     []Turn
	Prompt      string
	MaxTokens   int
	Temperature float32
	// Schema, when set, asks the model for JSON output matching it.
	Schema *Schema
	// Model overrides the provider's default model when non-empty.
	Model string
}

// Generator produces text from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
