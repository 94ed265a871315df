package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
	"studyrag/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		var body embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 2)
		assert.Equal(t, "models/text-embedding-004", body.Requests[0].Model)
		assert.Equal(t, "second", body.Requests[1].Content.Parts[0].Text)
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`))
	})

	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestEmbedCountMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	})
	_, err := c.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-pro:generateContent", r.URL.Path)
		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "sys", body.SystemInstruction.Parts[0].Text)
		require.Len(t, body.Contents, 3)
		assert.Equal(t, "model", body.Contents[1].Role)
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		assert.Equal(t, "OBJECT", body.GenerationConfig.ResponseSchema["type"])
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"part one "},{"text":"part two"}]}}]}`))
	})

	out, err := c.Generate(context.Background(), domain.GenerateRequest{
		System:  "sys",
		History: []domain.Turn{{Role: domain.RoleUser, Content: "q"}, {Role: domain.RoleAssistant, Content: "a"}},
		Prompt:  "quiz me",
		Schema:  domain.QuizSchema,
		Model:   "gemini-2.5-pro",
	})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
}

func TestStatusClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	})

	_, err := c.Generate(context.Background(), domain.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Contains(t, err.Error(), "nope")

	status.Store(http.StatusTooManyRequests)
	_, err = c.Generate(context.Background(), domain.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsPermanent(err))
}

func TestRenderSchemaUppercasesTypes(t *testing.T) {
	s := renderSchema(domain.QuizSchema)
	items := s["properties"].(map[string]any)["questions"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, "OBJECT", items["type"])
	assert.Equal(t, "INTEGER", items["properties"].(map[string]any)["correctAnswer"].(map[string]any)["type"])
	assert.Equal(t, []string{"question", "options", "correctAnswer", "explanation"}, items["propertyOrdering"])
}
