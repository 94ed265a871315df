package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
	"studyrag/internal/provider"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultEmbedModel = "text-embedding-3-small"
	DefaultChatModel  = "gpt-4o"
)

// Config configures the OpenAI-compatible client. Any endpoint speaking the
// OpenAI wire format (Ollama's /v1, vLLM, LiteLLM) works through BaseURL.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
}

// Client implements provider.Embedder and provider.Generator.
type Client struct {
	api        *goopenai.Client
	embedModel string
	chatModel  string
}

// NewClient creates a new client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && strings.HasPrefix(cfg.BaseURL, DefaultBaseURL) {
		return nil, fmt.Errorf("%w: openai api key is empty", domain.ErrInvalidConfiguration)
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:        goopenai.NewClientWithConfig(oc),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
	}, nil
}

// Name returns the identifier of this provider.
func (c *Client) Name() string { return "openai" }

// Model returns the embedding model name.
func (c *Client) Model() string { return c.embedModel }

// Embed returns one vector per text, ordered as the input.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, classify("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("openai embeddings: bad index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Generate runs a chat completion. A request schema switches the response
// format to JSON schema output.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, t := range req.History {
		role := goopenai.ChatMessageRoleUser
		if t.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	model := c.chatModel
	if req.Model != "" {
		model = req.Model
	}
	creq := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.Schema != nil {
		raw, err := json.Marshal(renderSchema(req.Schema))
		if err != nil {
			return "", err
		}
		creq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: json.RawMessage(raw),
			},
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(op string, err error) error {
	wrapped := fmt.Errorf("openai %s: %w", op, err)
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return provider.ClassifyStatus(apiErr.HTTPStatusCode, wrapped)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return provider.ClassifyStatus(reqErr.HTTPStatusCode, wrapped)
	}
	return wrapped
}

func renderSchema(s *domain.Schema) map[string]any {
	out := map[string]any{"type": string(s.Type)}
	switch s.Type {
	case domain.TypeObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = renderSchema(p)
		}
		out["properties"] = props
		out["required"] = s.Required()
		out["additionalProperties"] = false
	case domain.TypeArray:
		if s.Items != nil {
			out["items"] = renderSchema(s.Items)
		}
		if s.MinItems > 0 {
			out["minItems"] = s.MinItems
		}
		if s.MaxItems > 0 {
			out["maxItems"] = s.MaxItems
		}
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	return out
}
