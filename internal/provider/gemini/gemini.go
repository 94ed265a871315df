// Package gemini talks to the Google Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyrag/internal/domain"
	"studyrag/internal/provider"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultEmbedModel = "text-embedding-004"
	DefaultChatModel  = "gemini-2.5-flash"
)

// Config configures the Gemini client.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
}

// Client implements provider.Embedder and provider.Generator.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates cfg and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name returns the identifier of this provider.
func (c *Client) Name() string { return "gemini" }

// Model returns the embedding model name.
func (c *Client) Model() string { return c.cfg.EmbedModel }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed calls batchEmbedContents.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqs := make([]embedContentRequest, len(texts))
	for i, t := range texts {
		reqs[i] = embedContentRequest{
			Model:   "models/" + c.cfg.EmbedModel,
			Content: content{Parts: []part{{Text: t}}},
		}
	}
	var resp embedResponse
	if err := c.post(ctx, c.cfg.EmbedModel+":batchEmbedContents", embedRequest{Requests: reqs}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature      float32        `json:"temperature,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Generate calls generateContent. History roles map to user and model.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	body := generateRequest{
		GenerationConfig: &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, t := range req.History {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, content{Role: role, Parts: []part{{Text: t.Content}}})
	}
	body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: req.Prompt}}})
	if req.Schema != nil {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = renderSchema(req.Schema)
	}

	model := c.cfg.ChatModel
	if req.Model != "" {
		model = req.Model
	}
	var resp generateResponse
	if err := c.post(ctx, model+":generateContent", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func (c *Client) post(ctx context.Context, method string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/models/%s", c.cfg.BaseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gemini %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return provider.ClassifyStatus(resp.StatusCode,
			fmt.Errorf("gemini %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gemini %s: decode response: %w", method, err)
	}
	return nil
}

// renderSchema emits the OpenAPI subset Gemini accepts, with upper-case type
// names and explicit property ordering.
func renderSchema(s *domain.Schema) map[string]any {
	out := map[string]any{"type": strings.ToUpper(string(s.Type))}
	switch s.Type {
	case domain.TypeObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = renderSchema(p)
		}
		out["properties"] = props
		out["required"] = s.Required()
		if len(s.Order) > 0 {
			out["propertyOrdering"] = s.Order
		}
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
