package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const (
	DefaultChatTopK = 3
	DefaultQuizTopK = 5

	// defaultQuizSearch is the retrieval query for a quiz without a topic.
	defaultQuizSearch = "general knowledge"
)

// Settings tune retrieval and generation per mode.
type Settings struct {
	// ChatTopK is the per-document result count for chat, hint and answer.
	ChatTopK int
	QuizTopK int
	// QuizRetries is how many extra generations are attempted when quiz
	// output fails validation.
	QuizRetries int
	// QuizModel overrides the generator's default model for quiz mode.
	QuizModel string
}

func (s Settings) withDefaults() Settings {
	if s.ChatTopK <= 0 {
		s.ChatTopK = DefaultChatTopK
	}
	if s.QuizTopK <= 0 {
		s.QuizTopK = DefaultQuizTopK
	}
	if s.QuizRetries < 0 {
		s.QuizRetries = 0
	}
	return s
}

// Orchestrator answers student queries from the chunks of the requested
// documents. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	index     vectorstore.Storage
	generator domain.Generator
	settings  Settings
}

func NewOrchestrator(index vectorstore.Storage, generator domain.Generator, settings Settings) *Orchestrator {
	return &Orchestrator{index: index, generator: generator, settings: settings.withDefaults()}
}

// AnswerQuery retrieves context for q from each requested document in order
// and generates the mode's output from it.
func (o *Orchestrator) AnswerQuery(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	mode, err := domain.ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	q.Mode = mode
	q.Text = strings.TrimSpace(q.Text)
	if mode != domain.ModeQuiz && q.Text == "" {
		return nil, fmt.Errorf("%w: %s requires query text", domain.ErrInvalidQuery, mode)
	}
	if len(q.DocumentIDs) == 0 {
		return nil, fmt.Errorf("%w: no documents selected", domain.ErrInvalidQuery)
	}

	start := time.Now()
	topic := strings.TrimSpace(q.Topic)
	if mode == domain.ModeQuiz && topic == "" {
		topic = q.Text
	}

	sources, err := o.retrieve(ctx, q, searchText(q, topic))
	if err != nil {
		return nil, err
	}
	req := buildRequest(q, strings.Join(sources, contextSeparator), topic, o.settings.QuizModel)

	answer := &domain.Answer{Mode: mode, Sources: sources}
	if mode == domain.ModeQuiz {
		quiz, err := o.generateQuiz(ctx, req)
		if err != nil {
			return nil, err
		}
		quiz.Topic = topic
		answer.Quiz = quiz
	} else {
		text, err := o.generate(ctx, req)
		if err != nil {
			return nil, err
		}
		answer.Text = text
	}

	logger.Infow("query answered",
		"mode", string(mode),
		"documents", len(q.DocumentIDs),
		"sources", len(sources),
		"generator", o.generator.Name(),
		"duration", time.Since(start).String(),
	)
	return answer, nil
}

func searchText(q domain.Query, topic string) string {
	if q.Mode != domain.ModeQuiz {
		return q.Text
	}
	if topic != "" {
		return topic
	}
	return defaultQuizSearch
}

func (o *Orchestrator) topK(q domain.Query) int {
	switch {
	case q.TopK > 0:
		return q.TopK
	case q.Mode == domain.ModeQuiz:
		return o.settings.QuizTopK
	default:
		return o.settings.ChatTopK
	}
}

// retrieve concatenates per-document results in the caller's document order.
func (o *Orchestrator) retrieve(ctx context.Context, q domain.Query, text string) ([]string, error) {
	k := o.topK(q)
	sources := make([]string, 0, k*len(q.DocumentIDs))
	for _, id := range q.DocumentIDs {
		results, err := o.index.SimilaritySearch(ctx, id, text, k)
		if err != nil {
			return nil, fmt.Errorf("search document %s: %w", id, err)
		}
		for _, r := range results {
			sources = append(sources, r.Chunk.Content)
		}
	}
	if len(sources) == 0 {
		logger.Debugw("no context retrieved", "mode", string(q.Mode), "documents", q.DocumentIDs)
	}
	return sources, nil
}

func (o *Orchestrator) generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	out, err := o.generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s returned no text", domain.ErrEmptyGeneration, o.generator.Name())
	}
	return out, nil
}

// generateQuiz retries only on malformed output, and only as many times as
// configured. Provider errors already carry their own retry policy.
func (o *Orchestrator) generateQuiz(ctx context.Context, req domain.GenerateRequest) (*domain.Quiz, error) {
	attempts := o.settings.QuizRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := o.generate(ctx, req)
		if err != nil {
			return nil, err
		}
		quiz, err := ParseQuiz(out)
		if err == nil {
			return quiz, nil
		}
		lastErr = err
		if attempt < attempts {
			logger.Warnw("quiz output rejected, regenerating",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err.Error(),
			)
		}
	}
	return nil, lastErr
}
