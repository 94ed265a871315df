package service

import (
	"fmt"
	"strings"

	"studyrag/internal/domain"
)

// contextSeparator joins retrieved chunks into one context block.
const contextSeparator = "\n\n"

const (
	chatSystem = "You are a friendly study assistant. Answer using the excerpts from the student's course material below. " +
		"If the excerpts do not cover the question, say so and offer general guidance instead of inventing details."
	quizSystem = "You write multiple-choice quizzes for students from their course material. " +
		"Reply with JSON only."
	hintSystem = "You are a patient tutor. Give one short hint that points the student toward the answer without stating it. " +
		"Be concise and encouraging."
	answerSystem = "You are a thorough tutor. Give a complete, well-structured answer with explanations, worked examples " +
		"and any relevant details from the course material."
)

type modeParams struct {
	maxTokens   int
	temperature float32
}

var defaultModeParams = map[domain.Mode]modeParams{
	domain.ModeChat:   {maxTokens: 500, temperature: 0.7},
	domain.ModeQuiz:   {maxTokens: 2000, temperature: 0.8},
	domain.ModeHint:   {maxTokens: 150, temperature: 0.7},
	domain.ModeAnswer: {maxTokens: 800, temperature: 0.7},
}

func contextBlock(context string) string {
	if strings.TrimSpace(context) == "" {
		return "Course material: (no matching excerpts were found)"
	}
	return "Course material:\n" + context
}

// buildRequest assembles the generation request for q over the joined context.
func buildRequest(q domain.Query, context, topic string, quizModel string) domain.GenerateRequest {
	p := defaultModeParams[q.Mode]
	req := domain.GenerateRequest{MaxTokens: p.maxTokens, Temperature: p.temperature}

	switch q.Mode {
	case domain.ModeChat:
		req.System = chatSystem + "\n\n" + contextBlock(context)
		req.History = q.History
		req.Prompt = q.Text
	case domain.ModeQuiz:
		scope := ""
		if topic != "" {
			scope = fmt.Sprintf(" on the topic %q", topic)
		}
		req.System = quizSystem
		req.Prompt = fmt.Sprintf("Create %d multiple-choice questions%s based only on the course material below. "+
			"Each question must have exactly %d options with exactly one correct option. "+
			"Respond as {\"questions\":[{\"question\":string,\"options\":[%d strings],\"correctAnswer\":index from 0 to %d,\"explanation\":string}]}."+
			"\n\n%s",
			domain.QuizQuestionCount, scope, domain.QuizOptionCount, domain.QuizOptionCount, domain.QuizOptionCount-1,
			contextBlock(context))
		req.Schema = domain.QuizSchema
		req.Model = quizModel
	case domain.ModeHint:
		req.System = hintSystem
		req.Prompt = contextBlock(context) + "\n\nQuestion: " + q.Text
	case domain.ModeAnswer:
		req.System = answerSystem
		req.Prompt = contextBlock(context) + "\n\nQuestion: " + q.Text
	}
	return req
}
