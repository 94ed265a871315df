package service

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"studyrag/internal/domain"
)

type rawQuiz struct {
	Questions []rawQuestion `json:"questions"`
}

type rawQuestion struct {
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
}

// ParseQuiz decodes and validates model output for quiz mode. It accepts a
// bare JSON object or one wrapped in a markdown code fence. Anything short
// of exactly five well-formed questions is a MalformedGenerationError.
func ParseQuiz(raw string) (*domain.Quiz, error) {
	body := stripFence(strings.TrimSpace(raw))
	if body == "" {
		return nil, domain.Malformed("empty quiz output")
	}

	var rq rawQuiz
	if err := json.Unmarshal([]byte(body), &rq); err != nil {
		return nil, domain.Malformed("decode quiz json: %v", err)
	}
	if len(rq.Questions) != domain.QuizQuestionCount {
		return nil, domain.Malformed("expected %d questions, got %d", domain.QuizQuestionCount, len(rq.Questions))
	}

	quiz := &domain.Quiz{Questions: make([]domain.QuizQuestion, len(rq.Questions))}
	for i, q := range rq.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, domain.Malformed("question %d: empty question text", i+1)
		}
		if len(q.Options) != domain.QuizOptionCount {
			return nil, domain.Malformed("question %d: expected %d options, got %d", i+1, domain.QuizOptionCount, len(q.Options))
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return nil, domain.Malformed("question %d: option %d is empty", i+1, j+1)
			}
		}
		answer, err := parseAnswerIndex(q.CorrectAnswer)
		if err != nil {
			return nil, domain.Malformed("question %d: %v", i+1, err)
		}
		if strings.TrimSpace(q.Explanation) == "" {
			return nil, domain.Malformed("question %d: missing explanation", i+1)
		}
		quiz.Questions[i] = domain.QuizQuestion{
			Question:      strings.TrimSpace(q.Question),
			Options:       q.Options,
			CorrectAnswer: answer,
			Explanation:   strings.TrimSpace(q.Explanation),
		}
	}
	return quiz, nil
}

type answerIndexError string

func (e answerIndexError) Error() string { return string(e) }

// parseAnswerIndex accepts only a bare JSON integer in range. Strings,
// floats and nulls are rejected rather than coerced.
func parseAnswerIndex(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, answerIndexError("missing correctAnswer")
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, answerIndexError("correctAnswer is not a number: " + string(raw))
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, answerIndexError("correctAnswer is not an integer: " + string(raw))
	}
	if n < 0 || n >= domain.QuizOptionCount {
		return 0, answerIndexError("correctAnswer out of range: " + string(raw))
	}
	return n, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
