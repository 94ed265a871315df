package domain

import (
	"fmt"
	"strings"
)

// Mode selects how retrieved context is turned into output.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeQuiz   Mode = "quiz"
	ModeHint   Mode = "hint"
	ModeAnswer Mode = "answer"
)

// ParseMode maps a case-insensitive name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeChat, ModeQuiz, ModeHint, ModeAnswer:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Query is the orchestrator's input.
type Query struct {
	Text        string
	DocumentIDs []string
	History     []Turn
	Mode        Mode
	// Topic optionally scopes quiz generation.
	Topic string
	// TopK overrides the per-mode default when positive.
	TopK int
}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Quiz is the structured result of quiz mode.
type Quiz struct {
	Topic     string         `json:"topic,omitempty"`
	Questions []QuizQuestion `json:"questions"`
}

// Answer is the orchestrator's result. Text is set for chat, hint and
// answer modes; Quiz is set for quiz mode.
type Answer struct {
	Mode    Mode     `json:"mode"`
	Text    string   `json:"text,omitempty"`
	Quiz    *Quiz    `json:"quiz,omitempty"`
	Sources []string `json:"sourcesUsed"`
}
