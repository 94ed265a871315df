package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

func quizQuestions(n int) []map[string]any {
	qs := make([]map[string]any, n)
	for i := range qs {
		qs[i] = map[string]any{
			"question":      fmt.Sprintf("Question %d?", i+1),
			"options":       []string{"A", "B", "C", "D"},
			"correctAnswer": i % 4,
			"explanation":   "Because.",
		}
	}
	return qs
}

func quizJSON(t *testing.T, qs []map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"questions": qs})
	require.NoError(t, err)
	return string(b)
}

func TestParseQuizValid(t *testing.T) {
	quiz, err := ParseQuiz(quizJSON(t, quizQuestions(5)))
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 5)
	assert.Equal(t, "Question 1?", quiz.Questions[0].Question)
	assert.Equal(t, []string{"A", "B", "C", "D"}, quiz.Questions[0].Options)
	assert.Equal(t, 3, quiz.Questions[3].CorrectAnswer)
	assert.Equal(t, "Because.", quiz.Questions[4].Explanation)
}

func TestParseQuizAcceptsFence(t *testing.T) {
	body := quizJSON(t, quizQuestions(5))
	for _, raw := range []string{
		"```json\n" + body + "\n```",
		"```\n" + body + "\n```",
		"  \n" + body + "\n",
	} {
		_, err := ParseQuiz(raw)
		assert.NoError(t, err)
	}
}

func TestParseQuizRejectsMalformed(t *testing.T) {
	mutate := func(f func(qs []map[string]any) []map[string]any) string {
		return quizJSON(t, f(quizQuestions(5)))
	}
	cases := map[string]string{
		"empty":           "   ",
		"not json":        "Here is your quiz: 1. What is a cell?",
		"trailing text":   quizJSON(t, quizQuestions(5)) + " hope this helps",
		"missing key":     `{"items": []}`,
		"four questions":  quizJSON(t, quizQuestions(4)),
		"six questions":   quizJSON(t, quizQuestions(6)),
		"bare array":      `[{"question":"q"}]`,
		"three options":   mutate(func(qs []map[string]any) []map[string]any { qs[1]["options"] = []string{"A", "B", "C"}; return qs }),
		"blank option":    mutate(func(qs []map[string]any) []map[string]any { qs[2]["options"] = []string{"A", " ", "C", "D"}; return qs }),
		"numeric options": mutate(func(qs []map[string]any) []map[string]any { qs[2]["options"] = []int{1, 2, 3, 4}; return qs }),
		"string answer":   mutate(func(qs []map[string]any) []map[string]any { qs[0]["correctAnswer"] = "2"; return qs }),
		"letter answer":   mutate(func(qs []map[string]any) []map[string]any { qs[0]["correctAnswer"] = "B"; return qs }),
		"float answer":    mutate(func(qs []map[string]any) []map[string]any { qs[0]["correctAnswer"] = 1.5; return qs }),
		"null answer":     mutate(func(qs []map[string]any) []map[string]any { qs[0]["correctAnswer"] = nil; return qs }),
		"missing answer":  mutate(func(qs []map[string]any) []map[string]any { delete(qs[0], "correctAnswer"); return qs }),
		"answer too high": mutate(func(qs []map[string]any) []map[string]any { qs[4]["correctAnswer"] = 4; return qs }),
		"negative answer": mutate(func(qs []map[string]any) []map[string]any { qs[4]["correctAnswer"] = -1; return qs }),
		"no question":     mutate(func(qs []map[string]any) []map[string]any { qs[3]["question"] = ""; return qs }),
		"no explanation":  mutate(func(qs []map[string]any) []map[string]any { delete(qs[3], "explanation"); return qs }),
	}
	for name, raw := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			quiz, err := ParseQuiz(raw)
			assert.Nil(t, quiz)
			assert.ErrorIs(t, err, domain.ErrMalformedGeneration)
		})
	}
}
