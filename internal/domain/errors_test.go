package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = &DimensionMismatchError{Want: 3, Got: 4}
	wrapped := fmt.Errorf("add document: %w", err)
	assert.ErrorIs(t, wrapped, ErrDimensionMismatch)
	assert.NotErrorIs(t, wrapped, ErrEmbeddingProvider)

	var dm *DimensionMismatchError
	require.True(t, errors.As(wrapped, &dm))
	assert.Equal(t, 3, dm.Want)
	assert.Equal(t, 4, dm.Got)
	assert.Contains(t, err.Error(), "want 3, got 4")

	m := Malformed("expected %d questions, got %d", 5, 3)
	assert.ErrorIs(t, m, ErrMalformedGeneration)
	assert.Contains(t, m.Error(), "expected 5 questions, got 3")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"chat":   ModeChat,
		" Quiz ": ModeQuiz,
		"HINT":   ModeHint,
		"answer": ModeAnswer,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("essay")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestQuizSchemaRequiredOrder(t *testing.T) {
	item := QuizSchema.Properties["questions"].Items
	assert.Equal(t, []string{"question", "options", "correctAnswer", "explanation"}, item.Required())
	assert.Equal(t, QuizOptionCount, item.Properties["options"].MaxItems)
	assert.Equal(t, 3, *item.Properties["correctAnswer"].Maximum)
}
