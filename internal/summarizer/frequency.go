package summarizer

import (
	"math"
	"sort"
	"strings"

	"studyrag/internal/textutil"
)

// DefaultSentences is used when a non-positive sentence budget is requested.
const DefaultSentences = 3

// FrequencySummarizer ranks sentences by normalized term frequency.
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer { return &FrequencySummarizer{} }

// Summarize picks the maxSentences highest scoring sentences and returns
// them in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	terms := make([][]string, len(sentences))
	freq := map[string]float64{}
	maxF := 0.0
	for i, sent := range sentences {
		terms[i] = textutil.Terms(sent)
		for _, tok := range terms[i] {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, toks := range terms {
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		// dampen long sentences
		if l := float64(len(toks)); l > 0 {
			sum /= math.Sqrt(l)
		}
		scores[i] = scored{i, sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}
