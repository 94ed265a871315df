// Package textutil holds the tokenizer and stopword list shared by the local
// embedder, the summarizer and the terminal client.
package textutil

import (
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	stopwords  = buildStopwords()
)

// Words returns the lowercased word tokens of text, stopwords included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Terms returns the lowercased word tokens of text with stopwords removed.
func Terms(text string) []string {
	raw := Words(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermSet returns the distinct non-stopword terms of text.
func TermSet(text string) map[string]struct{} {
	terms := Terms(text)
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}

// Sentences splits text on terminal punctuation. Text without any yields
// a single trimmed sentence, or nothing when blank.
func Sentences(text string) []string {
	found := sentenceRe.FindAllString(text, -1)
	if len(found) == 0 {
		if s := strings.TrimSpace(text); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(found))
	for _, s := range found {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsStopword reports whether a lowercased token is a stopword.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
