// Package summarize builds bounded extractive summaries from passage text.
package summarize

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bassam-ai/bassam/internal/textnorm"
)

const (
	// DefaultMaxSentences is the sentence budget when the caller passes 0.
	DefaultMaxSentences = 5
	// MaxChars bounds every summary, in runes.
	MaxChars = 3500

	lengthWeight = 0.7
	uniqueWeight = 0.3
	queryWeight  = 0.001 // tie-breaker only
)

type sentence struct {
	pos   int
	text  string
	score float64
}

// Summarize returns up to maxSentences sentences of text in their original
// order, ranked by 0.7·length + 0.3·unique words. Text that has no more
// sentences than the budget comes back verbatim (cut to MaxChars).
func Summarize(text string, maxSentences int) string {
	return SummarizeFor(text, maxSentences, "")
}

// SummarizeFor is Summarize with an optional query; sentences sharing words
// with the query win otherwise equal scores.
func SummarizeFor(text string, maxSentences int, query string) string {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	parts := textnorm.SplitSentences(text)
	if len(parts) <= maxSentences {
		return clip(strings.TrimSpace(text))
	}

	terms := make(map[string]struct{})
	for _, t := range textnorm.Tokens(query) {
		terms[t] = struct{}{}
	}

	ranked := make([]sentence, len(parts))
	for i, p := range parts {
		ranked[i] = sentence{pos: i, text: p, score: score(p, terms)}
	}
	slices.SortStableFunc(ranked, func(a, b sentence) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	top := ranked[:maxSentences]
	slices.SortFunc(top, func(a, b sentence) int { return a.pos - b.pos })

	var (
		sb    strings.Builder
		runes int
	)
	for _, s := range top {
		n := utf8.RuneCountInString(s.text)
		if runes > 0 {
			if runes+1+n > MaxChars {
				continue
			}
			sb.WriteByte(' ')
			runes++
		}
		sb.WriteString(s.text)
		runes += n
	}
	return clip(sb.String())
}

func score(s string, terms map[string]struct{}) float64 {
	words := textnorm.Tokens(s)
	unique := make(map[string]struct{}, len(words))
	hits := 0
	for _, w := range words {
		if _, seen := unique[w]; seen {
			continue
		}
		unique[w] = struct{}{}
		if _, ok := terms[w]; ok {
			hits++
		}
	}
	return lengthWeight*float64(utf8.RuneCountInString(s)) +
		uniqueWeight*float64(len(unique)) +
		queryWeight*float64(hits)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= MaxChars {
		return s
	}
	return string([]rune(s)[:MaxChars])
}
