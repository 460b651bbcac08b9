// Package classifier assigns intent, emotion, complexity and the research flag to a query.
package classifier

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/textnorm"
)

// lemma is a trigger phrase in comparison form. Phrases made only of letters and
// digits match whole tokens; anything with a symbol matches as a substring.
type lemma struct {
	tokens []string
	symbol string
}

func compile(raw []string) []lemma {
	out := make([]lemma, 0, len(raw))
	for _, r := range raw {
		if hasSymbol(r) {
			out = append(out, lemma{symbol: textnorm.Fold(r)})
			continue
		}
		out = append(out, lemma{tokens: comparisonTokens(r)})
	}
	return out
}

func hasSymbol(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && !unicode.Is(unicode.Mn, r) {
			return true
		}
	}
	return false
}

func comparisonTokens(s string) []string {
	return strings.Fields(textnorm.StripPunct(textnorm.Fold(s), ""))
}

// count returns how many times l occurs in the query.
func (l lemma) count(tokens []string, folded string) int {
	if l.symbol != "" {
		return strings.Count(folded, l.symbol)
	}
	n := 0
	for i := 0; i+len(l.tokens) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(l.tokens)], l.tokens) {
			n++
		}
	}
	return n
}

type compiledIntent struct {
	intent domain.Intent
	lemmas []lemma
}

type compiledEmotion struct {
	emotion domain.Emotion
	lemmas  []lemma
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	intents   []compiledIntent
	emotions  []compiledEmotion
	technical []lemma
	freshness []lemma
}

// New compiles the lemma tables.
func New() *Classifier {
	c := &Classifier{
		technical: compile(technicalLemmas),
		freshness: compile(freshnessLemmas),
	}
	for _, it := range intentTable {
		c.intents = append(c.intents, compiledIntent{intent: it.intent, lemmas: compile(it.lemmas)})
	}
	for _, em := range emotionTable {
		c.emotions = append(c.emotions, compiledEmotion{emotion: em.emotion, lemmas: compile(em.lemmas)})
	}
	return c
}

// Classify never fails; unknown text is general and neutral.
func (c *Classifier) Classify(text string) domain.Classification {
	folded := textnorm.Fold(text)
	tokens := strings.Fields(textnorm.StripPunct(folded, ""))

	cls := domain.Classification{
		Intent:   c.intent(tokens, folded),
		IsArabic: textnorm.IsArabic(text),
	}
	cls.Emotion, cls.EmotionConfidence = c.emotion(tokens, folded)
	cls.ComplexityScore = c.complexityScore(text, cls.Intent, tokens, folded)
	cls.Complexity = complexityLevel(cls.ComplexityScore)
	cls.NeedsResearch = researchIntents[cls.Intent] || anyHit(c.freshness, tokens, folded) > 0
	return cls
}

func (c *Classifier) intent(tokens []string, folded string) domain.Intent {
	for _, ci := range c.intents {
		for _, l := range ci.lemmas {
			if l.count(tokens, folded) > 0 {
				return ci.intent
			}
		}
	}
	return domain.IntentGeneral
}

func (c *Classifier) emotion(tokens []string, folded string) (domain.Emotion, float64) {
	best, bestCount := domain.EmotionNeutral, 0
	for _, ce := range c.emotions {
		if n := anyHit(ce.lemmas, tokens, folded); n > bestCount {
			best, bestCount = ce.emotion, n
		}
	}
	if bestCount == 0 {
		return domain.EmotionNeutral, 0
	}
	return best, min(1.0, float64(bestCount)/2.0)
}

func (c *Classifier) complexityScore(text string, intent domain.Intent, tokens []string, folded string) int {
	score := 0
	switch n := utf8.RuneCountInString(text); {
	case n > 100:
		score += 2
	case n > 50:
		score++
	}
	if complexIntents[intent] {
		score += 2
	}
	score += anyHit(c.technical, tokens, folded)
	if strings.Count(text, "?")+strings.Count(text, "؟") > 1 {
		score++
	}
	return score
}

func complexityLevel(score int) domain.Complexity {
	switch {
	case score < 2:
		return domain.ComplexitySimple
	case score <= 3:
		return domain.ComplexityModerate
	default:
		return domain.ComplexityComplex
	}
}

func anyHit(lemmas []lemma, tokens []string, folded string) int {
	n := 0
	for _, l := range lemmas {
		n += l.count(tokens, folded)
	}
	return n
}
