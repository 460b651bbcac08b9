// Package textnorm holds the Arabic-aware text helpers shared by every stage:
// digit folding, whitespace collapse, script detection, sentence splitting and
// the comparison-only diacritic stripper.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// foldDigits maps Arabic-Indic (U+0660..) and Extended Arabic-Indic (U+06F0..) digits to ASCII.
var foldDigits = runes.Map(func(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	}
	return r
})

// FoldDigits translates Arabic-Indic digits to ASCII digits.
func FoldDigits(s string) string {
	out, _, err := transform.String(foldDigits, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize folds digits and collapses whitespace runs into single spaces.
// It is idempotent.
func Normalize(s string) string {
	return strings.Join(strings.Fields(FoldDigits(s)), " ")
}

// IsArabic reports whether any rune lies in the Arabic block U+0600..U+06FF.
func IsArabic(s string) bool {
	for _, r := range s {
		if r >= '؀' && r <= 'ۿ' {
			return true
		}
	}
	return false
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '؟'
}

// SplitSentences cuts s after each run of . ! ? ؟ that is followed by whitespace
// or the end of the text. Order is preserved and empty pieces are dropped.
func SplitSentences(s string) []string {
	rs := []rune(s)
	var (
		out   []string
		start int
	)
	for i := 0; i < len(rs); i++ {
		if !isTerminator(rs[i]) {
			continue
		}
		j := i
		for j+1 < len(rs) && isTerminator(rs[j+1]) {
			j++
		}
		if j+1 < len(rs) && !unicode.IsSpace(rs[j+1]) {
			i = j
			continue
		}
		if sent := strings.TrimSpace(string(rs[start : j+1])); sent != "" {
			out = append(out, sent)
		}
		start = j + 1
		i = j
	}
	if tail := strings.TrimSpace(string(rs[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// StripDiacritics removes combining marks (harakat, hamza carriers decomposed by NFD)
// and tatweel. Used for comparisons only; never applied to text shown to users.
func StripDiacritics(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == tatweel })),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold is the comparison form of s: normalized, lowercased, diacritics stripped.
func Fold(s string) string {
	return StripDiacritics(strings.ToLower(Normalize(s)))
}

// Tokens splits the comparison form of s into letter/digit words.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// StripPunct replaces every rune that is neither letter, digit nor space with a space,
// keeping the math symbols listed in keep.
func StripPunct(s, keep string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(keep, r) {
			return r
		}
		return ' '
	}, s)
}
