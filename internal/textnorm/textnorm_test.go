package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FoldsDigitsAndWhitespace(t *testing.T) {
	assert.Equal(t, "سعر 123 درهم", Normalize("  سعر   ١٢٣\t\nدرهم "))
	assert.Equal(t, "x 456", Normalize("x ۴۵۶"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"ما هو   الذكاء\tالاصطناعي؟",
		"حل x**2-5x+6=0",
		"٠١٢٣٤٥٦٧٨٩ ۰۱۲",
		"hello  world",
		"مَرْحَباً بِكُم",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestIsArabic(t *testing.T) {
	assert.True(t, IsArabic("hello مرحبا"))
	assert.True(t, IsArabic("؟"))
	assert.False(t, IsArabic("hello world 123"))
	assert.False(t, IsArabic(""))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("الجملة الأولى. هل هذه ثانية؟ نعم! وأخيرا")
	require.Len(t, got, 4)
	assert.Equal(t, "الجملة الأولى.", got[0])
	assert.Equal(t, "هل هذه ثانية؟", got[1])
	assert.Equal(t, "نعم!", got[2])
	assert.Equal(t, "وأخيرا", got[3])
}

func TestSplitSentences_KeepsDecimals(t *testing.T) {
	got := SplitSentences("Pi is 3.14 roughly. Done?!")
	assert.Equal(t, []string{"Pi is 3.14 roughly.", "Done?!"}, got)
}

func TestSplitSentences_Empty(t *testing.T) {
	assert.Empty(t, SplitSentences("   "))
}

func TestStripDiacritics(t *testing.T) {
	assert.Equal(t, "شكرا", StripDiacritics("شكراً"))
	assert.Equal(t, "مرحبا", StripDiacritics("مَرْحَبـــا"))
	assert.Equal(t, StripDiacritics("أسعار"), StripDiacritics(StripDiacritics("أسعار")))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"ما", "هو", "ai", "2"}, Tokens("ما هو AI؟ ٢"))
}

func TestStripPunct(t *testing.T) {
	assert.Equal(t, "a  b = c ", StripPunct("a, b = c!", "="))
}
