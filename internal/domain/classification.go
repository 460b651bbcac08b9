package domain

// Intent is the coarse question type of a query.
type Intent string

// Intents in matching order; the first matching intent wins.
const (
	IntentDefinition   Intent = "definition"
	IntentExplanation  Intent = "explanation"
	IntentReason       Intent = "reason"
	IntentLocation     Intent = "location"
	IntentTime         Intent = "time"
	IntentPerson       Intent = "person"
	IntentQuantity     Intent = "quantity"
	IntentYesNo        Intent = "yes_no"
	IntentComparison   Intent = "comparison"
	IntentMathematical Intent = "mathematical"
	IntentGeneral      Intent = "general"
)

// Emotion is the dominant affect detected in a query.
type Emotion string

// Emotions in declaration order; ties resolve to the earlier category.
const (
	EmotionPositive    Emotion = "positive"
	EmotionNegative    Emotion = "negative"
	EmotionHelpRequest Emotion = "help_request"
	EmotionConfusion   Emotion = "confusion"
	EmotionGratitude   Emotion = "gratitude"
	EmotionNeutral     Emotion = "neutral"
)

// Complexity buckets the complexity score.
type Complexity string

// Complexity levels.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Classification is the per-query, ephemeral output of the classifier.
type Classification struct {
	Intent            Intent     `json:"intent"`
	Emotion           Emotion    `json:"emotion"`
	EmotionConfidence float64    `json:"emotion_confidence"`
	Complexity        Complexity `json:"complexity"`
	ComplexityScore   int        `json:"complexity_score"`
	NeedsResearch     bool       `json:"needs_research"`
	IsArabic          bool       `json:"is_arabic"`
}
