package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bassam-ai/bassam/internal/domain"
)

const (
	maxPromptPassages = 3
	passageExcerpt    = 800
)

var intentInstructions = map[domain.Intent]string{
	domain.IntentDefinition:  "قدّم تعريفاً واضحاً وموجزاً، ثم مثالاً واحداً.",
	domain.IntentExplanation: "اشرح الفكرة خطوة بخطوة بلغة بسيطة.",
	domain.IntentReason:      "وضّح الأسباب الرئيسية مرتبة حسب الأهمية.",
	domain.IntentLocation:    "حدّد المكان بدقة واذكر ما يميّزه.",
	domain.IntentTime:        "اذكر التاريخ أو التوقيت بدقة مع السياق.",
	domain.IntentPerson:      "عرّف بالشخص وأبرز إنجازاته باختصار.",
	domain.IntentQuantity:    "أعطِ الرقم أو الكمية مع وحدة القياس ومصدر التقدير.",
	domain.IntentYesNo:       "ابدأ بنعم أو لا، ثم علّل باختصار.",
	domain.IntentComparison:  "قارن بين الطرفين في نقاط متقابلة ثم لخّص الفرق.",
	domain.IntentGeneral:     "أجب إجابة مفيدة ومختصرة.",
}

var toneInstructions = map[domain.Emotion]string{
	domain.EmotionPositive:    "شارك المستخدم حماسه بنبرة إيجابية.",
	domain.EmotionNegative:    "استخدم نبرة متعاطفة وهادئة.",
	domain.EmotionHelpRequest: "كن عملياً وقدّم خطوات قابلة للتنفيذ.",
	domain.EmotionConfusion:   "بسّط المفاهيم وتجنّب المصطلحات المعقدة.",
	domain.EmotionGratitude:   "ردّ بلطف وتواضع.",
	domain.EmotionNeutral:     "حافظ على نبرة مهنية ودودة.",
}

var openers = map[domain.Emotion]string{
	domain.EmotionPositive:    "يسعدني حماسك! ",
	domain.EmotionNegative:    "أتفهّم شعورك، ودعني أساعدك. ",
	domain.EmotionHelpRequest: "بكل سرور سأساعدك. ",
	domain.EmotionConfusion:   "لا بأس، سأوضح الأمر خطوة بخطوة. ",
	domain.EmotionGratitude:   "العفو، يسعدني أن أكون في خدمتك دائماً! ",
}

var followUps = map[domain.Intent]string{
	domain.IntentDefinition:  "هل تريد أمثلة إضافية على هذا المفهوم؟",
	domain.IntentExplanation: "هل تريد أن أشرح جزءاً معيناً بتفصيل أكبر؟",
	domain.IntentReason:      "هل تودّ معرفة النتائج المترتبة على ذلك؟",
	domain.IntentLocation:    "هل تريد معلومات عن كيفية الوصول إليه؟",
	domain.IntentTime:        "هل تريد معرفة أحداث مرتبطة بهذا التاريخ؟",
	domain.IntentPerson:      "هل تريد معرفة المزيد عن أعماله؟",
	domain.IntentQuantity:    "هل تريد مقارنة هذا الرقم بأرقام أخرى؟",
	domain.IntentYesNo:       "هل لديك سؤال آخر حول هذا الموضوع؟",
	domain.IntentComparison:  "هل تريد جدولاً يلخّص الفروق؟",
	domain.IntentGeneral:     "هل هناك شيء آخر يمكنني مساعدتك فيه؟",
}

// preamble looks up the intent and emotion templates; unknown keys use the general ones.
func preamble(intent domain.Intent, emotion domain.Emotion) string {
	instr, ok := intentInstructions[intent]
	if !ok {
		instr = intentInstructions[domain.IntentGeneral]
	}
	tone, ok := toneInstructions[emotion]
	if !ok {
		tone = toneInstructions[domain.EmotionNeutral]
	}
	return "أنت بسام، مساعد ذكي يجيب باللغة العربية الفصحى. " + instr + " " + tone
}

func followUp(intent domain.Intent) string {
	if f, ok := followUps[intent]; ok {
		return f
	}
	return followUps[domain.IntentGeneral]
}

// enrichmentPrompt asks the model to answer from at most three passages.
func enrichmentPrompt(query string, passages []domain.Passage, wantPrices bool) string {
	var sb strings.Builder
	sb.WriteString("أجب عن السؤال التالي باللغة العربية اعتماداً على المقتطفات أدناه فقط، واذكر المصدر عند الاستشهاد.\n")
	if wantPrices {
		sb.WriteString("إذا وردت أسعار فاذكرها مع العملة وتاريخ المصدر، ونبّه إلى أنها قد تتغير.\n")
	}
	fmt.Fprintf(&sb, "\nالسؤال: %s\n\nالمقتطفات:\n", query)
	for i, p := range passages {
		if i == maxPromptPassages {
			break
		}
		title := p.Title
		if title == "" {
			title = p.URL
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", title, p.URL, excerpt(p.Text, passageExcerpt))
	}
	return sb.String()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
