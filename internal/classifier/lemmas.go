package classifier

import "github.com/bassam-ai/bassam/internal/domain"

type intentLemmas struct {
	intent domain.Intent
	lemmas []string
}

// intentTable is checked top to bottom; the first intent with a hit wins.
var intentTable = []intentLemmas{
	{domain.IntentDefinition, []string{
		"ما هو", "ما هي", "عرف", "تعريف", "ما معنى", "ما المقصود",
		"what is", "what are", "define", "definition", "meaning of",
	}},
	{domain.IntentExplanation, []string{
		"كيف", "اشرح", "وضح", "فسر", "explain", "how does", "how do", "how to", "describe",
	}},
	{domain.IntentReason, []string{
		"لماذا", "ليش", "لما", "سبب", "why", "reason",
	}},
	{domain.IntentLocation, []string{
		"أين", "وين", "موقع", "where",
	}},
	{domain.IntentTime, []string{
		"متى", "في أي سنة", "when", "what time", "what year",
	}},
	{domain.IntentPerson, []string{
		"من هو", "من هي", "من هم", "who is", "who was", "who are",
	}},
	{domain.IntentQuantity, []string{
		"كم", "عدد", "how much", "how many",
	}},
	{domain.IntentYesNo, []string{
		"هل", "is it", "is there", "are there", "can i", "do you", "does it",
	}},
	{domain.IntentComparison, []string{
		"قارن", "مقارنة", "الفرق بين", "أفضل من", "compare", "comparison", "difference between", "versus", "vs",
	}},
	{domain.IntentMathematical, []string{
		"احسب", "حل", "مشتق", "مشتقة", "اشتق", "تكامل", "بسط", "حلل", "فكك",
		"=", "+", "−", "×", "÷", "^", "∫", "√", "d/dx",
		"solve", "calculate", "compute", "derivative", "differentiate", "integral", "integrate", "factor", "simplify",
	}},
}

type emotionLemmas struct {
	emotion domain.Emotion
	lemmas  []string
}

// emotionTable is in declaration order, which also breaks ties.
var emotionTable = []emotionLemmas{
	{domain.EmotionPositive, []string{
		"رائع", "ممتاز", "جميل", "سعيد", "أحب", "ممتع", "great", "awesome", "love", "happy", "excellent", "amazing",
	}},
	{domain.EmotionNegative, []string{
		"سيء", "حزين", "غاضب", "محبط", "أكره", "زعلان", "مشكلة", "bad", "sad", "angry", "hate", "terrible", "awful",
	}},
	{domain.EmotionHelpRequest, []string{
		"ساعدني", "مساعدة", "أحتاج", "أرجو", "من فضلك", "help", "help me", "need help", "please",
	}},
	{domain.EmotionConfusion, []string{
		"لا أفهم", "لم أفهم", "مش فاهم", "محتار", "مرتبك", "غير واضح", "confused", "don't understand", "unclear",
	}},
	{domain.EmotionGratitude, []string{
		"شكرا", "متشكر", "ممنون", "مشكور", "جزاك الله خيرا", "thanks", "thank you", "thx",
	}},
}

var technicalLemmas = []string{
	"خوارزمية", "برمجة", "قاعدة بيانات", "شبكة", "الذكاء الاصطناعي", "ذكاء اصطناعي", "تعلم آلي", "تشفير",
	"كمومي", "معادلة", "دالة", "خادم", "بروتوكول",
	"algorithm", "programming", "api", "database", "network", "machine learning", "artificial intelligence",
	"encryption", "quantum", "equation", "function", "server", "protocol", "neural",
}

var freshnessLemmas = []string{
	"آخر", "أحدث", "اليوم", "الآن", "أسعار", "سعر", "أخبار", "الحالي", "هذا الأسبوع",
	"latest", "today", "now", "price", "prices", "news", "current", "this week",
}

var researchIntents = map[domain.Intent]bool{
	domain.IntentLocation: true,
	domain.IntentTime:     true,
	domain.IntentPerson:   true,
	domain.IntentQuantity: true,
}

var complexIntents = map[domain.Intent]bool{
	domain.IntentMathematical: true,
	domain.IntentComparison:   true,
	domain.IntentReason:       true,
	domain.IntentExplanation:  true,
}
