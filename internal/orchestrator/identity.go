package orchestrator

import (
	"regexp"

	"github.com/bassam-ai/bassam/internal/textnorm"
)

// Bio is returned verbatim for author-identity questions.
const Bio = "بسام الشتيمي مطوّر برمجيات ومهندس ذكاء اصطناعي، وهو مؤسس مساعد \"بسام\" الذي صُمّم ليقدّم إجابات عربية دقيقة تجمع بين الحساب الرياضي والبحث في الويب ونماذج اللغة. يهتم بسام بإتاحة تقنيات الذكاء الاصطناعي للمستخدم العربي بلغته."

// identityPatterns run against the folded query (lowercase, no diacritics).
var identityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`بسام\s*(ال)?شتيمي`),
	regexp.MustCompile(`bassam\s*(al[\s-]?)?shu?t[ae]i?mi`),
	regexp.MustCompile(`من\s+(صنعك|طورك|برمجك|انشاك|صممك)`),
	regexp.MustCompile(`(مطورك|صانعك|مبرمجك|مصممك)`),
}

// IsIdentityQuery reports whether text asks about the application's author.
func IsIdentityQuery(text string) bool {
	folded := textnorm.Fold(text)
	for _, re := range identityPatterns {
		if re.MatchString(folded) {
			return true
		}
	}
	return false
}
