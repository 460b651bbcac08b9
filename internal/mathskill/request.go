package mathskill

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/bassam-ai/bassam/internal/textnorm"
)

// Operation is what the user asked the math skill to do.
type Operation string

// Operations.
const (
	OpDerivative Operation = "derivative"
	OpIntegral   Operation = "integral"
	OpSimplify   Operation = "simplify"
	OpFactor     Operation = "factor"
	OpSolve      Operation = "solve"
	OpEvaluate   Operation = "evaluate"
)

// opLemmas is checked in order; the first operation with a hit wins.
var opLemmas = []struct {
	op     Operation
	lemmas []string
}{
	{OpDerivative, []string{"مشتقة", "مشتق", "اشتق", "فاضل", "derivative", "differentiate", "diff"}},
	{OpIntegral, []string{"تكامل", "كامل", "integral", "integrate"}},
	{OpFactor, []string{"حلل", "فكك", "factor", "factorize"}},
	{OpSimplify, []string{"بسط", "اختصر", "simplify", "expand"}},
	{OpSolve, []string{"حل", "أوجد", "جد", "solve", "roots"}},
	{OpEvaluate, []string{"احسب", "قيمة", "calculate", "compute", "evaluate"}},
}

var (
	// Arabic function words and variable letters, as whole Arabic words.
	arabicWords = regexp.MustCompile(`(^|\P{Arabic})(جتا|جا|ظا|جذر|لوغ|س|ص)(\P{Arabic}|$)`)
	arabicNames = map[string]string{
		"جتا": "cos", "جا": "sin", "ظا": "tan", "جذر": "sqrt", "لوغ": "log", "س": "x", "ص": "y",
	}

	derivPrefix = regexp.MustCompile(`d/d([a-z])`)
	integralDx  = regexp.MustCompile(`\s*d([a-z])\s*$`)
	wrtPhrase   = regexp.MustCompile(`(?:\b(?:with respect to|wrt|for)\s+|بالنسبة\s*(?:إلى|الى|لـ|ل)\s*)([a-z])\b`)
	bounds      = regexp.MustCompile(`(?:from|من)\s*(-?[0-9.]+|π|pi)\s*(?:to|إلى|الى|حتى)\s*(-?[0-9.]+|π|pi)`)
	atPhrase    = regexp.MustCompile(`(?:\b(?:at|when|where|if)\s+|(?:عند|حيث|لما)\s*)((?:[a-z]\s*=\s*-?[0-9.]+\s*,?\s*)+)`)
	arabicRun   = regexp.MustCompile(`\p{Arabic}+`)
	assignment  = regexp.MustCompile(`([a-z])\s*=\s*(-?[0-9.]+)`)
)

// request is the structured reading of a free-text math question.
type request struct {
	op         Operation
	explicitOp bool
	variable   string
	expr       string // left side, or the whole expression
	rhs        string // right side when the input is an equation
	equation   bool
	env        map[string]float64
	hasBounds  bool
	lower      float64
	upper      float64
}

func readRequest(text string) request {
	s := textnorm.Normalize(text)
	s = strings.NewReplacer("٫", ".", "،", ",", "؟", " ", "?", " ", "!", " ", ":", " ", ";", " ", "؛", " ", "'", " ", "\"", " ").Replace(s)
	s = strings.ToLower(s)
	for range 2 {
		s = arabicWords.ReplaceAllStringFunc(s, func(m string) string {
			sub := arabicWords.FindStringSubmatch(m)
			return sub[1] + arabicNames[sub[2]] + sub[3]
		})
	}

	req := request{op: OpEvaluate, env: map[string]float64{}}
	req.op, req.explicitOp = detectOp(s)

	if m := derivPrefix.FindStringSubmatch(s); m != nil {
		req.op, req.explicitOp, req.variable = OpDerivative, true, m[1]
		s = derivPrefix.ReplaceAllString(s, " ")
	}
	if strings.Contains(s, "∫") {
		req.op, req.explicitOp = OpIntegral, true
		s = strings.ReplaceAll(s, "∫", " ")
	}
	if m := wrtPhrase.FindStringSubmatch(s); m != nil {
		req.variable = m[1]
		s = wrtPhrase.ReplaceAllString(s, " ")
	}
	if m := bounds.FindStringSubmatch(s); m != nil {
		lo, okLo := parseBound(m[1])
		hi, okHi := parseBound(m[2])
		if okLo && okHi {
			req.hasBounds, req.lower, req.upper = true, lo, hi
			s = bounds.ReplaceAllString(s, " ")
		}
	}
	if m := atPhrase.FindStringSubmatch(s); m != nil {
		for _, a := range assignment.FindAllStringSubmatch(m[1], -1) {
			if v, err := strconv.ParseFloat(a[2], 64); err == nil {
				req.env[a[1]] = v
			}
		}
		s = atPhrase.ReplaceAllString(s, " ")
	}
	s = strings.TrimSpace(s)
	if req.op == OpIntegral {
		if m := integralDx.FindStringSubmatch(s); m != nil {
			if req.variable == "" {
				req.variable = m[1]
			}
			s = integralDx.ReplaceAllString(s, "")
		}
	}

	s = stripWords(arabicRun.ReplaceAllString(s, " "))
	parts := strings.Split(s, ",")
	exprPart := ""
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// trailing "x=3" pieces after a comma are substitutions
		if exprPart != "" {
			if a := assignment.FindStringSubmatch(part); a != nil && a[0] == part {
				if v, err := strconv.ParseFloat(a[2], 64); err == nil {
					req.env[a[1]] = v
					continue
				}
			}
		}
		if exprPart == "" {
			exprPart = part
		}
	}

	if lhs, rhs, ok := strings.Cut(exprPart, "="); ok {
		req.expr, req.rhs, req.equation = strings.TrimSpace(lhs), strings.TrimSpace(rhs), true
		if !req.explicitOp || req.op == OpEvaluate {
			req.op = OpSolve
		}
	} else {
		req.expr = strings.TrimSpace(exprPart)
	}
	return req
}

func detectOp(s string) (Operation, bool) {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(textnorm.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		words[w] = true
	}
	for _, entry := range opLemmas {
		for _, l := range entry.lemmas {
			if words[textnorm.Fold(l)] {
				return entry.op, true
			}
		}
	}
	return OpEvaluate, false
}

func parseBound(s string) (float64, bool) {
	if s == "π" || s == "pi" {
		return constPi.V, true
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// stripWords removes Latin words longer than one letter that are not math
// identifiers. Words mixing letters and symbols stay.
func stripWords(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if isProse(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isProse(word string) bool {
	latin := 0
	for _, r := range word {
		if r < 'a' || r > 'z' {
			return false
		}
		latin++
	}
	if latin <= 1 {
		return false
	}
	for _, id := range identifiers {
		if word == id {
			return false
		}
	}
	return true
}
