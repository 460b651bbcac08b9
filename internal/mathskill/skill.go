// Package mathskill solves symbolic math questions written in Arabic or English:
// derivatives, integrals, factoring, simplification, equations and evaluation.
// It is deterministic and never calls a language model.
package mathskill

import (
	"errors"
	"fmt"
	"html"
	"math"
	"slices"
	"strings"

	"github.com/bassam-ai/bassam/internal/domain"
)

const (
	precisionWarnDegree = 6
	scanLow, scanHigh   = -10.0, 10.0
	scanSteps           = 2000
)

// ExampleQueries are offered when a question cannot be parsed.
var ExampleQueries = []string{
	"حل x^2-5x+6=0",
	"مشتقة x·sin(x)",
	"∫cos(x)dx",
}

// Skill is stateless and safe for concurrent use.
type Skill struct{}

// New creates a math skill.
func New() *Skill { return &Skill{} }

// LooksLikeMath reports whether text names a math operation and carries a parseable expression.
func (s *Skill) LooksLikeMath(text string) bool {
	req := readRequest(text)
	if !req.explicitOp || req.expr == "" {
		return false
	}
	if _, err := Parse(req.expr); err != nil {
		return false
	}
	return req.equation || strings.ContainsAny(req.expr, "0123456789^+-*/()")
}

// Solve returns a structured, step-annotated solution. When the question cannot
// be understood it returns the structured error message together with a *domain.ParseError.
func (s *Skill) Solve(text string) (string, error) {
	req := readRequest(text)
	out, err := solve(req)
	if err != nil {
		var pe *domain.ParseError
		if !errors.As(err, &pe) {
			pe = &domain.ParseError{Input: text, Reason: err.Error()}
		}
		return renderError(), pe
	}
	return out.render(), nil
}

type report struct {
	op      Operation
	problem string
	warning string
	steps   []string
	results []string
}

func (r report) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<div class=\"math-solution\" data-op=\"%s\">\n", r.op)
	if r.warning != "" {
		fmt.Fprintf(&sb, "<p class=\"warning\">%s</p>\n", html.EscapeString(r.warning))
	}
	fmt.Fprintf(&sb, "<p class=\"problem\">%s</p>\n", html.EscapeString(r.problem))
	if len(r.steps) > 0 {
		sb.WriteString("<ol class=\"steps\">\n")
		for _, st := range r.steps {
			fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(st))
		}
		sb.WriteString("</ol>\n")
	}
	for _, res := range r.results {
		fmt.Fprintf(&sb, "<p class=\"result\">%s</p>\n", html.EscapeString(res))
	}
	sb.WriteString("</div>")
	return sb.String()
}

func renderError() string {
	var sb strings.Builder
	sb.WriteString("<div class=\"math-error\">\n")
	sb.WriteString("<p>لم أتمكن من فهم المسألة الرياضية.</p>\n<p>جرّب صيغة مثل:</p>\n<ul>\n")
	for _, q := range ExampleQueries {
		fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(q))
	}
	sb.WriteString("</ul>\n</div>")
	return sb.String()
}

func parseError(req request, reason string) error {
	return &domain.ParseError{Input: req.expr, Reason: reason}
}

func solve(req request) (report, error) {
	if req.expr == "" {
		return report{}, parseError(req, "no expression found")
	}
	lhs, err := Parse(req.expr)
	if err != nil {
		return report{}, parseError(req, err.Error())
	}
	var rhs Expr = num(0)
	if req.equation {
		if rhs, err = Parse(req.rhs); err != nil {
			return report{}, parseError(req, err.Error())
		}
	}
	v := req.variable
	if v == "" {
		if vs := vars(sub(lhs, rhs)); len(vs) > 0 {
			v = vs[0]
			if slices.Contains(vs, "x") {
				v = "x"
			}
		} else {
			v = "x"
		}
	}
	r := report{op: req.op, problem: String(lhs)}
	if req.equation {
		r.problem += "=" + String(rhs)
	}

	switch req.op {
	case OpDerivative:
		err = derivative(&r, lhs, v, req.env)
	case OpIntegral:
		err = integral(&r, lhs, v, req)
	case OpFactor:
		err = factor(&r, sub(lhs, rhs), v, req.equation)
	case OpSimplify:
		simplify(&r, lhs, v)
	case OpSolve:
		others := withoutVar(req.env, v)
		err = equation(&r, Simplify(substitute(sub(lhs, rhs), others)), v)
	default:
		err = evaluate(&r, lhs, req.env)
	}
	if err != nil {
		return report{}, parseError(req, err.Error())
	}
	return r, nil
}

func withoutVar(env map[string]float64, v string) map[string]float64 {
	out := make(map[string]float64, len(env))
	for k, val := range env {
		if k != v {
			out[k] = val
		}
	}
	return out
}

func derivative(r *report, e Expr, v string, env map[string]float64) error {
	var d Expr
	if p, err := polyOf(e, v); err == nil {
		d = p.derivative().expr(v)
	} else {
		if d, err = Derive(e, v); err != nil {
			return err
		}
	}
	r.steps = append(r.steps, fmt.Sprintf("الاشتقاق بالنسبة إلى %s", v))
	r.results = append(r.results, fmt.Sprintf("d/d%s(%s) = %s", v, String(e), String(d)))
	if x, ok := env[v]; ok {
		val, err := Eval(d, env)
		if err != nil {
			return err
		}
		r.results = append(r.results, fmt.Sprintf("القيمة عند %s=%s: %s", v, formatNum(x, 14), formatNum(val, 14)))
	}
	return nil
}

func integral(r *report, e Expr, v string, req request) error {
	f, err := Integrate(e, v)
	if err != nil {
		return err
	}
	r.steps = append(r.steps, fmt.Sprintf("التكامل بالنسبة إلى %s", v))
	r.results = append(r.results, fmt.Sprintf("∫%s d%s = %s+C", String(e), v, String(f)))
	if req.hasBounds {
		val, err := DefiniteIntegral(f, v, req.lower, req.upper)
		if err != nil {
			return err
		}
		r.steps = append(r.steps, fmt.Sprintf("F(%s) - F(%s)", formatNum(req.upper, 14), formatNum(req.lower, 14)))
		r.results = append(r.results, fmt.Sprintf("التكامل المحدد = %s", formatNum(val, 14)))
	}
	return nil
}

func simplify(r *report, e Expr, v string) {
	if p, err := polyOf(e, v); err == nil {
		r.results = append(r.results, String(p.expr(v)))
		return
	}
	r.results = append(r.results, String(Simplify(e)))
}

func evaluate(r *report, e Expr, env map[string]float64) error {
	e = substitute(e, env)
	if len(vars(e)) > 0 {
		r.results = append(r.results, String(Simplify(e)))
		return nil
	}
	val, err := Eval(e, nil)
	if err != nil {
		return err
	}
	for name, x := range env {
		r.steps = append(r.steps, fmt.Sprintf("التعويض %s=%s", name, formatNum(x, 14)))
	}
	slices.Sort(r.steps)
	r.results = append(r.results, fmt.Sprintf("= %s", formatNum(val, 14)))
	return nil
}

func factor(r *report, e Expr, v string, isEquation bool) error {
	p, err := polyOf(e, v)
	if err != nil {
		return err
	}
	p = p.trim()
	roots, rest := rationalRoots(p)
	if len(roots) == 0 {
		r.steps = append(r.steps, "لا توجد جذور نسبية")
		r.results = append(r.results, String(p.expr(v)))
		return nil
	}
	slices.Sort(roots)
	var sb strings.Builder
	lead := rest[len(rest)-1]
	switch {
	case len(rest) > 1:
		sb.WriteString("(" + String(rest.expr(v)) + ")")
	case lead == -1:
		sb.WriteByte('-')
	case lead != 1:
		sb.WriteString(formatNum(lead, 14))
	}
	for _, root := range roots {
		sb.WriteString("(" + String(Simplify(sub(Var{Name: v}, num(root)))) + ")")
	}
	r.steps = append(r.steps, "الجذور النسبية: "+formatSet(roots, 14))
	r.results = append(r.results, sb.String())
	if isEquation {
		r.results = append(r.results, "مجموعة الحل: "+formatSet(roots, 14))
	}
	return nil
}

func formatSet(vals []float64, digits int) string {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	parts := make([]string, 0, len(sorted))
	for i, x := range sorted {
		if i > 0 && math.Abs(x-sorted[i-1]) < 1e-9 {
			continue
		}
		parts = append(parts, formatNum(x, digits))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func equation(r *report, f Expr, v string) error {
	p, err := polyOf(f, v)
	if err != nil {
		return nonPolynomial(r, f, v)
	}
	p = p.trim()
	deg := p.degree()
	switch deg {
	case 0:
		if math.Abs(p[0]) <= coefEpsilon {
			r.results = append(r.results, "المعادلة متطابقة: كل الأعداد الحقيقية حلول")
		} else {
			r.results = append(r.results, "لا يوجد حل")
		}
		return nil
	case 1:
		solveLinear(r, p, v)
		return nil
	case 2:
		solveQuadratic(r, p, v)
		return nil
	}
	solveHigher(r, p, v)
	return nil
}

func solveLinear(r *report, p poly, v string) {
	a, b := p[1], p[0]
	r.steps = append(r.steps,
		fmt.Sprintf("معادلة من الدرجة الأولى: a·%s+b=0 حيث a=%s، b=%s", v, formatNum(a, 14), formatNum(b, 14)),
		fmt.Sprintf("%s = -b/a = -(%s)/(%s)", v, formatNum(b, 14), formatNum(a, 14)),
	)
	r.results = append(r.results, fmt.Sprintf("%s=%s", v, formatNum(-b/a, 14)))
}

func solveQuadratic(r *report, p poly, v string) {
	a, b, c := p[2], p[1], p[0]
	disc := b*b - 4*a*c
	r.steps = append(r.steps,
		fmt.Sprintf("معادلة من الدرجة الثانية: a=%s، b=%s، c=%s", formatNum(a, 14), formatNum(b, 14), formatNum(c, 14)),
		fmt.Sprintf("Δ = b² − 4ac = (%s)² − 4·(%s)·(%s) = %s", formatNum(b, 14), formatNum(a, 14), formatNum(c, 14), formatNum(disc, 14)),
		fmt.Sprintf("%s = (−b ± √Δ)/(2a) = (%s ± √%s)/(%s)", v, formatNum(-b, 14), formatNum(disc, 14), formatNum(2*a, 14)),
	)
	switch {
	case disc > 0:
		x1 := (-b + math.Sqrt(disc)) / (2 * a)
		x2 := (-b - math.Sqrt(disc)) / (2 * a)
		r.results = append(r.results,
			fmt.Sprintf("%s_1=%s", v, formatNum(x1, 14)),
			fmt.Sprintf("%s_2=%s", v, formatNum(x2, 14)),
			"مجموعة الحل: "+formatSet([]float64{x1, x2}, 14),
		)
	case disc == 0:
		x := -b / (2 * a)
		r.results = append(r.results,
			fmt.Sprintf("%s_1=%s_2=%s", v, v, formatNum(x, 14)),
			"مجموعة الحل: "+formatSet([]float64{x}, 14),
		)
	default:
		re, im := -b/(2*a), math.Sqrt(-disc)/(2*math.Abs(a))
		r.results = append(r.results,
			"لا توجد جذور حقيقية (Δ < 0)",
			fmt.Sprintf("%s_1=%s", v, formatComplex(complex(re, im), 14)),
			fmt.Sprintf("%s_2=%s", v, formatComplex(complex(re, -im), 14)),
		)
	}
}

func solveHigher(r *report, p poly, v string) {
	deg := p.degree()
	if deg > precisionWarnDegree {
		r.warning = fmt.Sprintf("تنبيه: درجة كثيرة الحدود %d؛ الجذور العددية قد تفقد الدقة", deg)
	}
	r.steps = append(r.steps, fmt.Sprintf("كثيرة حدود من الدرجة %d", deg))

	exact, rest := rationalRoots(p)
	var realRoots []float64
	var complexRoots []complex128
	if len(exact) > 0 {
		r.steps = append(r.steps, "جذور دقيقة: "+formatSet(exact, 14))
		realRoots = append(realRoots, exact...)
	}
	switch rest.degree() {
	case 0:
	case 1:
		realRoots = append(realRoots, -rest[0]/rest[1])
	default:
		r.steps = append(r.steps, fmt.Sprintf("حل عددي لكثيرة الحدود المتبقية من الدرجة %d", rest.degree()))
		for _, z := range numericRoots(rest) {
			if isReal(z) {
				realRoots = append(realRoots, real(z))
			} else {
				complexRoots = append(complexRoots, z)
			}
		}
	}
	if len(realRoots) > 0 {
		r.results = append(r.results, "الجذور الحقيقية: "+formatSet(realRoots, 12))
	} else {
		r.results = append(r.results, "لا توجد جذور حقيقية")
	}
	if len(complexRoots) > 0 {
		parts := make([]string, len(complexRoots))
		for i, z := range complexRoots {
			parts[i] = formatComplex(z, 12)
		}
		r.results = append(r.results, "الجذور المركبة: {"+strings.Join(parts, ", ")+"}")
	}
}

// nonPolynomial scans a fixed interval for sign changes and refines each by bisection.
func nonPolynomial(r *report, f Expr, v string) error {
	if len(vars(f)) > 1 {
		return fmt.Errorf("equation has more than one unknown")
	}
	at := func(x float64) (float64, bool) {
		y, err := Eval(f, map[string]float64{v: x})
		return y, err == nil
	}
	var roots []float64
	step := (scanHigh - scanLow) / scanSteps
	prevX := scanLow
	prevY, prevOK := at(prevX)
	for i := 1; i <= scanSteps; i++ {
		x := scanLow + float64(i)*step
		y, ok := at(x)
		switch {
		case ok && y == 0:
			roots = append(roots, x)
		case ok && prevOK && prevY != 0 && math.Signbit(y) != math.Signbit(prevY):
			if root, good := bisect(at, prevX, x); good {
				roots = append(roots, root)
			}
		}
		prevX, prevY, prevOK = x, y, ok
	}
	r.steps = append(r.steps, fmt.Sprintf("بحث عددي عن الحلول في المجال [%s, %s]", formatNum(scanLow, 14), formatNum(scanHigh, 14)))
	if len(roots) == 0 {
		r.results = append(r.results, "لم يتم العثور على حلول حقيقية في هذا المجال")
		return nil
	}
	r.results = append(r.results, "مجموعة الحل: "+formatSet(roots, 10))
	return nil
}

func bisect(f func(float64) (float64, bool), lo, hi float64) (float64, bool) {
	flo, _ := f(lo)
	for range 80 {
		mid := (lo + hi) / 2
		fm, ok := f(mid)
		if !ok {
			return 0, false
		}
		if math.Signbit(fm) == math.Signbit(flo) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	root := (lo + hi) / 2
	// sign changes across poles (tan, 1/x) are not roots
	if y, ok := f(root); !ok || math.Abs(y) > 1e-6 {
		return 0, false
	}
	return root, true
}
