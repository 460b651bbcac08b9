package mathskill

import (
	"errors"
	"math"
	"math/cmplx"
	"sort"
	"strings"
)

const (
	maxPolyDegree = 40
	coefEpsilon   = 1e-12
	realEpsilon   = 1e-10
)

var errNotPolynomial = errors.New("not a polynomial")

// poly holds coefficients indexed by degree: p[i]·v^i.
type poly []float64

func (p poly) degree() int {
	for i := len(p) - 1; i >= 0; i-- {
		if math.Abs(p[i]) > coefEpsilon {
			return i
		}
	}
	return 0
}

func (p poly) trim() poly { return p[:p.degree()+1] }

func (p poly) add(q poly, sign float64) poly {
	out := make(poly, max(len(p), len(q)))
	copy(out, p)
	for i, c := range q {
		out[i] += sign * c
	}
	return out
}

func (p poly) mul(q poly) poly {
	out := make(poly, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			out[i+j] += a * b
		}
	}
	return out
}

func (p poly) scale(k float64) poly {
	out := make(poly, len(p))
	for i, c := range p {
		out[i] = c * k
	}
	return out
}

func (p poly) eval(x complex128) complex128 {
	var r complex128
	for i := len(p) - 1; i >= 0; i-- {
		r = r*x + complex(p[i], 0)
	}
	return r
}

func (p poly) derivative() poly {
	if len(p) <= 1 {
		return poly{0}
	}
	out := make(poly, len(p)-1)
	for i := 1; i < len(p); i++ {
		out[i-1] = p[i] * float64(i)
	}
	return out
}

// polyOf expands e into a polynomial in v. Subtrees without v must evaluate numerically.
func polyOf(e Expr, v string) (poly, error) {
	if !contains(e, v) {
		if len(vars(e)) > 0 {
			return nil, errNotPolynomial
		}
		c, err := Eval(e, nil)
		if err != nil {
			return nil, err
		}
		return poly{c}, nil
	}
	switch n := e.(type) {
	case Var:
		return poly{0, 1}, nil
	case Neg:
		p, err := polyOf(n.X, v)
		if err != nil {
			return nil, err
		}
		return p.scale(-1), nil
	case Bin:
		l, err := polyOf(n.L, v)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case '^':
			exp, err := Eval(n.R, nil)
			if err != nil || exp < 0 || exp != math.Trunc(exp) || int(exp)*l.degree() > maxPolyDegree {
				return nil, errNotPolynomial
			}
			out := poly{1}
			for range int(exp) {
				out = out.mul(l)
			}
			return out, nil
		case '/':
			if contains(n.R, v) {
				return nil, errNotPolynomial
			}
			d, err := Eval(n.R, nil)
			if err != nil || d == 0 {
				return nil, errNotPolynomial
			}
			return l.scale(1 / d), nil
		}
		r, err := polyOf(n.R, v)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case '+':
			return l.add(r, 1), nil
		case '-':
			return l.add(r, -1), nil
		case '*':
			if l.degree()+r.degree() > maxPolyDegree {
				return nil, errNotPolynomial
			}
			return l.mul(r), nil
		}
	}
	return nil, errNotPolynomial
}

// expr rebuilds p as a sum of monomials, highest degree first.
func (p poly) expr(v string) Expr {
	var out Expr
	for i := p.degree(); i >= 0; i-- {
		c := p[i]
		if math.Abs(c) <= coefEpsilon && !(i == 0 && out == nil) {
			continue
		}
		var term Expr
		switch i {
		case 0:
			term = num(math.Abs(c))
		case 1:
			term = mul(num(math.Abs(c)), Var{Name: v})
		default:
			term = mul(num(math.Abs(c)), pow(Var{Name: v}, num(float64(i))))
		}
		switch {
		case out == nil && c < 0:
			out = Neg{X: term}
		case out == nil:
			out = term
		case c < 0:
			out = sub(out, term)
		default:
			out = add(out, term)
		}
	}
	return Simplify(out)
}

// rationalRoots finds exact rational roots of an integer-coefficient polynomial,
// returning them with multiplicity and the deflated remainder.
func rationalRoots(p poly) ([]float64, poly) {
	p = p.trim()
	for _, c := range p {
		if math.Abs(c) > 1e9 {
			return nil, p
		}
	}
	var roots []float64
	for len(p) > 1 && math.Abs(p[0]) < coefEpsilon {
		roots = append(roots, 0)
		p = p[1:]
	}
	for len(p) > 1 && hasIntegerCoeffs(p) {
		found := false
		lead, constant := math.Round(math.Abs(p[len(p)-1])), math.Round(math.Abs(p[0]))
		for _, q := range divisors(lead) {
			for _, pp := range divisors(constant) {
				for _, cand := range []float64{pp / q, -pp / q} {
					if math.Abs(real(p.eval(complex(cand, 0)))) < 1e-9 {
						roots = append(roots, cand)
						p = deflate(p, cand)
						found = true
						break
					}
				}
				if found {
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			break
		}
	}
	return roots, p
}

func hasIntegerCoeffs(p poly) bool {
	for _, c := range p {
		if math.Abs(c-math.Round(c)) > 1e-9 {
			return false
		}
	}
	return true
}

func divisors(n float64) []float64 {
	if n == 0 {
		return []float64{1}
	}
	var out []float64
	for i := 1.0; i*i <= n; i++ {
		if math.Mod(n, i) == 0 {
			out = append(out, i)
			if i*i != n {
				out = append(out, n/i)
			}
		}
		if len(out) > 256 {
			break
		}
	}
	return out
}

// deflate divides p by (v - r) with synthetic division.
func deflate(p poly, r float64) poly {
	n := len(p) - 1
	out := make(poly, n)
	carry := p[n]
	for i := n - 1; i >= 0; i-- {
		out[i] = carry
		carry = p[i] + carry*r
	}
	return out
}

const (
	dkMaxIter   = 500
	dkTolerance = 1e-14
)

// numericRoots approximates all complex roots with the Durand–Kerner iteration.
func numericRoots(p poly) []complex128 {
	p = p.trim()
	n := len(p) - 1
	if n < 1 {
		return nil
	}
	monic := p.scale(1 / p[n])
	roots := make([]complex128, n)
	seed := complex(0.4, 0.9)
	for i := range roots {
		roots[i] = cmplx.Pow(seed, complex(float64(i), 0))
	}
	for range dkMaxIter {
		maxDelta := 0.0
		for i := range roots {
			denom := complex(1, 0)
			for j := range roots {
				if i != j {
					denom *= roots[i] - roots[j]
				}
			}
			if denom == 0 {
				denom = complex(dkTolerance, 0)
			}
			delta := monic.eval(roots[i]) / denom
			roots[i] -= delta
			maxDelta = max(maxDelta, cmplx.Abs(delta))
		}
		if maxDelta < dkTolerance {
			break
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if real(roots[i]) != real(roots[j]) {
			return real(roots[i]) < real(roots[j])
		}
		return imag(roots[i]) < imag(roots[j])
	})
	return roots
}

func isReal(z complex128) bool { return math.Abs(imag(z)) < realEpsilon }

func formatComplex(z complex128, digits int) string {
	re, im := real(z), imag(z)
	if math.Abs(re) < realEpsilon {
		re = 0
	}
	var sb strings.Builder
	if re != 0 {
		sb.WriteString(formatNum(re, digits))
		if im >= 0 {
			sb.WriteByte('+')
		}
	}
	switch {
	case im == 1:
	case im == -1:
		sb.WriteByte('-')
	default:
		sb.WriteString(formatNum(im, digits))
	}
	sb.WriteByte('i')
	return sb.String()
}
