package mathskill

import (
	"errors"
	"fmt"
	"math"
)

var errNoClosedForm = errors.New("no closed form in the integral table")

// Derive differentiates e with respect to v. The result is simplified.
func Derive(e Expr, v string) (Expr, error) {
	d, err := derive(e, v)
	if err != nil {
		return nil, err
	}
	return Simplify(d), nil
}

func derive(e Expr, v string) (Expr, error) {
	if !contains(e, v) {
		return num(0), nil
	}
	switch n := e.(type) {
	case Var:
		return num(1), nil
	case Neg:
		d, err := derive(n.X, v)
		if err != nil {
			return nil, err
		}
		return Neg{X: d}, nil
	case Func:
		du, err := derive(n.Arg, v)
		if err != nil {
			return nil, err
		}
		outer, err := deriveFunc(n.Name, n.Arg)
		if err != nil {
			return nil, err
		}
		return mul(outer, du), nil
	case Bin:
		return deriveBin(n, v)
	}
	return nil, fmt.Errorf("cannot differentiate %T", e)
}

func deriveBin(b Bin, v string) (Expr, error) {
	dl, err := derive(b.L, v)
	if err != nil {
		return nil, err
	}
	dr, err := derive(b.R, v)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case '+':
		return add(dl, dr), nil
	case '-':
		return sub(dl, dr), nil
	case '*':
		return add(mul(dl, b.R), mul(b.L, dr)), nil
	case '/':
		if !contains(b.R, v) {
			return div(dl, b.R), nil
		}
		return div(sub(mul(dl, b.R), mul(b.L, dr)), pow(b.R, num(2))), nil
	case '^':
		switch {
		case !contains(b.R, v):
			// n·u^(n-1)·u'
			return mul(mul(b.R, pow(b.L, sub(b.R, num(1)))), dl), nil
		case !contains(b.L, v):
			// a^u·ln(a)·u'
			return mul(mul(b, fn("ln", b.L)), dr), nil
		default:
			// u^w·(w'·ln(u) + w·u'/u)
			return mul(b, add(mul(dr, fn("ln", b.L)), div(mul(b.R, dl), b.L))), nil
		}
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

func deriveFunc(name string, u Expr) (Expr, error) {
	switch name {
	case "sin":
		return fn("cos", u), nil
	case "cos":
		return Neg{X: fn("sin", u)}, nil
	case "tan":
		return div(num(1), pow(fn("cos", u), num(2))), nil
	case "cot":
		return Neg{X: div(num(1), pow(fn("sin", u), num(2)))}, nil
	case "sec":
		return mul(fn("sec", u), fn("tan", u)), nil
	case "csc":
		return Neg{X: mul(fn("csc", u), fn("cot", u))}, nil
	case "asin":
		return div(num(1), fn("sqrt", sub(num(1), pow(u, num(2))))), nil
	case "acos":
		return Neg{X: div(num(1), fn("sqrt", sub(num(1), pow(u, num(2)))))}, nil
	case "atan":
		return div(num(1), add(num(1), pow(u, num(2)))), nil
	case "sinh":
		return fn("cosh", u), nil
	case "cosh":
		return fn("sinh", u), nil
	case "tanh":
		return sub(num(1), pow(fn("tanh", u), num(2))), nil
	case "exp":
		return fn("exp", u), nil
	case "ln":
		return div(num(1), u), nil
	case "log":
		return div(num(1), mul(u, fn("ln", num(10)))), nil
	case "sqrt":
		return div(num(1), mul(num(2), fn("sqrt", u))), nil
	case "abs":
		return div(u, fn("abs", u)), nil
	}
	return nil, fmt.Errorf("cannot differentiate %s", name)
}

// Integrate finds an antiderivative of e with respect to v from a table of
// standard forms, linearity, and linear inner arguments. No constant is added.
func Integrate(e Expr, v string) (Expr, error) {
	r, err := integrate(e, v)
	if err != nil {
		return nil, err
	}
	return Simplify(r), nil
}

// linear reports k, c such that e = k·v + c with k != 0.
func linear(e Expr, v string) (k float64, ok bool) {
	p, err := polyOf(e, v)
	if err != nil || p.degree() != 1 {
		return 0, false
	}
	return p[1], true
}

func over(e Expr, k float64) Expr {
	if k == 1 {
		return e
	}
	return div(e, num(k))
}

func integrate(e Expr, v string) (Expr, error) {
	if !contains(e, v) {
		return mul(e, Var{Name: v}), nil
	}
	switch n := e.(type) {
	case Var:
		return div(pow(n, num(2)), num(2)), nil
	case Neg:
		r, err := integrate(n.X, v)
		if err != nil {
			return nil, err
		}
		return Neg{X: r}, nil
	case Func:
		return integrateFunc(n, v)
	case Bin:
		return integrateBin(n, v)
	}
	return nil, errNoClosedForm
}

func integrateBin(b Bin, v string) (Expr, error) {
	switch b.Op {
	case '+', '-':
		l, err := integrate(b.L, v)
		if err != nil {
			return nil, err
		}
		r, err := integrate(b.R, v)
		if err != nil {
			return nil, err
		}
		return Bin{Op: b.Op, L: l, R: r}, nil
	case '*':
		switch {
		case !contains(b.L, v):
			r, err := integrate(b.R, v)
			if err != nil {
				return nil, err
			}
			return mul(b.L, r), nil
		case !contains(b.R, v):
			r, err := integrate(b.L, v)
			if err != nil {
				return nil, err
			}
			return mul(b.R, r), nil
		}
		// polynomial products expand to a sum of powers
		if p, err := polyOf(b, v); err == nil {
			return integrate(p.expr(v), v)
		}
	case '/':
		if !contains(b.R, v) {
			r, err := integrate(b.L, v)
			if err != nil {
				return nil, err
			}
			return div(r, b.R), nil
		}
		if !contains(b.L, v) {
			if k, ok := linear(b.R, v); ok {
				return mul(b.L, over(fn("ln", fn("abs", b.R)), k)), nil
			}
			if p, ok := b.R.(Bin); ok && p.Op == '^' {
				return integrate(mul(b.L, pow(p.L, Neg{X: p.R})), v)
			}
		}
	case '^':
		if exp, ok := Simplify(b.R).(Num); ok {
			k, lin := linear(b.L, v)
			if !lin {
				if p, err := polyOf(b, v); err == nil {
					return integrate(p.expr(v), v)
				}
				break
			}
			if exp.V == -1 {
				return over(fn("ln", fn("abs", b.L)), k), nil
			}
			return over(div(pow(b.L, num(exp.V+1)), num(exp.V+1)), k), nil
		}
		if !contains(b.L, v) {
			k, lin := linear(b.R, v)
			if !lin {
				break
			}
			if b.L == Expr(constE) {
				return over(b, k), nil
			}
			return over(div(b, fn("ln", b.L)), k), nil
		}
	}
	return nil, errNoClosedForm
}

func integrateFunc(f Func, v string) (Expr, error) {
	k, ok := linear(f.Arg, v)
	if !ok {
		return nil, errNoClosedForm
	}
	u := f.Arg
	var r Expr
	switch f.Name {
	case "sin":
		r = Neg{X: fn("cos", u)}
	case "cos":
		r = fn("sin", u)
	case "tan":
		r = Neg{X: fn("ln", fn("abs", fn("cos", u)))}
	case "exp":
		r = fn("exp", u)
	case "sinh":
		r = fn("cosh", u)
	case "cosh":
		r = fn("sinh", u)
	case "sqrt":
		r = div(mul(num(2), pow(u, num(1.5))), num(3))
	case "ln":
		r = sub(mul(u, fn("ln", u)), u)
	default:
		return nil, errNoClosedForm
	}
	return over(r, k), nil
}

// DefiniteIntegral evaluates F(b) - F(a) for the antiderivative F.
func DefiniteIntegral(antiderivative Expr, v string, a, b float64) (float64, error) {
	fb, err := Eval(antiderivative, map[string]float64{v: b})
	if err != nil {
		return 0, err
	}
	fa, err := Eval(antiderivative, map[string]float64{v: a})
	if err != nil {
		return 0, err
	}
	if r := fb - fa; finite(r) {
		return r, nil
	}
	return math.NaN(), errDomain
}
