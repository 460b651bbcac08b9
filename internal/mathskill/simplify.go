package mathskill

import (
	"errors"
	"fmt"
	"math"
)

const maxSimplifyPasses = 16

// Simplify applies local rewrite rules bottom-up until the tree stops changing.
func Simplify(e Expr) Expr {
	prev := String(e)
	for range maxSimplifyPasses {
		e = simplifyOnce(e)
		cur := String(e)
		if cur == prev {
			break
		}
		prev = cur
	}
	return e
}

func isNum(e Expr, v float64) bool {
	n, ok := e.(Num)
	return ok && n.V == v
}

func same(a, b Expr) bool { return String(a) == String(b) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func simplifyOnce(e Expr) Expr {
	switch n := e.(type) {
	case Neg:
		x := simplifyOnce(n.X)
		switch xx := x.(type) {
		case Num:
			return num(-xx.V)
		case Neg:
			return xx.X
		}
		return Neg{X: x}
	case Func:
		return simplifyFunc(n.Name, simplifyOnce(n.Arg))
	case Bin:
		return simplifyBin(n.Op, simplifyOnce(n.L), simplifyOnce(n.R))
	}
	return e
}

func simplifyFunc(name string, arg Expr) Expr {
	switch {
	case name == "ln" && arg == Expr(constE):
		return num(1)
	case (name == "ln" || name == "log") && isNum(arg, 1):
		return num(0)
	case (name == "sin" || name == "tan" || name == "sqrt") && isNum(arg, 0):
		return num(0)
	case (name == "cos" || name == "exp") && isNum(arg, 0):
		return num(1)
	case name == "sqrt":
		if a, ok := arg.(Num); ok && a.V >= 0 {
			if r := math.Sqrt(a.V); r == math.Trunc(r) {
				return num(r)
			}
		}
	}
	return fn(name, arg)
}

func simplifyBin(op byte, l, r Expr) Expr {
	ln, lok := l.(Num)
	rn, rok := r.(Num)
	if lok && rok {
		if v, err := applyOp(op, ln.V, rn.V); err == nil && finite(v) {
			return num(v)
		}
	}
	switch op {
	case '+':
		switch {
		case isNum(l, 0):
			return r
		case isNum(r, 0):
			return l
		case same(l, r):
			return mul(num(2), l)
		}
		if nr, ok := r.(Neg); ok {
			return sub(l, nr.X)
		}
		if rok && rn.V < 0 {
			return sub(l, num(-rn.V))
		}
	case '-':
		switch {
		case isNum(r, 0):
			return l
		case isNum(l, 0):
			return Neg{X: r}
		case same(l, r):
			return num(0)
		}
		if nr, ok := r.(Neg); ok {
			return add(l, nr.X)
		}
		if rok && rn.V < 0 {
			return add(l, num(-rn.V))
		}
	case '*':
		switch {
		case isNum(l, 0) || isNum(r, 0):
			return num(0)
		case isNum(l, 1):
			return r
		case isNum(r, 1):
			return l
		case isNum(l, -1):
			return Neg{X: r}
		case isNum(r, -1):
			return Neg{X: l}
		case rok && !lok:
			return mul(r, l)
		case same(l, r):
			return pow(l, num(2))
		}
		if lok && ln.V < 0 {
			return Neg{X: mul(num(-ln.V), r)}
		}
		if nl, ok := l.(Neg); ok {
			return Neg{X: mul(nl.X, r)}
		}
		if nr, ok := r.(Neg); ok {
			return Neg{X: mul(l, nr.X)}
		}
		if lok {
			if inner, ok := r.(Bin); ok {
				if in, ok := inner.L.(Num); ok && inner.Op == '*' {
					return mul(num(ln.V*in.V), inner.R)
				}
				if dn, ok := inner.R.(Num); ok && inner.Op == '/' {
					if q := ln.V / dn.V; q == math.Trunc(q) {
						return mul(num(q), inner.L)
					}
				}
			}
		}
	case '/':
		switch {
		case isNum(r, 1):
			return l
		case isNum(l, 0):
			return num(0)
		case same(l, r):
			return num(1)
		}
		if nl, ok := l.(Neg); ok {
			return Neg{X: div(nl.X, r)}
		}
		if rok && rn.V < 0 {
			return Neg{X: div(l, num(-rn.V))}
		}
	case '^':
		switch {
		case isNum(r, 1):
			return l
		case isNum(r, 0):
			return num(1)
		}
		if inner, ok := l.(Bin); ok && inner.Op == '^' && rok {
			if in, ok := inner.R.(Num); ok {
				return pow(inner.L, num(in.V*rn.V))
			}
		}
	}
	return Bin{Op: op, L: l, R: r}
}

var errDomain = errors.New("undefined value")

func applyOp(op byte, a, b float64) (float64, error) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, errDomain
		}
		return a / b, nil
	case '^':
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

// Eval computes e numerically. Every variable must be bound in env.
func Eval(e Expr, env map[string]float64) (float64, error) {
	switch n := e.(type) {
	case Num:
		return n.V, nil
	case Const:
		return n.V, nil
	case Var:
		v, ok := env[n.Name]
		if !ok {
			return 0, fmt.Errorf("unbound variable %s", n.Name)
		}
		return v, nil
	case Neg:
		v, err := Eval(n.X, env)
		return -v, err
	case Func:
		a, err := Eval(n.Arg, env)
		if err != nil {
			return 0, err
		}
		return applyFunc(n.Name, a)
	case Bin:
		a, err := Eval(n.L, env)
		if err != nil {
			return 0, err
		}
		b, err := Eval(n.R, env)
		if err != nil {
			return 0, err
		}
		v, err := applyOp(n.Op, a, b)
		if err != nil {
			return 0, err
		}
		if !finite(v) {
			return 0, errDomain
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown node %T", e)
}

func applyFunc(name string, a float64) (float64, error) {
	var v float64
	switch name {
	case "sin":
		v = math.Sin(a)
	case "cos":
		v = math.Cos(a)
	case "tan":
		v = math.Tan(a)
	case "cot":
		v = 1 / math.Tan(a)
	case "sec":
		v = 1 / math.Cos(a)
	case "csc":
		v = 1 / math.Sin(a)
	case "asin":
		v = math.Asin(a)
	case "acos":
		v = math.Acos(a)
	case "atan":
		v = math.Atan(a)
	case "sinh":
		v = math.Sinh(a)
	case "cosh":
		v = math.Cosh(a)
	case "tanh":
		v = math.Tanh(a)
	case "exp":
		v = math.Exp(a)
	case "ln":
		v = math.Log(a)
	case "log":
		v = math.Log10(a)
	case "sqrt":
		v = math.Sqrt(a)
	case "abs":
		v = math.Abs(a)
	default:
		return 0, fmt.Errorf("unknown function %s", name)
	}
	if !finite(v) {
		return 0, errDomain
	}
	return v, nil
}
