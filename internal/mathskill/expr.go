package mathskill

import (
	"math"
	"strconv"
	"strings"
)

// Expr is a node of the expression tree. Nodes are immutable.
type Expr interface {
	prec() int
}

// Num is a numeric literal.
type Num struct{ V float64 }

// Var is a single-letter variable.
type Var struct{ Name string }

// Const is a named constant such as e or π.
type Const struct {
	Name string
	V    float64
}

// Bin is a binary operation: + - * / ^.
type Bin struct {
	Op   byte
	L, R Expr
}

// Neg is unary minus.
type Neg struct{ X Expr }

// Func is a one-argument function application.
type Func struct {
	Name string
	Arg  Expr
}

const (
	precAdd = iota + 1
	precMul
	precNeg
	precPow
	precAtom
)

func (n Num) prec() int {
	if n.V < 0 {
		return precNeg
	}
	return precAtom
}
func (Var) prec() int   { return precAtom }
func (Const) prec() int { return precAtom }
func (Neg) prec() int   { return precNeg }
func (Func) prec() int  { return precAtom }
func (b Bin) prec() int {
	switch b.Op {
	case '+', '-':
		return precAdd
	case '*', '/':
		return precMul
	default:
		return precPow
	}
}

var (
	constE  = Const{Name: "e", V: math.E}
	constPi = Const{Name: "π", V: math.Pi}
)

func add(l, r Expr) Expr { return Bin{Op: '+', L: l, R: r} }
func sub(l, r Expr) Expr { return Bin{Op: '-', L: l, R: r} }
func mul(l, r Expr) Expr { return Bin{Op: '*', L: l, R: r} }
func div(l, r Expr) Expr { return Bin{Op: '/', L: l, R: r} }
func pow(l, r Expr) Expr { return Bin{Op: '^', L: l, R: r} }
func num(v float64) Expr { return Num{V: v} }
func fn(name string, arg Expr) Expr {
	return Func{Name: name, Arg: arg}
}

// formatNum prints v with up to digits significant digits, dropping float noise on integers.
func formatNum(v float64, digits int) string {
	if r := math.Round(v); math.Abs(v-r) < 1e-9 && math.Abs(r) < 1e15 {
		if r == 0 {
			return "0"
		}
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(v, 'g', digits, 64)
}

// String renders e in the compact notation used in answers: 2x, x^2, x·cos(x), a+b.
func String(e Expr) string {
	var sb strings.Builder
	write(&sb, e)
	return sb.String()
}

func write(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case Num:
		sb.WriteString(formatNum(n.V, 14))
	case Var:
		sb.WriteString(n.Name)
	case Const:
		sb.WriteString(n.Name)
	case Neg:
		sb.WriteByte('-')
		child(sb, n.X, precMul, false)
	case Func:
		if n.Name == "abs" {
			sb.WriteByte('|')
			write(sb, n.Arg)
			sb.WriteByte('|')
			return
		}
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		write(sb, n.Arg)
		sb.WriteByte(')')
	case Bin:
		writeBin(sb, n)
	}
}

func writeBin(sb *strings.Builder, b Bin) {
	p := b.prec()
	switch b.Op {
	case '+':
		child(sb, b.L, p, false)
		switch r := b.R.(type) {
		case Neg:
			sb.WriteByte('-')
			child(sb, r.X, p, true)
			return
		case Num:
			if r.V < 0 {
				sb.WriteByte('-')
				sb.WriteString(formatNum(-r.V, 14))
				return
			}
		}
		sb.WriteByte('+')
		child(sb, b.R, p, false)
	case '-':
		child(sb, b.L, p, false)
		sb.WriteByte('-')
		child(sb, b.R, p, true)
	case '*':
		child(sb, b.L, p, false)
		if !juxtapose(b.L, b.R) {
			sb.WriteString("·")
		}
		child(sb, b.R, p, false)
	case '/':
		child(sb, b.L, p, false)
		sb.WriteByte('/')
		child(sb, b.R, p, true)
	case '^':
		child(sb, b.L, p, true)
		sb.WriteByte('^')
		child(sb, b.R, p, false)
	}
}

// juxtapose reports whether a coefficient can be written directly before its factor.
func juxtapose(l, r Expr) bool {
	n, ok := l.(Num)
	if !ok || n.V < 0 {
		return false
	}
	switch rr := r.(type) {
	case Var, Const, Func:
		return true
	case Bin:
		if rr.Op == '^' {
			_, isVar := rr.L.(Var)
			return isVar
		}
	}
	return false
}

// child writes e, parenthesized when it binds looser than its parent.
// strict also parenthesizes equal precedence (right side of - and /, left side of ^).
func child(sb *strings.Builder, e Expr, parent int, strict bool) {
	p := e.prec()
	if p < parent || (strict && p == parent) {
		sb.WriteByte('(')
		write(sb, e)
		sb.WriteByte(')')
		return
	}
	write(sb, e)
}

// contains reports whether v occurs in e.
func contains(e Expr, v string) bool {
	switch n := e.(type) {
	case Var:
		return n.Name == v
	case Neg:
		return contains(n.X, v)
	case Func:
		return contains(n.Arg, v)
	case Bin:
		return contains(n.L, v) || contains(n.R, v)
	}
	return false
}

// vars lists distinct variables in first-seen order.
func vars(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Var:
			if !seen[n.Name] {
				seen[n.Name] = true
				out = append(out, n.Name)
			}
		case Neg:
			walk(n.X)
		case Func:
			walk(n.Arg)
		case Bin:
			walk(n.L)
			walk(n.R)
		}
	}
	walk(e)
	return out
}

// substitute replaces variables with the numbers in env.
func substitute(e Expr, env map[string]float64) Expr {
	switch n := e.(type) {
	case Var:
		if v, ok := env[n.Name]; ok {
			return num(v)
		}
		return n
	case Neg:
		return Neg{X: substitute(n.X, env)}
	case Func:
		return fn(n.Name, substitute(n.Arg, env))
	case Bin:
		return Bin{Op: n.Op, L: substitute(n.L, env), R: substitute(n.R, env)}
	}
	return e
}
