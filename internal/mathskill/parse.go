package mathskill

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
}

var functions = map[string]bool{
	"sin": true, "cos": true, "tan": true, "cot": true, "sec": true, "csc": true,
	"asin": true, "acos": true, "atan": true, "sinh": true, "cosh": true, "tanh": true,
	"exp": true, "ln": true, "log": true, "sqrt": true, "abs": true,
}

// identifiers are matched longest first so "sinx" lexes as sin x.
var identifiers = []string{
	"asin", "acos", "atan", "sinh", "cosh", "tanh", "sqrt",
	"sin", "cos", "tan", "cot", "sec", "csc", "exp", "abs", "log",
	"ln", "pi",
}

func lex(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(string(rs[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", string(rs[i:j]))
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[i:j]), num: v})
			i = j
		case r >= 'a' && r <= 'z':
			j := i
			for j < len(rs) && rs[j] >= 'a' && rs[j] <= 'z' {
				j++
			}
			toks = append(toks, splitIdent(string(rs[i:j]))...)
			i = j
		case r == 'π':
			toks = append(toks, token{kind: tokIdent, text: "pi"})
			i++
		case r == '√':
			toks = append(toks, token{kind: tokIdent, text: "sqrt"})
			i++
		case r == '(' || r == '[':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case r == ')' || r == ']':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case r == '*':
			if i+1 < len(rs) && rs[i+1] == '*' {
				toks = append(toks, token{kind: tokOp, text: "^"})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokOp, text: "*"})
			i++
		case r == '·' || r == '×' || r == '⋅':
			toks = append(toks, token{kind: tokOp, text: "*"})
			i++
		case r == '÷' || r == '/':
			toks = append(toks, token{kind: tokOp, text: "/"})
			i++
		case r == '−' || r == '-':
			toks = append(toks, token{kind: tokOp, text: "-"})
			i++
		case r == '+' || r == '^':
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		case r == '²':
			toks = append(toks, token{kind: tokOp, text: "^"}, token{kind: tokNum, text: "2", num: 2})
			i++
		case r == '³':
			toks = append(toks, token{kind: tokOp, text: "^"}, token{kind: tokNum, text: "3", num: 3})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

func splitIdent(word string) []token {
	var out []token
	for len(word) > 0 {
		matched := false
		for _, id := range identifiers {
			if strings.HasPrefix(word, id) {
				out = append(out, token{kind: tokIdent, text: id})
				word = word[len(id):]
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, token{kind: tokIdent, text: word[:1]})
			word = word[1:]
		}
	}
	return out
}

type parser struct {
	toks []token
	pos  int
}

// Parse turns an expression string into a tree. Implicit multiplication is
// inserted between adjacent factors: 5x, 2(x+1), (x+1)(x-1), x sin(x).
func Parse(s string) (Expr, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &parser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q", p.peek().text)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) expr() (Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text[0]
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = Bin{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) startsFactor() bool {
	switch p.peek().kind {
	case tokNum, tokIdent, tokLParen:
		return true
	}
	return false
}

func (p *parser) term() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("*") || p.isOp("/"):
			op := p.next().text[0]
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = Bin{Op: op, L: left, R: right}
		case p.startsFactor():
			right, err := p.power()
			if err != nil {
				return nil, err
			}
			left = mul(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (Expr, error) {
	switch {
	case p.isOp("-"):
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Neg{X: x}, nil
	case p.isOp("+"):
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) primary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return num(t.num), nil
	case tokLParen:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return e, nil
	case tokIdent:
		switch {
		case t.text == "pi":
			return constPi, nil
		case t.text == "e":
			return constE, nil
		case functions[t.text]:
			// sin(x)^2 squares the call, sin x^2 squares the argument.
			var (
				arg Expr
				err error
			)
			if p.peek().kind == tokLParen {
				arg, err = p.primary()
			} else {
				arg, err = p.power()
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t.text, err)
			}
			return fn(t.text, arg), nil
		}
		return Var{Name: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}
