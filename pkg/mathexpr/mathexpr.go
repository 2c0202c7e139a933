// Package mathexpr evaluates the small arithmetic expressions that hidden
// template properties declare. It supports the four basic operators plus
// modulo, unary minus, parentheses, numeric literals and identifiers.
// Identifiers are proper tokens, so one property name being a prefix of
// another can never cause a misparse.
package mathexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a parsed arithmetic expression ready for evaluation.
type Expression struct {
	source string
	root   node
	vars   []string
}

// Parse tokenizes and parses the expression text.
func Parse(input string) (*Expression, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("mathexpr: expression is empty")
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("mathexpr: unexpected trailing input %q", p.tokens[p.pos].raw)
	}

	expr := &Expression{source: trimmed, root: root}
	seen := make(map[string]struct{})
	collectVars(root, seen, &expr.vars)
	return expr, nil
}

// Source returns the original expression text.
func (e *Expression) Source() string { return e.source }

// Vars lists every identifier the expression references, in first-use order.
func (e *Expression) Vars() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

// Eval computes the expression against the given bindings. A missing binding
// is an error naming the identifier.
func (e *Expression) Eval(bindings map[string]float64) (float64, error) {
	return e.root.eval(bindings)
}

// ToNumber coerces a parameter value into a float64 binding. Strings are
// parsed, booleans map to 0/1.
func ToNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// FormatNumber renders a result the way template output expects: integral
// values without a decimal point.
func FormatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdentifier
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '+':
			tokens = append(tokens, token{tokenPlus, "+"})
			i++
		case ch == '-':
			tokens = append(tokens, token{tokenMinus, "-"})
			i++
		case ch == '*':
			tokens = append(tokens, token{tokenStar, "*"})
			i++
		case ch == '/':
			tokens = append(tokens, token{tokenSlash, "/"})
			i++
		case ch == '%':
			tokens = append(tokens, token{tokenPercent, "%"})
			i++
		case ch == '(':
			tokens = append(tokens, token{tokenLParen, "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokenRParen, ")"})
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			start := i
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			raw := input[start:i]
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("mathexpr: invalid number %q", raw)
			}
			tokens = append(tokens, token{tokenNumber, raw})
		case isIdentStart(ch):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, token{tokenIdentifier, input[start:i]})
		default:
			return nil, fmt.Errorf("mathexpr: unexpected character %q", string(ch))
		}
	}
	return tokens, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9' || ch == '.'
}

type node interface {
	eval(bindings map[string]float64) (float64, error)
}

type literalNode float64

func (n literalNode) eval(map[string]float64) (float64, error) { return float64(n), nil }

type identNode string

func (n identNode) eval(bindings map[string]float64) (float64, error) {
	value, ok := bindings[string(n)]
	if !ok {
		return 0, fmt.Errorf("mathexpr: unbound identifier %q", string(n))
	}
	return value, nil
}

type unaryNode struct {
	operand node
}

func (n unaryNode) eval(bindings map[string]float64) (float64, error) {
	value, err := n.operand.eval(bindings)
	if err != nil {
		return 0, err
	}
	return -value, nil
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(bindings map[string]float64) (float64, error) {
	left, err := n.left.eval(bindings)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(bindings)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case tokenPlus:
		return left + right, nil
	case tokenMinus:
		return left - right, nil
	case tokenStar:
		return left * right, nil
	case tokenSlash:
		if right == 0 {
			return 0, fmt.Errorf("mathexpr: division by zero")
		}
		return left / right, nil
	case tokenPercent:
		if right == 0 {
			return 0, fmt.Errorf("mathexpr: modulo by zero")
		}
		return float64(int64(left) % int64(right)), nil
	default:
		return 0, fmt.Errorf("mathexpr: unknown operator")
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseExpression() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenPlus && tok.kind != tokenMinus {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenStar && tok.kind != tokenSlash && tok.kind != tokenPercent {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokenMinus {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("mathexpr: unexpected end of expression")
	}
	switch tok.kind {
	case tokenNumber:
		p.pos++
		value, _ := strconv.ParseFloat(tok.raw, 64)
		return literalNode(value), nil
	case tokenIdentifier:
		p.pos++
		return identNode(tok.raw), nil
	case tokenLParen:
		p.pos++
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		next, ok := p.peek()
		if !ok || next.kind != tokenRParen {
			return nil, fmt.Errorf("mathexpr: missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	default:
		return nil, fmt.Errorf("mathexpr: unexpected token %q", tok.raw)
	}
}

func collectVars(n node, seen map[string]struct{}, out *[]string) {
	switch v := n.(type) {
	case identNode:
		name := string(v)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			*out = append(*out, name)
		}
	case unaryNode:
		collectVars(v.operand, seen, out)
	case binaryNode:
		collectVars(v.left, seen, out)
		collectVars(v.right, seen, out)
	}
}
