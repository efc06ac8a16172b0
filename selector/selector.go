// Package selector parses and evaluates JMS message selectors against
// message properties, for brokers that cannot filter on the server.
//
// Evaluation follows SQL three-valued logic: a comparison involving a
// missing property is unknown, and a selector only matches when it
// evaluates to true.
package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("selector syntax error")

// Selector is a parsed message selector. The zero value is not usable;
// an empty expression parses to a selector that matches every message.
type Selector struct {
	text string
	root node
}

// Parse compiles a selector expression.
func Parse(text string) (*Selector, error) {
	if strings.TrimSpace(text) == "" {
		return &Selector{text: text}, nil
	}
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return &Selector{text: text, root: root}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Selector {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the selector as it was written.
func (s *Selector) String() string { return s.text }

// Matches reports whether the properties satisfy the selector.
func (s *Selector) Matches(properties map[string]any) bool {
	if s.root == nil {
		return true
	}
	v, ok := s.root.eval(properties).(bool)
	return ok && v
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	return fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, t, t.pos)
}

func (p *parser) acceptKeyword(word string) bool {
	if t := p.peek(); t.kind == tokKeyword && t.text == word {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(word string) error {
	if !p.acceptKeyword(word) {
		return fmt.Errorf("%w: expected %s, got %s at offset %d", ErrSyntax, word, p.peek(), p.peek().pos)
	}
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("%w: expected %s, got %s at offset %d", ErrSyntax, what, t, t.pos)
	}
	return t, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.acceptKeyword("NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{operand}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t.kind == tokOperator {
		switch t.text {
		case "=", "<>", "<", "<=", ">", ">=":
			p.next()
			right, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			return compareNode{op: t.text, left: left, right: right}, nil
		}
	}

	if p.acceptKeyword("IS") {
		negate := p.acceptKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return isNullNode{operand: left, negate: negate}, nil
	}

	negate := p.acceptKeyword("NOT")
	switch {
	case p.acceptKeyword("BETWEEN"):
		low, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return negated(betweenNode{operand: left, low: low, high: high}, negate), nil

	case p.acceptKeyword("IN"):
		values, err := p.parseInList()
		if err != nil {
			return nil, err
		}
		return negated(inNode{operand: left, values: values}, negate), nil

	case p.acceptKeyword("LIKE"):
		pattern, err := p.expect(tokString, "pattern string")
		if err != nil {
			return nil, err
		}
		escape := ""
		if p.acceptKeyword("ESCAPE") {
			e, err := p.expect(tokString, "escape string")
			if err != nil {
				return nil, err
			}
			if len([]rune(e.text)) != 1 {
				return nil, fmt.Errorf("%w: escape must be a single character at offset %d", ErrSyntax, e.pos)
			}
			escape = e.text
		}
		re, err := likePattern(pattern.text, escape)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return negated(likeNode{operand: left, pattern: re}, negate), nil
	}

	if negate {
		return nil, p.unexpected(p.peek())
	}
	return left, nil
}

func (p *parser) parseInList() ([]string, error) {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var values []string
	for {
		t, err := p.expect(tokString, "string literal")
		if err != nil {
			return nil, err
		}
		values = append(values, t.text)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return values, nil
	}
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOperator || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = arithNode{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOperator || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = arithNode{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOperator && (t.text == "+" || t.text == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return arithNode{op: "-", left: literal{float64(0)}, right: operand}, nil
		}
		return operand, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokString:
		return literal{t.text}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(strings.TrimRight(t.text, "lLfFdD"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q at offset %d", ErrSyntax, t.text, t.pos)
		}
		return literal{n}, nil
	case tokKeyword:
		switch t.text {
		case "TRUE":
			return literal{true}, nil
		case "FALSE":
			return literal{false}, nil
		}
	case tokIdent:
		return identifier(t.text), nil
	}
	return nil, p.unexpected(t)
}

func negated(n node, negate bool) node {
	if negate {
		return notNode{n}
	}
	return n
}
