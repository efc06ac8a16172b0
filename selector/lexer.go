package selector

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokString
	tokNumber
	tokOperator
	tokLParen
	tokRParen
	tokComma
)

var keywords = map[string]bool{
	"AND": true, "OR": true, "NOT": true,
	"BETWEEN": true, "IN": true, "LIKE": true, "ESCAPE": true,
	"IS": true, "NULL": true, "TRUE": true, "FALSE": true,
}

type token struct {
	kind tokenKind
	text string // keywords are upper-cased, strings unquoted
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of selector"
	}
	return fmt.Sprintf("%q", t.text)
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++

		case r == '\'':
			start := i
			var sb strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\'' {
					// '' is an escaped quote
					if i+1 < len(runes) && runes[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, start)
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: start})

		case r == '=' || r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokOperator, text: string(r), pos: i})
			i++
		case r == '<':
			switch {
			case i+1 < len(runes) && runes[i+1] == '>':
				tokens = append(tokens, token{kind: tokOperator, text: "<>", pos: i})
				i += 2
			case i+1 < len(runes) && runes[i+1] == '=':
				tokens = append(tokens, token{kind: tokOperator, text: "<=", pos: i})
				i += 2
			default:
				tokens = append(tokens, token{kind: tokOperator, text: "<", pos: i})
				i++
			}
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOperator, text: ">=", pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOperator, text: ">", pos: i})
				i++
			}

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				i++
				if i < len(runes) && (runes[i] == '+' || runes[i] == '-') {
					i++
				}
				for i < len(runes) && unicode.IsDigit(runes[i]) {
					i++
				}
			}
			// Java literal suffixes
			if i < len(runes) && strings.ContainsRune("lLfFdD", runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})

		case isIdentStart(r):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			if upper := strings.ToUpper(word); keywords[upper] {
				tokens = append(tokens, token{kind: tokKeyword, text: upper, pos: start})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})
			}

		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, r, i)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
