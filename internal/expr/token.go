// Package expr implements the calculated-column expression language: infix
// arithmetic, comparisons and boolean operators over numeric literals and
// {field} placeholders. Expressions are parsed once into an AST and then
// evaluated against row- or column-scoped environments.
package expr

import (
	"errors"
	"fmt"
	"strings"

	"cpor-analytics/internal/domain"
)

// ErrInvalidExpression is returned for any syntax error. Per-cell binding
// failures never surface here; they degrade to zero with a warning.
var ErrInvalidExpression = errors.New("invalid expression")

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokPlaceholder
	tokOperator
	tokLeftParen
	tokRightParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

var operators = []string{">=", "<=", "==", "!=", "&&", "||", "+", "-", "*", "/", ">", "<"}

func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	runes := []rune(src)

	for i < len(runes) {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLeftParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRightParen, pos: i})
			i++
		case r == '{':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated placeholder at offset %d", ErrInvalidExpression, i)
			}
			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				return nil, fmt.Errorf("%w: empty placeholder at offset %d", ErrInvalidExpression, i)
			}
			tokens = append(tokens, token{kind: tokPlaceholder, text: name, pos: i})
			i = end + 1
		case isDigit(r) || startsCurrency(runes[i:]):
			lit, width, err := scanNumber(runes[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v at offset %d", ErrInvalidExpression, err, i)
			}
			tokens = append(tokens, token{kind: tokNumber, num: lit, pos: i})
			i += width
		default:
			matched := false
			rest := string(runes[i:])
			for _, op := range operators {
				if strings.HasPrefix(rest, op) {
					tokens = append(tokens, token{kind: tokOperator, text: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidExpression, string(r), i)
			}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func startsCurrency(runes []rune) bool {
	return len(runes) >= 2 && runes[0] == 'R' && runes[1] == '$'
}

// scanNumber reads a numeric literal with optional R$ prefix, accepting
// both comma and dot as decimal separators.
func scanNumber(runes []rune) (float64, int, error) {
	i := 0
	if startsCurrency(runes) {
		i = 2
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
	}
	start := i
	for i < len(runes) && (isDigit(runes[i]) || runes[i] == '.' || runes[i] == ',') {
		i++
	}
	if i == start {
		return 0, 0, errors.New("malformed number")
	}
	value, ok := domain.ParseNumber(string(runes[start:i]))
	if !ok {
		return 0, 0, fmt.Errorf("malformed number %q", string(runes[start:i]))
	}
	return value, i, nil
}
