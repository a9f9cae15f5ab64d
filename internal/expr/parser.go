package expr

import "fmt"

// Grammar, lowest precedence first:
//
//	or    := and ("||" and)*
//	and   := cmp ("&&" cmp)*
//	cmp   := sum (("<" | "<=" | ">" | ">=" | "==" | "!=") sum)?
//	sum   := prod (("+" | "-") prod)*
//	prod  := unary (("*" | "/") unary)*
//	unary := "-" unary | primary
//	primary := number | placeholder | "(" or ")"
type node interface {
	eval(env Env, missing func(string)) Value
}

type numberNode float64

type placeholderNode string

type unaryNode struct {
	operand node
}

type binaryNode struct {
	op          string
	left, right node
}

// Expression is a parsed, reusable expression tree.
type Expression struct {
	src  string
	root node
}

// Parse compiles src into an Expression. All syntax errors wrap
// ErrInvalidExpression.
func Parse(src string) (*Expression, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrInvalidExpression, p.peek().pos)
	}
	return &Expression{src: src, root: root}, nil
}

// Placeholders returns the distinct placeholder names in source order.
func (e *Expression) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(n node)
	walk = func(n node) {
		switch typed := n.(type) {
		case placeholderNode:
			if !seen[string(typed)] {
				seen[string(typed)] = true
				names = append(names, string(typed))
			}
		case unaryNode:
			walk(typed.operand)
		case binaryNode:
			walk(typed.left)
			walk(typed.right)
		}
	}
	walk(e.root)
	return names
}

func (e *Expression) String() string { return e.src }

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOperator(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOperator("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOperator("&&"); !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOperator("<=", ">=", "<", ">", "==", "!=")
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOperator("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOperator("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.acceptOperator("-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return numberNode(tok.num), nil
	case tokPlaceholder:
		return placeholderNode(tok.text), nil
	case tokLeftParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRightParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	default:
		return nil, fmt.Errorf("%w: unexpected token at offset %d", ErrInvalidExpression, tok.pos)
	}
}
