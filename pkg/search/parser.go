package search

import "strings"

// ExprOp is the boolean operator of a parse tree node.
type ExprOp int

const (
	ExprTerm ExprOp = iota
	ExprAnd
	ExprOr
	ExprNot
)

// Expr is a node of the parse tree produced by Parse. A nil *Expr is
// the empty query, which matches everything.
type Expr struct {
	Op   ExprOp
	Sub  []*Expr
	Term *Term
}

// parse tokenizes and parses query text into a tree. Precedence from
// tightest to loosest: NOT, AND (explicit or juxtaposition), OR.
// Same-precedence operators left-fold into flat nodes so that
// "a b AND c" and "a AND b AND c" produce identical trees.
func parse(text string) (*Expr, error) {
	if strings.ContainsRune(text, 0) {
		return nil, queryErrorf("control characters are not allowed in queries")
	}

	lex := &lexer{input: text}
	var toks []token
	for {
		tok, err := lex.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			break
		}
	}

	p := &treeParser{toks: toks}
	if p.peek() == tokEOF {
		return nil, nil
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek() != tokEOF {
		return nil, queryErrorf("could not parse query: unexpected %s", p.describe())
	}
	return expr, nil
}

type treeParser struct {
	toks []token
	pos  int
}

func (p *treeParser) peek() tokenKind {
	return p.toks[p.pos].kind
}

func (p *treeParser) take() token {
	tok := p.toks[p.pos]
	p.pos++
	return tok
}

func (p *treeParser) describe() string {
	switch p.peek() {
	case tokRParen:
		return "closing parenthesis"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	default:
		return "token"
	}
}

func (p *treeParser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == tokOr {
		p.take()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = fold(ExprOr, left, right)
	}
	return left, nil
}

func (p *treeParser) parseAnd() (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case tokAnd:
			p.take()
		case tokTerm, tokNot, tokLParen:
			// Juxtaposition is an implicit AND.
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = fold(ExprAnd, left, right)
	}
}

func (p *treeParser) parseUnary() (*Expr, error) {
	switch p.peek() {
	case tokNot:
		p.take()
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Op: ExprNot, Sub: []*Expr{sub}}, nil
	case tokLParen:
		p.take()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != tokRParen {
			return nil, queryErrorf("could not parse query: missing closing parenthesis")
		}
		p.take()
		return expr, nil
	case tokTerm:
		tok := p.take()
		term := tok.term
		return &Expr{Op: ExprTerm, Term: &term}, nil
	default:
		return nil, queryErrorf("could not parse query: expected a search term, got %s", p.describe())
	}
}

// fold appends right to left when left is already a node of the same
// operator, keeping same-precedence chains flat.
func fold(op ExprOp, left, right *Expr) *Expr {
	if left.Op == op {
		left.Sub = append(left.Sub, right)
		return left
	}
	return &Expr{Op: op, Sub: []*Expr{left, right}}
}
