package search

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokTerm
)

type token struct {
	kind tokenKind
	term Term
}

// Term is one field:value (or bare) unit of a query as produced by the
// lexer. Op is empty for bare terms.
type Term struct {
	Field string
	Op    string
	Value Value
}

// Value carries the raw token of a term before typed conversion.
type Value struct {
	Text   string
	Regex  bool
	Quoted bool
	Range  *Range
}

// Range is a bracketed [from to to] date range token.
type Range struct {
	From string
	To   string
}

// urlSchemes are identifiers that never start a field:value pair, so
// bare URLs lex as single words instead of bogus field lookups.
var urlSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"ftp":    true,
	"mailto": true,
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}

	switch c := l.input[l.pos]; c {
	case '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case '"', '\'':
		v, err := l.readQuoted()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokTerm, term: Term{Value: v}}, nil
	}

	start := l.pos
	ident := l.readIdent()
	if ident != "" && l.pos < len(l.input) && l.input[l.pos] == ':' && !urlSchemes[strings.ToLower(ident)] {
		l.pos++
		op := ":" + l.readOpSuffix()
		value, err := l.readValue(ident)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokTerm, term: Term{
			Field: strings.ToLower(ident),
			Op:    op,
			Value: value,
		}}, nil
	}

	// Bare word, possibly a boolean keyword.
	l.pos = start
	word := l.readBare()
	if word == "" {
		return token{}, queryErrorf("could not parse query: unexpected character %q", string(l.input[l.pos]))
	}
	switch strings.ToUpper(word) {
	case "AND":
		return token{kind: tokAnd}, nil
	case "OR":
		return token{kind: tokOr}, nil
	case "NOT":
		return token{kind: tokNot}, nil
	}
	return token{kind: tokTerm, term: Term{Value: Value{Text: word}}}, nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			l.pos++
			continue
		}
		break
	}
	return l.input[start:l.pos]
}

// readOpSuffix consumes the optional comparison suffix after the colon.
func (l *lexer) readOpSuffix() string {
	if l.pos >= len(l.input) {
		return ""
	}
	switch l.input[l.pos] {
	case '=':
		l.pos++
		return "="
	case '<':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
			return "<="
		}
		return "<"
	case '>':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
			return ">="
		}
		return ">"
	}
	return ""
}

func (l *lexer) readValue(field string) (Value, error) {
	if l.pos >= len(l.input) {
		return Value{}, queryErrorf("missing value for field %q", field)
	}
	switch c := l.input[l.pos]; {
	case c == '[':
		return l.readRange(field)
	case c == 'r' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '"' || l.input[l.pos+1] == '\''):
		l.pos++
		v, err := l.readQuoted()
		if err != nil {
			return Value{}, err
		}
		v.Regex = true
		v.Quoted = false
		return v, nil
	case c == '"' || c == '\'':
		return l.readQuoted()
	}
	word := l.readBare()
	if word == "" {
		return Value{}, queryErrorf("missing value for field %q", field)
	}
	return Value{Text: word}, nil
}

func (l *lexer) readQuoted() (Value, error) {
	quote := l.input[l.pos]
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		// Only the quote and the backslash are escapable; any other
		// backslash is literal so regex escapes survive quoting.
		if c == '\\' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == quote || l.input[l.pos+1] == '\\') {
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return Value{Text: b.String(), Quoted: true}, nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return Value{}, queryErrorf("unterminated string in query")
}

func (l *lexer) readRange(field string) (Value, error) {
	end := strings.IndexByte(l.input[l.pos:], ']')
	if end < 0 {
		return Value{}, queryErrorf("unterminated range for field %q", field)
	}
	body := l.input[l.pos+1 : l.pos+end]
	l.pos += end + 1

	parts := strings.SplitN(body, " to ", 2)
	if len(parts) != 2 {
		return Value{}, queryErrorf("invalid range %q, expected [from to to]", "["+body+"]")
	}
	from := strings.TrimSpace(parts[0])
	to := strings.TrimSpace(parts[1])
	if from == "" || to == "" {
		return Value{}, queryErrorf("invalid range %q, expected [from to to]", "["+body+"]")
	}
	return Value{Range: &Range{From: from, To: to}}, nil
}

// readBare reads an unquoted word, honoring backslash escapes for
// spaces, quotes and parentheses.
func (l *lexer) readBare() string {
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) {
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' || c == '"' || c == '\'' {
			break
		}
		b.WriteByte(c)
		l.pos++
	}
	return b.String()
}
