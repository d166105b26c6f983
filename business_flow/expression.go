package businessflow

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Expression is a compiled placeholder expression.
//
//	expr     := coalesce ('+' coalesce)*
//	coalesce := term ('??' term)*
//	term     := STRING | IDENT | IDENT '(' expr ')' | '(' expr ')'
//
// Identifiers name row columns; contact.<attr> reads a contact field.
// '??' yields the first non-empty operand and binds tighter than '+',
// so 'Hi ' + name ?? 'friend' falls back on name alone.
type Expression struct {
	src  string
	root exprNode
}

// Lookup resolves an identifier. Unknown identifiers evaluate to "".
type Lookup func(name string) (string, bool)

var exprFuncs = map[string]func(string) string{
	"upper": func(s string) string { return cases.Upper(language.Und).String(s) },
	"lower": func(s string) string { return cases.Lower(language.Und).String(s) },
	"title": func(s string) string { return cases.Title(language.Und).String(s) },
	"trim":  strings.TrimSpace,
}

// ParseExpression compiles src. Errors wrap ErrInvalidExpression.
func ParseExpression(src string) (*Expression, error) {
	tokens, err := lexExpression(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	p := &exprParser{tokens: tokens}
	root, err := p.parseConcat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrInvalidExpression, tok, tok.pos)
	}
	return &Expression{src: src, root: root}, nil
}

// Evaluate runs the expression against lookup
func (e *Expression) Evaluate(lookup Lookup) string {
	return e.root.eval(lookup)
}

func (e *Expression) String() string { return e.src }

type exprNode interface {
	eval(Lookup) string
}

type literalNode string

func (n literalNode) eval(Lookup) string { return string(n) }

type identNode string

func (n identNode) eval(lookup Lookup) string {
	v, _ := lookup(string(n))
	return v
}

type concatNode []exprNode

func (n concatNode) eval(lookup Lookup) string {
	var b strings.Builder
	for _, part := range n {
		b.WriteString(part.eval(lookup))
	}
	return b.String()
}

type coalesceNode []exprNode

func (n coalesceNode) eval(lookup Lookup) string {
	for _, part := range n {
		if v := part.eval(lookup); v != "" {
			return v
		}
	}
	return ""
}

type callNode struct {
	fn  func(string) string
	arg exprNode
}

func (n callNode) eval(lookup Lookup) string { return n.fn(n.arg.eval(lookup)) }

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokIdent
	tokPlus
	tokCoalesce
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}

func lexExpression(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+':
			tokens = append(tokens, token{kind: tokPlus, text: "+", pos: i})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '?':
			if i+1 >= len(runes) || runes[i+1] != '?' {
				return nil, fmt.Errorf("expected '??' at %d", i)
			}
			tokens = append(tokens, token{kind: tokCoalesce, text: "??", pos: i})
			i += 2
		case r == '\'' || r == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == r {
					closed = true
					i++
					break
				}
				b.WriteRune(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at %d", start)
			}
			tokens = append(tokens, token{kind: tokString, text: b.String(), pos: start})
		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", r, i)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peek() token { return p.tokens[p.pos] }

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) parseConcat() (exprNode, error) {
	first, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	nodes := concatNode{first}
	for p.peek().kind == tokPlus {
		p.next()
		n, err := p.parseCoalesce()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return first, nil
	}
	return nodes, nil
}

func (p *exprParser) parseCoalesce() (exprNode, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	nodes := coalesceNode{first}
	for p.peek().kind == tokCoalesce {
		p.next()
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return first, nil
	}
	return nodes, nil
}

func (p *exprParser) parseTerm() (exprNode, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return literalNode(tok.text), nil
	case tokIdent:
		if p.peek().kind != tokLParen {
			return identNode(tok.text), nil
		}
		fn, ok := exprFuncs[strings.ToLower(tok.text)]
		if !ok {
			return nil, fmt.Errorf("unknown function %q", tok.text)
		}
		p.next()
		arg, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at %d, got %s", t.pos, t)
		}
		return callNode{fn: fn, arg: arg}, nil
	case tokLParen:
		inner, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at %d, got %s", t.pos, t)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected %s at %d", tok, tok.pos)
	}
}
