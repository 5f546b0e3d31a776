// Package parser reads compiled SQL into an AST suitable for column lineage.
//
// # Usage
//
//	q, err := parser.Parse("SELECT a, b FROM t", parser.WithDialect(parser.ANSI))
//	if err != nil {
//	    // handle error
//	}
//
// Dialects only change lexing (identifier quoting, string quoting and
// semi-structured path syntax). The grammar is the union of what dbt
// adapters commonly emit.
//
// # Grammar Overview
//
//	statement     → query [;]
//	query         → [WITH [RECURSIVE] cte_list] set_expr [ORDER BY order_list]
//	                [LIMIT expr] [OFFSET expr]
//	set_expr      → set_term {(UNION | EXCEPT | MINUS) [ALL | DISTINCT] set_term}
//	set_term      → query_primary {INTERSECT [ALL | DISTINCT] query_primary}
//	query_primary → select_core | VALUES rows | "(" query ")"
//	select_core   → SELECT [DISTINCT [ON (...)]] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [WINDOW window_list] [QUALIFY expr]
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// Parser parses SQL into an AST.
type Parser struct {
	sql     string
	lexer   *Lexer
	token   token.Token // current token
	peek    token.Token // lookahead token
	peek2   token.Token // second lookahead token
	prevEnd token.Position
	errors  []error
	dialect *Dialect
}

// Option configures parsing.
type Option func(*Parser)

// WithDialect selects the lexical dialect. A nil dialect means ANSI.
func WithDialect(d *Dialect) Option {
	return func(p *Parser) {
		if d != nil {
			p.dialect = d
		}
	}
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string, opts ...Option) *Parser {
	p := &Parser{sql: sql, dialect: ANSI}
	for _, opt := range opts {
		opt(p)
	}
	p.lexer = NewLexerWithDialect(sql, p.dialect)
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single query statement and returns its AST.
func Parse(sql string, opts ...Option) (*Query, error) {
	p := NewParser(sql, opts...)
	q := p.parseStatement()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

// Err returns the first lexing or parsing error, if any.
func (p *Parser) Err() error {
	if len(p.lexer.Errors) > 0 {
		return p.lexer.Errors[0]
	}
	if len(p.errors) > 0 {
		return p.errors[0]
	}
	return nil
}

// Dialect returns the parser's dialect.
func (p *Parser) Dialect() *Dialect {
	return p.dialect
}

// Comments returns the comments skipped so far.
func (p *Parser) Comments() []*token.Comment {
	return p.lexer.Comments
}

// Text returns the source text covered by node.
func Text(sql string, node Node) string {
	return node.Span().Slice(sql)
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	if p.token.End.IsValid() {
		p.prevEnd = p.token.End
	}
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// checkPeek2 returns true if the peek2 token is of the given type.
func (p *Parser) checkPeek2(t token.TokenType) bool {
	return p.peek2.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), t))
	return false
}

// addError adds a parse error at the current token.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0 || len(p.lexer.Errors) > 0
}

func (p *Parser) describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.IDENT, token.NUMBER, token.STRING:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	}
	return tok.Type.String()
}

// spanFrom returns the span from start to the end of the last consumed token.
func (p *Parser) spanFrom(start token.Position) token.Span {
	return token.Span{Start: start, End: p.prevEnd}
}

// ---------- Word Helpers ----------

// checkWord returns true if the current token is the unreserved word w.
// w must be lowercase.
func (p *Parser) checkWord(w string) bool {
	return isWord(p.token, w)
}

func (p *Parser) matchWord(w string) bool {
	if p.checkWord(w) {
		p.nextToken()
		return true
	}
	return false
}

func isWord(tok token.Token, w string) bool {
	return tok.Type == token.IDENT && !tok.Quoted && equalFold(tok.Literal, w)
}

// equalFold is an ASCII-only strings.EqualFold for lowercase w.
func equalFold(s, w string) bool {
	if len(s) != len(w) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != w[i] {
			return false
		}
	}
	return true
}

// nonAliasWords are unreserved words that start a clause or join and so
// cannot be taken as an implicit alias.
var nonAliasWords = map[string]bool{
	"minus":       true,
	"fetch":       true,
	"pivot":       true,
	"unpivot":     true,
	"tablesample": true,
	"asof":        true,
	"positional":  true,
	"semi":        true,
	"anti":        true,
	"window":      true,
	"exclude":     true,
	"replace":     true,
	"rename":      true,
	"apply":       true,
}

// canImplicitAlias reports whether the current token may be an alias
// written without AS.
func (p *Parser) canImplicitAlias() bool {
	if !p.check(token.IDENT) {
		return false
	}
	if p.token.Quoted {
		return true
	}
	return !nonAliasWords[strings.ToLower(p.token.Literal)]
}

// parseIdent consumes an identifier and returns its name.
func (p *Parser) parseIdent() string {
	if p.check(token.IDENT) {
		name := p.token.Literal
		p.nextToken()
		return name
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier"))
	return ""
}

// parseName consumes an identifier or any keyword used as a name, as in
// t.order or AS end.
func (p *Parser) parseName() string {
	if p.check(token.IDENT) || token.IsKeyword(p.token.Type) {
		name := p.token.Literal
		p.nextToken()
		return name
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "name"))
	return ""
}

// parseAlias parses [AS] alias and returns "" when no alias is present.
func (p *Parser) parseAlias() string {
	if p.match(token.AS) {
		if p.check(token.STRING) {
			name := p.token.Literal
			p.nextToken()
			return name
		}
		return p.parseName()
	}
	if p.canImplicitAlias() {
		return p.parseIdent()
	}
	return ""
}

// parseIdentList parses ( ident {, ident} ).
func (p *Parser) parseIdentList() []string {
	var names []string
	if !p.expect(token.LPAREN) {
		return nil
	}
	for !p.failed() {
		names = append(names, p.parseName())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)
	return names
}

// skipParens consumes a balanced parenthesized group starting at "(".
func (p *Parser) skipParens() {
	if !p.expect(token.LPAREN) {
		return
	}
	depth := 1
	for depth > 0 && !p.check(token.EOF) {
		switch p.token.Type {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
		}
		p.nextToken()
	}
	if depth > 0 {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, "end of input", token.RPAREN))
	}
}
