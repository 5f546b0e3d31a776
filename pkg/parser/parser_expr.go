package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// Expression precedence parsing using a Pratt parser.
//
// Precedence levels:
//
//	precNone       = 0
//	precOr         = 1
//	precAnd        = 2
//	precNot        = 3
//	precComparison = 4  (=, !=, <, >, <=, >=, IS, IN, BETWEEN, LIKE, ILIKE, RLIKE, ~)
//	precAddition   = 5  (+, -, ||, &, |, ^)
//	precMultiply   = 6  (*, /, %)
//	precUnary      = 7  (-, +, ~, AT TIME ZONE)
//	precPostfix    = 8  (::, [], :, ->, ->>, .)
const (
	precNone = iota
	precOr
	precAnd
	precNot
	precComparison
	precAddition
	precMultiply
	precUnary
	precPostfix
)

// parseExpr parses a full expression.
func (p *Parser) parseExpr() Expr {
	return p.parseExprPrec(precOr)
}

// parsePrimaryExpr parses a primary expression and its postfix operators.
func (p *Parser) parsePrimaryExpr() Expr {
	return p.parseExprPrec(precPostfix)
}

// parseExprList parses expr {, expr}.
func (p *Parser) parseExprList() []Expr {
	var exprs []Expr
	for !p.failed() {
		exprs = append(exprs, p.parseExpr())
		if !p.match(token.COMMA) {
			break
		}
	}
	return exprs
}

// parseExprPrec implements precedence climbing.
func (p *Parser) parseExprPrec(minPrec int) Expr {
	left := p.parsePrefixExpr()

	for !p.failed() {
		prec := p.infixPrecedence()
		if prec == precNone || prec < minPrec {
			break
		}
		left = p.parseInfixExpr(left, prec)
	}

	return left
}

// parsePrefixExpr parses prefix operators and primary expressions.
func (p *Parser) parsePrefixExpr() Expr {
	start := p.token.Pos

	switch p.token.Type {
	case token.NOT:
		if p.checkPeek(token.EXISTS) {
			p.nextToken()
			e := p.parseExists()
			e.Not = true
			e.Loc = p.spanFrom(start)
			return e
		}
		p.nextToken()
		expr := p.parseExprPrec(precNot)
		return &UnaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Op: "NOT", Expr: expr}

	case token.MINUS, token.PLUS, token.TILDE:
		op := p.token.Literal
		p.nextToken()
		expr := p.parseExprPrec(precUnary)
		return &UnaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Op: op, Expr: expr}

	default:
		return p.parsePrimary()
	}
}

// infixPrecedence returns the precedence of the current token as an infix
// operator, or precNone.
func (p *Parser) infixPrecedence() int {
	switch p.token.Type {
	case token.OR:
		return precOr
	case token.AND:
		return precAnd
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE, token.TILDE:
		return precComparison
	case token.IS, token.IN, token.BETWEEN, token.LIKE, token.ILIKE:
		return precComparison
	case token.NOT:
		// NOT IN, NOT BETWEEN, NOT LIKE, NOT ILIKE
		switch p.peek.Type {
		case token.IN, token.BETWEEN, token.LIKE, token.ILIKE:
			return precComparison
		}
		if isLikeWord(p.peek) {
			return precComparison
		}
		return precNone
	case token.PLUS, token.MINUS, token.DPIPE, token.AMP, token.PIPE, token.CARET:
		return precAddition
	case token.STAR, token.SLASH, token.PERCENT:
		return precMultiply
	case token.DCOLON, token.LBRACKET, token.ARROW, token.DARROW, token.DOT:
		return precPostfix
	case token.COLON:
		if p.dialect.ColonPath {
			return precPostfix
		}
		return precNone
	case token.IDENT:
		switch {
		case isLikeWord(p.token):
			return precComparison
		case p.checkWord("similar") && isWord(p.peek, "to"):
			return precComparison
		case p.checkWord("at") && isWord(p.peek, "time") && isWord(p.peek2, "zone"):
			return precUnary
		case p.checkWord("collate"):
			return precPostfix
		case p.checkWord("div"):
			return precMultiply
		}
	}
	return precNone
}

func isLikeWord(tok token.Token) bool {
	return isWord(tok, "rlike") || isWord(tok, "regexp") || isWord(tok, "glob")
}

// parseInfixExpr parses an infix or postfix expression given its left operand.
func (p *Parser) parseInfixExpr(left Expr, prec int) Expr {
	start := left.Span().Start

	switch p.token.Type {
	case token.NOT:
		p.nextToken()
		return p.parseNegatable(left, start, true)

	case token.IN, token.BETWEEN, token.LIKE, token.ILIKE:
		return p.parseNegatable(left, start, false)

	case token.IS:
		return p.parseIs(left, start)

	case token.DCOLON:
		p.nextToken()
		typ := p.parseTypeName(false)
		return &CastExpr{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Type: typ, Kind: "::"}

	case token.LBRACKET:
		return p.parseIndex(left, start)

	case token.COLON:
		p.nextToken()
		field := p.parsePathField()
		return &FieldAccess{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Op: ":", Field: field}

	case token.DOT:
		p.nextToken()
		fstart := p.token.Pos
		name := p.parseName()
		field := &Literal{spanned: spanned{Loc: p.spanFrom(fstart)}, Kind: LiteralString, Value: name}
		return &FieldAccess{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Op: ".", Field: field}

	case token.ARROW, token.DARROW:
		return p.parseArrow(left, start)

	case token.IDENT:
		return p.parseWordInfix(left, start, prec)
	}

	op := p.token.Literal
	if p.token.Type == token.AND || p.token.Type == token.OR {
		op = p.token.Type.String()
	}
	if p.token.Type == token.NE {
		op = "<>"
	}
	p.nextToken()

	// ANY/ALL/SOME quantified comparison
	if prec == precComparison && (p.check(token.ANY) || p.check(token.ALL) || p.checkWord("some")) && p.checkPeek(token.LPAREN) {
		right := p.parseQuantified()
		return &BinaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Left: left, Op: op, Right: right}
	}

	right := p.parseExprPrec(prec + 1)
	return &BinaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Left: left, Op: op, Right: right}
}

// parseNegatable parses IN, BETWEEN and LIKE forms after an optional NOT.
func (p *Parser) parseNegatable(left Expr, start token.Position, not bool) Expr {
	switch {
	case p.match(token.IN):
		return p.parseIn(left, start, not)

	case p.match(token.BETWEEN):
		low := p.parseExprPrec(precAddition)
		p.expect(token.AND)
		high := p.parseExprPrec(precAddition)
		return &BetweenExpr{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Not: not, Low: low, High: high}

	case p.check(token.LIKE) || p.check(token.ILIKE) || isLikeWord(p.token):
		op := strings.ToUpper(p.token.Literal)
		p.nextToken()
		like := &LikeExpr{Expr: left, Not: not, Op: op}
		if p.check(token.ANY) || p.check(token.ALL) {
			like.Pattern = p.parseQuantified()
		} else {
			like.Pattern = p.parseExprPrec(precAddition)
		}
		if p.matchWord("escape") {
			like.Escape = p.parsePrimaryExpr()
		}
		like.Loc = p.spanFrom(start)
		return like
	}

	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "IN, BETWEEN or LIKE"))
	return left
}

// parseIn parses the right side of [NOT] IN.
func (p *Parser) parseIn(left Expr, start token.Position, not bool) Expr {
	in := &InExpr{Expr: left, Not: not}

	if !p.check(token.LPAREN) {
		// IN unnest(arr) / IN some_array
		in.List = []Expr{p.parsePrimaryExpr()}
		in.Loc = p.spanFrom(start)
		return in
	}

	if p.startsQuery() {
		p.nextToken()
		in.Query = p.parseQuery()
		p.expect(token.RPAREN)
	} else {
		p.nextToken()
		if !p.check(token.RPAREN) {
			in.List = p.parseExprList()
		}
		p.expect(token.RPAREN)
	}

	in.Loc = p.spanFrom(start)
	return in
}

// parseIs parses IS [NOT] NULL | TRUE | FALSE | UNKNOWN | DISTINCT FROM expr.
func (p *Parser) parseIs(left Expr, start token.Position) Expr {
	p.expect(token.IS)
	is := &IsExpr{Expr: left}
	is.Not = p.match(token.NOT)

	switch {
	case p.match(token.NULL):
		is.Predicate = "NULL"
	case p.match(token.TRUE):
		is.Predicate = "TRUE"
	case p.match(token.FALSE):
		is.Predicate = "FALSE"
	case p.matchWord("unknown"):
		is.Predicate = "UNKNOWN"
	case p.match(token.DISTINCT):
		p.expect(token.FROM)
		is.Predicate = "DISTINCT FROM"
		is.Right = p.parseExprPrec(precAddition)
	default:
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "NULL, TRUE, FALSE or DISTINCT FROM"))
	}

	is.Loc = p.spanFrom(start)
	return is
}

// parseQuantified parses ANY (...), ALL (...) or SOME (...).
func (p *Parser) parseQuantified() Expr {
	start := p.token.Pos
	quant := strings.ToUpper(p.token.Literal)
	p.nextToken()

	if p.startsQuery() {
		p.nextToken()
		q := p.parseQuery()
		p.expect(token.RPAREN)
		return &SubqueryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Query: q, Quantifier: quant}
	}

	return p.parseFuncCall([]string{quant}, start)
}

// parseIndex parses expr[i] and expr[lo:hi].
func (p *Parser) parseIndex(left Expr, start token.Position) Expr {
	p.expect(token.LBRACKET)
	idx := &IndexExpr{Expr: left}

	if !p.check(token.COLON) {
		idx.Index = p.parseExpr()
	}
	if p.match(token.COLON) {
		idx.Slice = true
		if !p.check(token.RBRACKET) {
			idx.Upper = p.parseExpr()
		}
	}
	p.expect(token.RBRACKET)

	idx.Loc = p.spanFrom(start)
	return idx
}

// parsePathField parses the path after ':' in col:a.b or col:"Key".
func (p *Parser) parsePathField() Expr {
	start := p.token.Pos
	path := p.parseName()
	for p.check(token.DOT) && !p.failed() {
		p.nextToken()
		path += "." + p.parseName()
	}
	return &Literal{spanned: spanned{Loc: p.spanFrom(start)}, Kind: LiteralString, Value: path}
}

// parseArrow parses JSON access (col->'k', col->>'k') and lambdas (x -> x + 1).
func (p *Parser) parseArrow(left Expr, start token.Position) Expr {
	op := p.token.Literal
	p.nextToken()

	if op == "->" {
		if params, ok := lambdaParams(left); ok && !p.check(token.STRING) && !p.check(token.NUMBER) {
			body := p.parseExpr()
			return &LambdaExpr{spanned: spanned{Loc: p.spanFrom(start)}, Params: params, Body: body}
		}
	}

	field := p.parsePrimaryExpr()
	return &FieldAccess{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Op: op, Field: field}
}

// lambdaParams returns the parameter names when e can be a lambda head.
func lambdaParams(e Expr) ([]string, bool) {
	switch v := e.(type) {
	case *ColumnRef:
		if len(v.Parts) == 1 {
			return v.Parts, true
		}
	case *ParenExpr:
		return lambdaParams(v.Expr)
	case *TupleExpr:
		var names []string
		for _, item := range v.Items {
			ref, ok := item.(*ColumnRef)
			if !ok || len(ref.Parts) != 1 {
				return nil, false
			}
			names = append(names, ref.Parts[0])
		}
		return names, true
	}
	return nil, false
}

// parseWordInfix handles infix operators spelled as unreserved words.
func (p *Parser) parseWordInfix(left Expr, start token.Position, prec int) Expr {
	switch {
	case isLikeWord(p.token):
		return p.parseNegatable(left, start, false)

	case p.checkWord("similar"):
		p.nextToken()
		p.nextToken() // TO
		pattern := p.parseExprPrec(precAddition)
		return &LikeExpr{spanned: spanned{Loc: p.spanFrom(start)}, Expr: left, Op: "SIMILAR TO", Pattern: pattern}

	case p.checkWord("at"):
		p.nextToken()
		p.nextToken()
		p.nextToken()
		zone := p.parseExprPrec(precUnary + 1)
		return &BinaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Left: left, Op: "AT TIME ZONE", Right: zone}

	case p.checkWord("collate"):
		p.nextToken()
		if p.check(token.STRING) {
			p.nextToken()
		} else {
			p.parseName()
		}
		return left

	case p.checkWord("div"):
		p.nextToken()
		right := p.parseExprPrec(prec + 1)
		return &BinaryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Left: left, Op: "DIV", Right: right}
	}

	p.addError(fmt.Sprintf(ErrUnexpectedInput, p.token.Type, p.token.Literal))
	return left
}

// parseTypeName parses a type name for CAST and ::. When multiWord is set,
// consecutive words are read as one type (DOUBLE PRECISION, TIMESTAMP WITH
// TIME ZONE). The returned string is the source text of the type.
func (p *Parser) parseTypeName(multiWord bool) string {
	start := p.token.Pos

	p.parseName()
	for p.check(token.DOT) && !p.failed() {
		p.nextToken()
		p.parseName()
	}

	for !p.failed() {
		switch {
		case p.checkWord("precision") || p.checkWord("varying") || p.checkWord("unsigned"):
			p.nextToken()
			continue
		case multiWord && p.check(token.IDENT):
			p.nextToken()
			continue
		case multiWord && p.check(token.WITH) && isWord(p.peek, "time"):
			p.nextToken()
			p.nextToken()
			p.matchWord("zone")
			continue
		}
		break
	}

	if p.check(token.LPAREN) {
		p.skipParens()
	}

	// STRUCT<a INT64>, ARRAY<STRING>
	if p.check(token.LT) {
		depth := 0
		for !p.check(token.EOF) {
			switch p.token.Type {
			case token.LT:
				depth++
			case token.GT:
				depth--
			}
			p.nextToken()
			if depth == 0 {
				break
			}
		}
	}

	for p.check(token.LBRACKET) && p.checkPeek(token.RBRACKET) {
		p.nextToken()
		p.nextToken()
	}

	if p.prevEnd.Offset < start.Offset {
		return ""
	}
	return p.sql[start.Offset:p.prevEnd.Offset]
}
