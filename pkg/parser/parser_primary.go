package parser

// Primary expression grammar:
//
//	primary     → literal | param | * | column_ref | qualified_star
//	            | func_call | case_expr | cast_expr | exists_expr
//	            | interval | typed_literal | "(" query ")" | "(" expr_list ")"
//	            | "[" expr_list "]" | ARRAY "[" expr_list "]" | "{" key ":" expr, ... "}"
//	            | EXTRACT "(" part FROM expr ")"
//	column_ref  → name {"." name}
//	func_call   → name {"." name} "(" [DISTINCT | ALL] [args] [ORDER BY ...] ")"
//	              [IGNORE NULLS | RESPECT NULLS] [FILTER "(" WHERE expr ")"]
//	              [WITHIN GROUP "(" ORDER BY ... ")"] [OVER window]
//	case_expr   → CASE [expr] WHEN expr THEN expr {WHEN ...} [ELSE expr] END
//	cast_expr   → (CAST | TRY_CAST | SAFE_CAST) "(" expr AS type [FORMAT expr] ")"
//	interval    → INTERVAL (string | expr) [unit [TO unit]]

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// typedLiteralWords are type names that may prefix a string literal.
var typedLiteralWords = map[string]bool{
	"date":          true,
	"time":          true,
	"timestamp":     true,
	"timestamptz":   true,
	"timestamp_tz":  true,
	"timestamp_ntz": true,
	"timestamp_ltz": true,
	"datetime":      true,
	"json":          true,
	"uuid":          true,
	"numeric":       true,
	"decimal":       true,
	"bignumeric":    true,
}

var intervalUnits = map[string]bool{
	"year": true, "years": true, "quarter": true, "quarters": true,
	"month": true, "months": true, "week": true, "weeks": true,
	"day": true, "days": true, "hour": true, "hours": true,
	"minute": true, "minutes": true, "second": true, "seconds": true,
	"millisecond": true, "milliseconds": true, "microsecond": true, "microseconds": true,
}

// parsePrimary parses a primary expression.
func (p *Parser) parsePrimary() Expr {
	start := p.token.Pos

	switch p.token.Type {
	case token.NUMBER:
		return p.parseLiteral(LiteralNumber)
	case token.STRING:
		return p.parseLiteral(LiteralString)
	case token.PARAM:
		return p.parseLiteral(LiteralParam)
	case token.TRUE, token.FALSE:
		return p.parseLiteral(LiteralBool)
	case token.NULL:
		return p.parseLiteral(LiteralNull)

	case token.STAR:
		p.nextToken()
		return &StarExpr{spanned: spanned{Loc: p.spanFrom(start)}}

	case token.LPAREN:
		return p.parseParenExpr()

	case token.CASE:
		return p.parseCase()

	case token.CAST:
		return p.parseCast("CAST")

	case token.EXISTS:
		return p.parseExists()

	case token.INTERVAL:
		return p.parseInterval()

	case token.LBRACKET:
		return p.parseArray(start)

	case token.LBRACE:
		return p.parseStruct()

	case token.LEFT, token.RIGHT:
		if p.checkPeek(token.LPAREN) {
			name := p.token.Literal
			p.nextToken()
			return p.parseFuncCall([]string{name}, start)
		}

	case token.IDENT:
		return p.parseIdentExpr()
	}

	p.addError(fmt.Sprintf(ErrExpectedExpression, p.describe(p.token)))
	if !p.check(token.EOF) {
		p.nextToken()
	}
	return &Literal{spanned: spanned{Loc: p.spanFrom(start)}, Kind: LiteralNull, Value: "NULL"}
}

func (p *Parser) parseLiteral(kind LiteralKind) *Literal {
	start := p.token.Pos
	lit := &Literal{Kind: kind, Value: p.token.Literal}
	p.nextToken()
	lit.Loc = p.spanFrom(start)
	return lit
}

// parseIdentExpr parses expressions that start with an identifier: column
// references, qualified stars, function calls and word-led special forms.
func (p *Parser) parseIdentExpr() Expr {
	start := p.token.Pos

	if !p.token.Quoted {
		word := strings.ToLower(p.token.Literal)
		switch {
		case (word == "try_cast" || word == "safe_cast") && p.checkPeek(token.LPAREN):
			return p.parseCast(strings.ToUpper(word))
		case word == "extract" && p.checkPeek(token.LPAREN) && p.checkPeek2(token.IDENT):
			return p.parseExtract()
		case typedLiteralWords[word] && p.checkPeek(token.STRING):
			p.nextToken()
			value := p.token.Literal
			p.nextToken()
			return &TypedLiteral{spanned: spanned{Loc: p.spanFrom(start)}, Type: strings.ToUpper(word), Value: value}
		case word == "array" && p.checkPeek(token.LBRACKET):
			p.nextToken()
			return p.parseArray(start)
		}
	}

	parts := []string{p.parseIdent()}
	for p.check(token.DOT) && !p.failed() {
		if p.checkPeek(token.STAR) {
			p.nextToken()
			p.nextToken()
			return &StarExpr{spanned: spanned{Loc: p.spanFrom(start)}, Qualifier: parts}
		}
		p.nextToken()
		parts = append(parts, p.parseName())
	}

	if p.check(token.LPAREN) {
		return p.parseFuncCall(parts, start)
	}

	return &ColumnRef{spanned: spanned{Loc: p.spanFrom(start)}, Parts: parts}
}

// parseParenExpr parses a scalar subquery, a parenthesized expression or a
// tuple.
func (p *Parser) parseParenExpr() Expr {
	start := p.token.Pos

	if p.startsQuery() {
		p.nextToken()
		q := p.parseQuery()
		p.expect(token.RPAREN)
		return &SubqueryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Query: q}
	}

	p.expect(token.LPAREN)
	if p.match(token.RPAREN) {
		return &TupleExpr{spanned: spanned{Loc: p.spanFrom(start)}}
	}
	items := p.parseExprList()
	p.expect(token.RPAREN)

	if len(items) == 1 {
		return &ParenExpr{spanned: spanned{Loc: p.spanFrom(start)}, Expr: items[0]}
	}
	return &TupleExpr{spanned: spanned{Loc: p.spanFrom(start)}, Items: items}
}

// parseFuncCall parses a call with the given name; the current token is "(".
func (p *Parser) parseFuncCall(name []string, start token.Position) *FuncCall {
	call := &FuncCall{Name: name}
	p.expect(token.LPAREN)
	p.parseFuncArgs(call)
	p.parseFuncSuffix(call)
	call.Loc = p.spanFrom(start)
	return call
}

// parseFuncArgs parses everything between "(" and ")" inclusive of ")".
func (p *Parser) parseFuncArgs(call *FuncCall) {
	if p.check(token.STAR) && p.checkPeek(token.RPAREN) {
		p.nextToken()
		p.nextToken()
		call.Star = true
		return
	}

	if p.match(token.DISTINCT) {
		call.Distinct = true
	} else {
		p.match(token.ALL)
	}

	for !p.check(token.RPAREN) && !p.check(token.EOF) && !p.failed() {
		switch {
		case p.check(token.ORDER) && p.checkPeek(token.BY):
			p.nextToken()
			p.nextToken()
			call.OrderBy = p.parseOrderList()
			continue
		case p.checkWord("ignore") || p.checkWord("respect"):
			call.NullTreatment = strings.ToUpper(p.token.Literal) + " NULLS"
			p.nextToken()
			p.matchWord("nulls")
			continue
		case p.match(token.LIMIT), p.matchWord("separator"):
			p.parseExpr()
			continue
		}

		call.Args = append(call.Args, p.parseFuncArg())

		// substring(x FROM 1 FOR 2), trim(y FROM x), overlay(x PLACING y FROM 1)
		if !p.match(token.COMMA) && !p.match(token.FROM) && !p.matchWord("for") && !p.matchWord("placing") {
			if !p.check(token.RPAREN) && !p.check(token.ORDER) && !p.check(token.LIMIT) &&
				!p.checkWord("ignore") && !p.checkWord("respect") && !p.checkWord("separator") {
				p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), token.RPAREN))
			}
		}
	}

	p.expect(token.RPAREN)
}

// parseFuncArg parses one argument, including name => value and subqueries.
func (p *Parser) parseFuncArg() Expr {
	start := p.token.Pos

	if p.check(token.IDENT) && p.checkPeek(token.FATARROW) {
		name := p.token.Literal
		p.nextToken()
		p.nextToken()
		value := p.parseExpr()
		return &NamedArg{spanned: spanned{Loc: p.spanFrom(start)}, Name: name, Value: value}
	}

	if p.check(token.SELECT) || p.check(token.WITH) {
		q := p.parseQuery()
		return &SubqueryExpr{spanned: spanned{Loc: p.spanFrom(start)}, Query: q}
	}

	// trim(BOTH 'x' FROM y), trim(LEADING FROM y)
	if p.checkWord("both") || p.checkWord("leading") || p.checkWord("trailing") {
		if !p.checkPeek(token.COMMA) && !p.checkPeek(token.RPAREN) {
			p.nextToken()
			if p.match(token.FROM) {
				return p.parseExpr()
			}
		}
	}

	return p.parseExpr()
}

// parseFuncSuffix parses the clauses that may follow a call's ")".
func (p *Parser) parseFuncSuffix(call *FuncCall) {
	if (p.checkWord("ignore") || p.checkWord("respect")) && isWord(p.peek, "nulls") {
		call.NullTreatment = strings.ToUpper(p.token.Literal) + " NULLS"
		p.nextToken()
		p.nextToken()
	}

	if p.checkWord("within") && p.checkPeek(token.GROUP) {
		p.nextToken()
		p.nextToken()
		p.expect(token.LPAREN)
		if p.expect(token.ORDER) && p.expect(token.BY) {
			call.WithinGroup = p.parseOrderList()
		}
		p.expect(token.RPAREN)
	}

	if p.checkWord("filter") && p.checkPeek(token.LPAREN) {
		p.nextToken()
		p.nextToken()
		p.expect(token.WHERE)
		call.Filter = p.parseExpr()
		p.expect(token.RPAREN)
	}

	if p.match(token.OVER) {
		if p.check(token.LPAREN) {
			call.Over = p.parseWindowSpec()
		} else {
			start := p.token.Pos
			name := p.parseIdent()
			call.Over = &WindowSpec{spanned: spanned{Loc: p.spanFrom(start)}, Name: name}
		}
	}
}

// parseCase parses a CASE expression.
func (p *Parser) parseCase() Expr {
	start := p.token.Pos
	p.expect(token.CASE)
	c := &CaseExpr{}

	if !p.check(token.WHEN) {
		c.Operand = p.parseExpr()
	}

	for p.check(token.WHEN) && !p.failed() {
		wstart := p.token.Pos
		p.nextToken()
		w := &WhenClause{Condition: p.parseExpr()}
		p.expect(token.THEN)
		w.Result = p.parseExpr()
		w.Loc = p.spanFrom(wstart)
		c.Whens = append(c.Whens, w)
	}
	if len(c.Whens) == 0 {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), token.WHEN))
	}

	if p.match(token.ELSE) {
		c.Else = p.parseExpr()
	}
	p.expect(token.END)

	c.Loc = p.spanFrom(start)
	return c
}

// parseCast parses CAST(expr AS type) and its TRY_/SAFE_ variants.
func (p *Parser) parseCast(kind string) Expr {
	start := p.token.Pos
	p.nextToken() // CAST / TRY_CAST / SAFE_CAST
	p.expect(token.LPAREN)

	c := &CastExpr{Kind: kind, Expr: p.parseExpr()}
	p.expect(token.AS)
	c.Type = p.parseTypeName(true)
	if p.matchWord("format") {
		p.parseExpr()
	}
	p.expect(token.RPAREN)

	c.Loc = p.spanFrom(start)
	return c
}

// parseExists parses EXISTS (query).
func (p *Parser) parseExists() *ExistsExpr {
	start := p.token.Pos
	p.expect(token.EXISTS)
	e := &ExistsExpr{}
	if p.expect(token.LPAREN) {
		e.Query = p.parseQuery()
		p.expect(token.RPAREN)
	}
	e.Loc = p.spanFrom(start)
	return e
}

// parseExtract parses EXTRACT(part FROM expr), falling back to a plain
// call for extract(a, b).
func (p *Parser) parseExtract() Expr {
	start := p.token.Pos
	name := p.token.Literal
	p.nextToken() // EXTRACT
	p.nextToken() // (

	if p.checkPeek(token.FROM) {
		part := strings.ToUpper(p.parseName())
		p.expect(token.FROM)
		e := &ExtractExpr{Part: part, Expr: p.parseExpr()}
		p.expect(token.RPAREN)
		e.Loc = p.spanFrom(start)
		return e
	}

	call := &FuncCall{Name: []string{name}}
	p.parseFuncArgs(call)
	p.parseFuncSuffix(call)
	call.Loc = p.spanFrom(start)
	return call
}

// parseInterval parses INTERVAL '1 day', INTERVAL 1 DAY or INTERVAL '1' DAY TO HOUR.
func (p *Parser) parseInterval() Expr {
	start := p.token.Pos
	p.expect(token.INTERVAL)

	iv := &IntervalExpr{}
	if p.check(token.STRING) {
		iv.Value = p.parseLiteral(LiteralString)
	} else {
		iv.Value = p.parseExprPrec(precUnary)
	}

	if p.check(token.IDENT) && intervalUnits[strings.ToLower(p.token.Literal)] {
		iv.Unit = strings.ToUpper(p.token.Literal)
		p.nextToken()
		if p.checkWord("to") && isIntervalUnit(p.peek) {
			p.nextToken()
			iv.Unit += " TO " + strings.ToUpper(p.token.Literal)
			p.nextToken()
		}
	}

	iv.Loc = p.spanFrom(start)
	return iv
}

func isIntervalUnit(tok token.Token) bool {
	return tok.Type == token.IDENT && intervalUnits[strings.ToLower(tok.Literal)]
}

// parseArray parses [a, b] with the current token at "[".
func (p *Parser) parseArray(start token.Position) Expr {
	p.expect(token.LBRACKET)
	arr := &ArrayExpr{}
	if !p.check(token.RBRACKET) {
		arr.Items = p.parseExprList()
	}
	p.expect(token.RBRACKET)
	arr.Loc = p.spanFrom(start)
	return arr
}

// parseStruct parses {'key': value, ...}.
func (p *Parser) parseStruct() Expr {
	start := p.token.Pos
	p.expect(token.LBRACE)
	s := &StructExpr{}

	for !p.check(token.RBRACE) && !p.failed() {
		var key string
		if p.check(token.STRING) {
			key = p.token.Literal
			p.nextToken()
		} else {
			key = p.parseName()
		}
		p.expect(token.COLON)
		s.Keys = append(s.Keys, key)
		s.Values = append(s.Values, p.parseExpr())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE)

	s.Loc = p.spanFrom(start)
	return s
}
