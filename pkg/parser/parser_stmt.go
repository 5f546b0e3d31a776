package parser

// Statement grammar:
//
//	statement     → query {;}
//	query         → [with_clause] set_expr [ORDER BY order_list]
//	                [LIMIT expr [OFFSET expr] | LIMIT expr, expr] [OFFSET expr [ROWS]]
//	                [FETCH (FIRST|NEXT) expr (ROW|ROWS) ONLY]
//	with_clause   → WITH [RECURSIVE] cte {, cte}
//	cte           → name ["(" ident_list ")"] AS [[NOT] MATERIALIZED] "(" query ")"
//	set_expr      → set_term {(UNION | EXCEPT | MINUS) [ALL | DISTINCT] [BY NAME] set_term}
//	set_term      → query_primary {INTERSECT [ALL | DISTINCT] query_primary}
//	query_primary → select_core | VALUES row {, row} | "(" query ")"
//	select_core   → SELECT [ALL | DISTINCT [ON "(" expr_list ")"]] [TOP expr]
//	                select_list [FROM from_clause] [WHERE expr]
//	                [GROUP BY [ALL] group_list] [HAVING expr]
//	                [WINDOW window_list] [QUALIFY expr]
//	select_item   → * [star_modifiers] | name . * [star_modifiers] | expr [[AS] alias]
//	star_modifiers→ [EXCLUDE cols | EXCEPT "(" cols ")"] [REPLACE "(" expr AS name, ... ")"]
//	                [RENAME "(" name AS name, ... ")"]

import (
	"fmt"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// parseStatement parses a complete statement followed by end of input.
func (p *Parser) parseStatement() *Query {
	q := p.parseQuery()
	for p.match(token.SEMICOLON) {
	}
	if !p.failed() && !p.check(token.EOF) {
		p.addError(fmt.Sprintf(ErrUnexpectedInput, p.token.Type, p.token.Literal))
	}
	return q
}

// parseQuery parses a query with optional WITH and trailing clauses.
func (p *Parser) parseQuery() *Query {
	start := p.token.Pos
	q := &Query{}

	if p.check(token.WITH) {
		q.With = p.parseWith()
	}

	q.Body = p.parseSetExpr()

	if p.check(token.ORDER) && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		q.OrderBy = p.parseOrderList()
	}
	p.parseLimitOffset(q)

	q.Loc = p.spanFrom(start)
	return q
}

func (p *Parser) parseLimitOffset(q *Query) {
	for !p.failed() {
		switch {
		case p.match(token.LIMIT):
			if p.match(token.ALL) {
				continue
			}
			q.Limit = p.parseExpr()
			if p.match(token.COMMA) {
				// LIMIT offset, count
				q.Offset = q.Limit
				q.Limit = p.parseExpr()
			}
		case p.match(token.OFFSET):
			q.Offset = p.parseExpr()
			if !p.matchWord("rows") {
				p.matchWord("row")
			}
		case p.checkWord("fetch"):
			p.nextToken()
			if !p.matchWord("first") {
				p.matchWord("next")
			}
			if !p.checkWord("row") && !p.checkWord("rows") {
				q.Limit = p.parseExpr()
			}
			if !p.matchWord("rows") {
				p.matchWord("row")
			}
			if !p.matchWord("only") && !p.failed() {
				p.matchWord("with")
				p.matchWord("ties")
			}
		default:
			return
		}
	}
}

// parseWith parses WITH [RECURSIVE] cte {, cte}.
func (p *Parser) parseWith() *WithClause {
	start := p.token.Pos
	p.expect(token.WITH)
	w := &WithClause{}
	w.Recursive = p.matchWord("recursive")

	for !p.failed() {
		w.CTEs = append(w.CTEs, p.parseCTE())
		if !p.match(token.COMMA) {
			break
		}
	}

	w.Loc = p.spanFrom(start)
	return w
}

func (p *Parser) parseCTE() *CTE {
	start := p.token.Pos
	cte := &CTE{Name: p.parseIdent()}

	if p.check(token.LPAREN) {
		cte.Columns = p.parseIdentList()
	}
	p.expect(token.AS)

	if p.match(token.NOT) {
		p.matchWord("materialized")
	} else {
		p.matchWord("materialized")
	}

	if p.expect(token.LPAREN) {
		cte.Query = p.parseQuery()
		p.expect(token.RPAREN)
	}

	cte.Loc = p.spanFrom(start)
	return cte
}

// parseSetExpr parses UNION / EXCEPT / MINUS chains, left associative.
func (p *Parser) parseSetExpr() QueryBody {
	start := p.token.Pos
	left := p.parseSetTerm()

	for !p.failed() {
		var op token.TokenType
		switch {
		case p.check(token.UNION):
			op = token.UNION
		case p.check(token.EXCEPT):
			op = token.EXCEPT
		case p.checkWord("minus"):
			op = token.EXCEPT
		default:
			return left
		}
		p.nextToken()

		set := &SetOperation{Op: op, Left: left}
		p.parseSetQuantifier(set)
		set.Right = p.parseSetTerm()
		set.Loc = p.spanFrom(start)
		left = set
	}
	return left
}

// parseSetTerm parses INTERSECT chains, which bind tighter than UNION.
func (p *Parser) parseSetTerm() QueryBody {
	start := p.token.Pos
	left := p.parseQueryPrimary()

	for !p.failed() && p.match(token.INTERSECT) {
		set := &SetOperation{Op: token.INTERSECT, Left: left}
		p.parseSetQuantifier(set)
		set.Right = p.parseQueryPrimary()
		set.Loc = p.spanFrom(start)
		left = set
	}
	return left
}

func (p *Parser) parseSetQuantifier(set *SetOperation) {
	if p.match(token.ALL) {
		set.All = true
	} else {
		p.match(token.DISTINCT)
	}
	if p.check(token.BY) && isWord(p.peek, "name") {
		p.nextToken()
		p.nextToken()
		set.ByName = true
	}
}

func (p *Parser) parseQueryPrimary() QueryBody {
	switch {
	case p.check(token.SELECT):
		return p.parseSelect()
	case p.check(token.VALUES):
		return p.parseValues()
	case p.check(token.LPAREN):
		p.nextToken()
		q := p.parseQuery()
		p.expect(token.RPAREN)
		return q
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "SELECT"))
	return &Select{}
}

// parseValues parses VALUES (a, b), (c, d).
func (p *Parser) parseValues() *Values {
	start := p.token.Pos
	p.expect(token.VALUES)
	v := &Values{}

	for !p.failed() {
		var row []Expr
		if p.match(token.LPAREN) {
			row = p.parseExprList()
			p.expect(token.RPAREN)
		} else {
			row = []Expr{p.parseExpr()}
		}
		v.Rows = append(v.Rows, row)
		if !p.match(token.COMMA) {
			break
		}
	}

	v.Loc = p.spanFrom(start)
	return v
}

// parseSelect parses a SELECT block.
func (p *Parser) parseSelect() *Select {
	start := p.token.Pos
	p.expect(token.SELECT)
	s := &Select{}

	if p.match(token.DISTINCT) {
		s.Distinct = true
		if p.match(token.ON) {
			p.expect(token.LPAREN)
			s.DistinctOn = p.parseExprList()
			p.expect(token.RPAREN)
		}
	} else {
		p.match(token.ALL)
	}

	if p.checkWord("top") && (p.checkPeek(token.NUMBER) || p.checkPeek(token.LPAREN)) {
		p.nextToken()
		s.Top = p.parsePrimaryExpr()
		p.matchWord("percent")
	}

	s.Columns = p.parseSelectList()

	if p.match(token.FROM) {
		s.From = p.parseFromClause()
	}

	if p.match(token.WHERE) {
		s.Where = p.parseExpr()
	}

	if p.check(token.GROUP) && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		s.GroupBy = p.parseGroupBy()
	}

	for !p.failed() {
		switch {
		case p.match(token.HAVING):
			s.Having = p.parseExpr()
		case p.check(token.WINDOW):
			s.Windows = append(s.Windows, p.parseWindowClause()...)
		case p.match(token.QUALIFY):
			s.Qualify = p.parseExpr()
		default:
			s.Loc = p.spanFrom(start)
			return s
		}
	}

	s.Loc = p.spanFrom(start)
	return s
}

// parseGroupBy parses the GROUP BY key list. GROUP BY ALL yields no keys.
func (p *Parser) parseGroupBy() []Expr {
	if p.match(token.ALL) {
		return nil
	}
	var keys []Expr
	for !p.failed() {
		if p.checkWord("grouping") && isWord(p.peek, "sets") {
			p.nextToken()
			p.nextToken()
		}
		keys = append(keys, p.parseExpr())
		if !p.match(token.COMMA) {
			break
		}
	}
	// WITH ROLLUP / WITH CUBE
	if p.check(token.WITH) && (isWord(p.peek, "rollup") || isWord(p.peek, "cube")) {
		p.nextToken()
		p.nextToken()
	}
	return keys
}

// parseSelectList parses a comma-separated select list. A trailing comma
// before FROM is tolerated.
func (p *Parser) parseSelectList() []*SelectItem {
	var items []*SelectItem
	for !p.failed() {
		items = append(items, p.parseSelectItem())
		if !p.match(token.COMMA) {
			break
		}
		if p.check(token.FROM) || p.check(token.EOF) || p.check(token.RPAREN) {
			break
		}
	}
	return items
}

func (p *Parser) parseSelectItem() *SelectItem {
	start := p.token.Pos
	item := &SelectItem{}

	expr := p.parseExpr()
	if star, ok := expr.(*StarExpr); ok {
		item.Star = true
		item.Qualifier = star.Qualifier
		p.parseStarModifiers(item)
		item.Loc = p.spanFrom(start)
		return item
	}

	item.Expr = expr
	item.Alias = p.parseAlias()
	item.Loc = p.spanFrom(start)
	return item
}

func (p *Parser) parseStarModifiers(item *SelectItem) {
	for !p.failed() {
		switch {
		case p.checkWord("exclude") || (p.check(token.EXCEPT) && p.checkPeek(token.LPAREN)):
			p.nextToken()
			if p.check(token.LPAREN) {
				item.Exclude = append(item.Exclude, p.parseIdentList()...)
			} else {
				item.Exclude = append(item.Exclude, p.parseName())
			}
		case p.checkWord("replace") && p.checkPeek(token.LPAREN):
			p.nextToken()
			p.nextToken()
			for !p.failed() {
				rstart := p.token.Pos
				r := &ReplaceItem{Expr: p.parseExpr()}
				p.expect(token.AS)
				r.Name = p.parseName()
				r.Loc = p.spanFrom(rstart)
				item.Replace = append(item.Replace, r)
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN)
		case p.checkWord("rename") && p.checkPeek(token.LPAREN):
			p.nextToken()
			p.nextToken()
			for !p.failed() {
				rstart := p.token.Pos
				r := &RenameItem{From: p.parseName()}
				p.expect(token.AS)
				r.To = p.parseName()
				r.Loc = p.spanFrom(rstart)
				item.Rename = append(item.Rename, r)
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN)
		default:
			return
		}
	}
}

// parseOrderList parses expr [ASC|DESC] [NULLS FIRST|LAST] {, ...}.
func (p *Parser) parseOrderList() []*OrderItem {
	var items []*OrderItem
	for !p.failed() {
		start := p.token.Pos
		item := &OrderItem{Expr: p.parseExpr()}
		if p.match(token.DESC) {
			item.Desc = true
		} else {
			p.match(token.ASC)
		}
		if p.matchWord("nulls") {
			first := p.matchWord("first")
			if !first && !p.matchWord("last") {
				p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "FIRST or LAST"))
			}
			item.NullsFirst = &first
		}
		item.Loc = p.spanFrom(start)
		items = append(items, item)
		if !p.match(token.COMMA) {
			break
		}
	}
	return items
}
