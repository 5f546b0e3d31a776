package parser

// Window grammar:
//
//	window_clause → WINDOW name AS window_spec {, name AS window_spec}
//	window_spec   → "(" [base_name] [PARTITION BY expr_list] [ORDER BY order_list] [frame] ")"
//	frame         → (ROWS | RANGE | GROUPS) (bound | BETWEEN bound AND bound)
//	                [EXCLUDE (CURRENT ROW | GROUP | TIES | NO OTHERS)]
//	bound         → UNBOUNDED (PRECEDING | FOLLOWING) | CURRENT ROW | expr (PRECEDING | FOLLOWING)

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// parseWindowClause parses WINDOW w AS (...), ...
func (p *Parser) parseWindowClause() []*NamedWindow {
	p.expect(token.WINDOW)
	var windows []*NamedWindow

	for !p.failed() {
		start := p.token.Pos
		w := &NamedWindow{Name: p.parseIdent()}
		p.expect(token.AS)
		w.Spec = p.parseWindowSpec()
		w.Loc = p.spanFrom(start)
		windows = append(windows, w)
		if !p.match(token.COMMA) {
			break
		}
	}
	return windows
}

// parseWindowSpec parses a parenthesized window specification.
func (p *Parser) parseWindowSpec() *WindowSpec {
	start := p.token.Pos
	spec := &WindowSpec{}
	p.expect(token.LPAREN)

	if p.check(token.IDENT) && !p.checkWord("partition") && !isFrameUnit(p.token) {
		spec.Name = p.parseIdent()
	}

	if p.checkWord("partition") && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		spec.PartitionBy = p.parseExprList()
	}

	if p.check(token.ORDER) && p.checkPeek(token.BY) {
		p.nextToken()
		p.nextToken()
		spec.OrderBy = p.parseOrderList()
	}

	if isFrameUnit(p.token) {
		spec.Frame = p.parseFrame()
	}

	p.expect(token.RPAREN)
	spec.Loc = p.spanFrom(start)
	return spec
}

func isFrameUnit(tok token.Token) bool {
	return isWord(tok, "rows") || isWord(tok, "range") || isWord(tok, "groups")
}

func (p *Parser) parseFrame() *FrameSpec {
	start := p.token.Pos
	frame := &FrameSpec{Unit: strings.ToUpper(p.token.Literal)}
	p.nextToken()

	if p.match(token.BETWEEN) {
		frame.Start = p.parseFrameBound()
		p.expect(token.AND)
		frame.End = p.parseFrameBound()
	} else {
		frame.Start = p.parseFrameBound()
	}

	if p.matchWord("exclude") {
		switch {
		case p.matchWord("current"):
			p.matchWord("row")
		case p.match(token.GROUP), p.matchWord("ties"):
		case p.matchWord("no"):
			p.matchWord("others")
		default:
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "CURRENT ROW, GROUP, TIES or NO OTHERS"))
		}
	}

	frame.Loc = p.spanFrom(start)
	return frame
}

func (p *Parser) parseFrameBound() *FrameBound {
	start := p.token.Pos
	b := &FrameBound{}

	switch {
	case p.matchWord("unbounded"):
		b.Kind = "UNBOUNDED " + p.parseBoundDirection()
	case p.checkWord("current") && isWord(p.peek, "row"):
		p.nextToken()
		p.nextToken()
		b.Kind = "CURRENT ROW"
	default:
		b.Offset = p.parseExprPrec(precAddition)
		b.Kind = p.parseBoundDirection()
	}

	b.Loc = p.spanFrom(start)
	return b
}

func (p *Parser) parseBoundDirection() string {
	switch {
	case p.matchWord("preceding"):
		return "PRECEDING"
	case p.matchWord("following"):
		return "FOLLOWING"
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "PRECEDING or FOLLOWING"))
	return ""
}
