package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbtlineage/pkg/token"
)

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)

	dialect *Dialect

	// Comments skipped during lexing, in source order.
	Comments []*token.Comment
	// Errors found while scanning (unterminated literals).
	Errors []error
}

// NewLexer creates a new Lexer for the given input using the ANSI dialect.
func NewLexer(input string) *Lexer {
	return NewLexerWithDialect(input, ANSI)
}

// NewLexerWithDialect creates a new dialect-aware Lexer for the given input.
func NewLexerWithDialect(input string, d *Dialect) *Lexer {
	if d == nil {
		d = ANSI
	}
	l := &Lexer{
		input:   input,
		line:    1,
		col:     0,
		dialect: d,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// peekCharN returns the character n positions after the current one.
func (l *Lexer) peekCharN(n int) byte {
	idx := l.pos + n
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *Lexer) currentPos() token.Position {
	return token.Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	tok := token.Token{Pos: l.currentPos()}

	if l.atEOF() {
		tok.Type = token.EOF
		tok.End = tok.Pos
		return tok
	}

	switch l.ch {
	case '+':
		l.single(&tok, token.PLUS)
	case '-':
		switch {
		case l.peekChar() == '>' && l.peekCharN(2) == '>':
			l.multi(&tok, token.DARROW, 3)
		case l.peekChar() == '>':
			l.multi(&tok, token.ARROW, 2)
		default:
			l.single(&tok, token.MINUS)
		}
	case '*':
		l.single(&tok, token.STAR)
	case '/':
		l.single(&tok, token.SLASH)
	case '%':
		l.single(&tok, token.PERCENT)
	case '=':
		switch l.peekChar() {
		case '>':
			l.multi(&tok, token.FATARROW, 2)
		case '=':
			l.multi(&tok, token.EQ, 2)
		default:
			l.single(&tok, token.EQ)
		}
	case '<':
		switch l.peekChar() {
		case '=':
			l.multi(&tok, token.LE, 2)
		case '>':
			l.multi(&tok, token.NE, 2)
		default:
			l.single(&tok, token.LT)
		}
	case '>':
		if l.peekChar() == '=' {
			l.multi(&tok, token.GE, 2)
		} else {
			l.single(&tok, token.GT)
		}
	case '!':
		if l.peekChar() == '=' {
			l.multi(&tok, token.NE, 2)
		} else {
			l.illegal(&tok)
		}
	case '|':
		if l.peekChar() == '|' {
			l.multi(&tok, token.DPIPE, 2)
		} else {
			l.single(&tok, token.PIPE)
		}
	case '&':
		l.single(&tok, token.AMP)
	case '^':
		l.single(&tok, token.CARET)
	case '~':
		l.single(&tok, token.TILDE)
	case '.':
		if isDigit(l.peekChar()) {
			tok.Type = token.NUMBER
			tok.Literal = l.readNumber()
		} else {
			l.single(&tok, token.DOT)
		}
	case ',':
		l.single(&tok, token.COMMA)
	case ';':
		l.single(&tok, token.SEMICOLON)
	case '(':
		l.single(&tok, token.LPAREN)
	case ')':
		l.single(&tok, token.RPAREN)
	case '[':
		if l.dialect.Brackets {
			tok.Type = token.IDENT
			tok.Quoted = true
			tok.Literal = l.readDelimited('[', ']', ErrUnterminatedIdent)
		} else {
			l.single(&tok, token.LBRACKET)
		}
	case ']':
		l.single(&tok, token.RBRACKET)
	case '{':
		l.single(&tok, token.LBRACE)
	case '}':
		l.single(&tok, token.RBRACE)
	case ':':
		if l.peekChar() == ':' {
			l.multi(&tok, token.DCOLON, 2)
		} else {
			l.single(&tok, token.COLON)
		}
	case '?':
		l.single(&tok, token.PARAM)
	case '$':
		if isDigit(l.peekChar()) {
			start := l.pos
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
			tok.Type = token.PARAM
			tok.Literal = l.input[start:l.pos]
		} else {
			l.illegal(&tok)
		}
	case '\'':
		tok.Type = token.STRING
		tok.Literal = l.readString('\'')
	case '"':
		if l.dialect.Backtick {
			// "..." is a string literal where backticks quote identifiers.
			tok.Type = token.STRING
			tok.Literal = l.readString('"')
		} else {
			tok.Type = token.IDENT
			tok.Quoted = true
			tok.Literal = l.readDelimited('"', '"', ErrUnterminatedIdent)
		}
	case '`':
		if l.dialect.Backtick {
			tok.Type = token.IDENT
			tok.Quoted = true
			tok.Literal = l.readDelimited('`', '`', ErrUnterminatedIdent)
		} else {
			l.illegal(&tok)
		}
	default:
		switch {
		case isIdentStart(l.ch):
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(strings.ToLower(tok.Literal))
		case isDigit(l.ch):
			tok.Type = token.NUMBER
			tok.Literal = l.readNumber()
		default:
			l.illegal(&tok)
		}
	}

	tok.End = l.currentPos()
	return tok
}

func (l *Lexer) single(tok *token.Token, t token.TokenType) {
	tok.Type = t
	tok.Literal = string(l.ch)
	l.readChar()
}

func (l *Lexer) multi(tok *token.Token, t token.TokenType, n int) {
	start := l.pos
	for i := 0; i < n; i++ {
		l.readChar()
	}
	tok.Type = t
	tok.Literal = l.input[start:l.pos]
}

func (l *Lexer) illegal(tok *token.Token) {
	tok.Type = token.ILLEGAL
	tok.Literal = string(l.ch)
	l.readChar()
}

// skipWhitespaceAndComments skips whitespace and collects comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for isSpace(l.ch) && !l.atEOF() {
			l.readChar()
		}

		if l.ch == '-' && l.peekChar() == '-' {
			l.collectLineComment()
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			l.collectBlockComment()
			continue
		}

		break
	}
}

func (l *Lexer) collectLineComment() {
	startPos := l.currentPos()
	startOffset := l.pos

	for l.ch != '\n' && !l.atEOF() {
		l.readChar()
	}

	l.Comments = append(l.Comments, &token.Comment{
		Kind: token.LineComment,
		Text: l.input[startOffset:l.pos],
		Span: token.Span{Start: startPos, End: l.currentPos()},
	})
}

func (l *Lexer) collectBlockComment() {
	startPos := l.currentPos()
	startOffset := l.pos

	l.readChar() // skip '/'
	l.readChar() // skip '*'

	for !l.atEOF() {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // skip '*'
			l.readChar() // skip '/'
			break
		}
		l.readChar()
	}

	l.Comments = append(l.Comments, &token.Comment{
		Kind: token.BlockComment,
		Text: l.input[startOffset:l.pos],
		Span: token.Span{Start: startPos, End: l.currentPos()},
	})
}

// readString reads a quoted string literal. A doubled quote is an escaped
// quote; backslash escapes are honored in dialects with backtick identifiers.
func (l *Lexer) readString(quote byte) string {
	startPos := l.currentPos()
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.atEOF() {
			l.Errors = append(l.Errors, &ParseError{Pos: startPos, Message: ErrUnterminatedString})
			return result.String()
		}
		switch {
		case l.ch == '\\' && l.dialect.Backtick && l.peekChar() != 0:
			l.readChar()
			result.WriteByte(l.ch)
			l.readChar()
		case l.ch == quote && l.peekChar() == quote:
			result.WriteByte(quote)
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar() // skip closing quote
			return result.String()
		default:
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readDelimited reads a quoted identifier such as "col""name", `col` or [col].
func (l *Lexer) readDelimited(open, closing byte, msg string) string {
	startPos := l.currentPos()
	l.readChar() // skip opening delimiter

	var result strings.Builder
	for {
		if l.atEOF() {
			l.Errors = append(l.Errors, &ParseError{Pos: startPos, Message: msg})
			return result.String()
		}
		if l.ch == closing {
			if open == closing && l.peekChar() == closing {
				result.WriteByte(closing)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return result.String()
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for !l.atEOF() && (isIdentStart(l.ch) || isDigit(l.ch) || l.ch == '$') {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	} else if l.ch == '.' && !isIdentStart(l.peekChar()) {
		// 1. is a valid decimal
		l.readChar()
	}

	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) ||
		((l.peekChar() == '+' || l.peekChar() == '-') && isDigit(l.peekCharN(2)))) {
		l.readChar() // skip 'e' or 'E'
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return l.input[start:l.pos]
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

// isIdentStart treats any non-ASCII byte as a letter so UTF-8 identifiers
// survive intact.
func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with EOF.
func Tokenize(input string) []token.Token {
	l := NewLexer(input)
	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	return tokens
}

// StripComments removes -- and /* */ comments that lie outside string
// literals and quoted identifiers, then trims surrounding whitespace.
func StripComments(sql string) string {
	l := NewLexer(sql)
	for l.NextToken().Type != token.EOF {
	}
	if len(l.Comments) == 0 {
		return strings.TrimSpace(sql)
	}

	var b strings.Builder
	last := 0
	for _, c := range l.Comments {
		b.WriteString(sql[last:c.Span.Start.Offset])
		if c.Kind == token.BlockComment {
			b.WriteByte(' ')
		}
		last = c.Span.End.Offset
	}
	b.WriteString(sql[last:])
	return strings.TrimSpace(b.String())
}

func (l *Lexer) String() string {
	return fmt.Sprintf("Lexer(%s, line %d)", l.dialect.Name, l.line)
}
