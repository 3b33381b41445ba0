// Package lexer turns Strata source text into a token stream.
//
// The lexer is stateless beyond a byte cursor: it holds no lookahead buffer
// of its own, and the caller (the parser) advances it one token at a time
// via Next. Whitespace and `//` line comments are skipped transparently.
package lexer

import (
	"strconv"
	"strings"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/token"
)

// Lexer scans a byte sequence into tokens.
type Lexer struct {
	src []byte
	pos int
}

// New creates a Lexer over src.
func New(src string) *Lexer {
	return &Lexer{src: []byte(src)}
}

func (l *Lexer) bump() (byte, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	b := l.src[l.pos]
	l.pos++
	return b, true
}

func (l *Lexer) peek() (byte, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *Lexer) peek2() (byte, bool) {
	if l.pos+1 >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos+1], true
}

func (l *Lexer) span(start int) ast.Span {
	return ast.Span{Start: start, End: l.pos}
}

func (l *Lexer) skipWsAndComments() {
	for {
		for {
			b, ok := l.peek()
			if !ok || !isSpace(b) {
				break
			}
			l.bump()
		}
		b1, ok1 := l.peek()
		b2, ok2 := l.peek2()
		if ok1 && b1 == '/' && ok2 && b2 == '/' {
			l.bump()
			l.bump()
			for {
				b, ok := l.peek()
				if !ok || b == '\n' {
					break
				}
				l.bump()
			}
			continue
		}
		break
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }

// Next produces the next token, consuming it from the stream. At end of
// input it returns an EOF token forever.
func (l *Lexer) Next() token.Token {
	l.skipWsAndComments()
	start := l.pos
	b, ok := l.bump()
	if !ok {
		return token.Token{Kind: token.EOF, Span: l.span(start)}
	}

	// two-char operators
	if b == '&' {
		if nb, ok := l.peek(); ok && nb == '&' {
			l.bump()
			return token.Token{Kind: token.AndAnd, Span: l.span(start)}
		}
		return token.Token{Kind: token.Amp, Span: l.span(start)}
	}
	if b == '|' {
		if nb, ok := l.peek(); ok && nb == '|' {
			l.bump()
			return token.Token{Kind: token.OrOr, Span: l.span(start)}
		}
		return l.errorTok(start, "unknown character '|'")
	}
	if b == '=' {
		if nb, ok := l.peek(); ok && nb == '=' {
			l.bump()
			return token.Token{Kind: token.EqEq, Span: l.span(start)}
		}
		if nb, ok := l.peek(); ok && nb == '>' {
			l.bump()
			return token.Token{Kind: token.FatArrow, Span: l.span(start)}
		}
		return token.Token{Kind: token.Assign, Span: l.span(start)}
	}
	if b == '!' {
		if nb, ok := l.peek(); ok && nb == '=' {
			l.bump()
			return token.Token{Kind: token.BangEq, Span: l.span(start)}
		}
		return token.Token{Kind: token.Bang, Span: l.span(start)}
	}
	if b == '<' {
		if nb, ok := l.peek(); ok && nb == '=' {
			l.bump()
			return token.Token{Kind: token.Le, Span: l.span(start)}
		}
		return token.Token{Kind: token.Lt, Span: l.span(start)}
	}
	if b == '>' {
		if nb, ok := l.peek(); ok && nb == '=' {
			l.bump()
			return token.Token{Kind: token.Ge, Span: l.span(start)}
		}
		return token.Token{Kind: token.Gt, Span: l.span(start)}
	}
	if b == '-' {
		if nb, ok := l.peek(); ok && nb == '>' {
			l.bump()
			return token.Token{Kind: token.Arrow, Span: l.span(start)}
		}
		return token.Token{Kind: token.Minus, Span: l.span(start)}
	}
	if b == ':' {
		if nb, ok := l.peek(); ok && nb == ':' {
			l.bump()
			return token.Token{Kind: token.ColonColon, Span: l.span(start)}
		}
		return token.Token{Kind: token.Colon, Span: l.span(start)}
	}

	switch b {
	case '(':
		return token.Token{Kind: token.LParen, Span: l.span(start)}
	case ')':
		return token.Token{Kind: token.RParen, Span: l.span(start)}
	case '{':
		return token.Token{Kind: token.LBrace, Span: l.span(start)}
	case '}':
		return token.Token{Kind: token.RBrace, Span: l.span(start)}
	case ',':
		return token.Token{Kind: token.Comma, Span: l.span(start)}
	case ';':
		return token.Token{Kind: token.Semicolon, Span: l.span(start)}
	case '+':
		return token.Token{Kind: token.Plus, Span: l.span(start)}
	case '*':
		return token.Token{Kind: token.Star, Span: l.span(start)}
	case '/':
		return token.Token{Kind: token.Slash, Span: l.span(start)}
	}

	if b == '"' {
		return l.lexString(start)
	}

	if isDigit(b) {
		return l.lexNumber(start)
	}

	if isAlpha(b) {
		return l.lexIdent(start)
	}

	return l.errorTok(start, "unknown character '"+string(rune(b))+"'")
}

func (l *Lexer) errorTok(start int, msg string) token.Token {
	return token.Token{Kind: token.Error, Text: msg, Span: l.span(start)}
}

func (l *Lexer) lexString(start int) token.Token {
	var sb strings.Builder
	terminated := false
	for {
		b, ok := l.bump()
		if !ok {
			break
		}
		if b == '"' {
			terminated = true
			break
		}
		if b == '\\' {
			esc, ok := l.bump()
			if !ok {
				break
			}
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(esc)
			}
			continue
		}
		sb.WriteByte(b)
	}
	if !terminated {
		return l.errorTok(start, "unterminated string literal")
	}
	return token.Token{Kind: token.String, StrVal: sb.String(), Span: l.span(start)}
}

func (l *Lexer) lexNumber(start int) token.Token {
	var sb strings.Builder
	// first digit already consumed into position start; rewind view via src slice
	sb.WriteByte(l.src[start])
	dot := false
	for {
		b, ok := l.peek()
		if !ok {
			break
		}
		if isDigit(b) {
			sb.WriteByte(b)
			l.bump()
		} else if b == '.' && !dot {
			// Only consume '.' as part of the number if followed by a digit
			// (floats require at least one digit on both sides of '.').
			if nb, ok2 := l.peek2(); ok2 && isDigit(nb) {
				dot = true
				sb.WriteByte('.')
				l.bump()
			} else {
				break
			}
		} else {
			break
		}
	}
	if dot {
		f, err := strconv.ParseFloat(sb.String(), 64)
		if err != nil {
			return l.errorTok(start, "invalid float literal")
		}
		return token.Token{Kind: token.Float, FltVal: f, Span: l.span(start)}
	}
	n, err := strconv.ParseInt(sb.String(), 10, 64)
	if err != nil {
		return l.errorTok(start, "integer literal out of range")
	}
	return token.Token{Kind: token.Int, IntVal: n, Span: l.span(start)}
}

func (l *Lexer) lexIdent(start int) token.Token {
	for {
		b, ok := l.peek()
		if !ok || !isAlnum(b) {
			break
		}
		l.bump()
	}
	text := string(l.src[start:l.pos])
	kind := token.LookupIdent(text)
	if kind == token.Ident {
		return token.Token{Kind: token.Ident, Text: text, Span: l.span(start)}
	}
	return token.Token{Kind: kind, Text: text, Span: l.span(start)}
}
