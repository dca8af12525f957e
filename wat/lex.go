package wat

import (
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokWord   // keywords, identifiers, numbers
	tokString // string literal with escapes decoded
)

type token struct {
	text string
	line int
	col  int
	kind tokenKind
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// lex tokenizes the entire source up front. WAT modules are small enough
// that a token slice is simpler than a streaming scanner.
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		if err := l.skipSpace(); err != nil {
			return nil, err
		}
		if l.pos >= len(l.src) {
			return toks, nil
		}
		switch c := l.src[l.pos]; {
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", line: l.line, col: l.col})
			l.advance()
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", line: l.line, col: l.col})
			l.advance()
		case c == '"':
			tok, err := l.scanString()
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
		case isWordByte(c):
			toks = append(toks, l.scanWord())
		default:
			return nil, &SyntaxError{Line: l.line, Col: l.col, Msg: "unexpected character " + quoteByte(c)}
		}
	}
}

func (l *lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

// skipSpace consumes whitespace, line comments and nested block comments.
func (l *lexer) skipSpace() error {
	for l.pos < len(l.src) {
		switch c := l.src[l.pos]; {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == ';' && l.peekAt(1) == ';':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		case c == '(' && l.peekAt(1) == ';':
			if err := l.skipBlockComment(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) skipBlockComment() error {
	startLine, startCol := l.line, l.col
	l.advance()
	l.advance()
	depth := 1
	for l.pos < len(l.src) {
		switch {
		case l.src[l.pos] == '(' && l.peekAt(1) == ';':
			depth++
			l.advance()
			l.advance()
		case l.src[l.pos] == ';' && l.peekAt(1) == ')':
			depth--
			l.advance()
			l.advance()
			if depth == 0 {
				return nil
			}
		default:
			l.advance()
		}
	}
	return &SyntaxError{Line: startLine, Col: startCol, Msg: "unterminated block comment"}
}

func (l *lexer) scanWord() token {
	tok := token{kind: tokWord, line: l.line, col: l.col}
	start := l.pos
	for l.pos < len(l.src) && isWordByte(l.src[l.pos]) {
		l.advance()
	}
	tok.text = l.src[start:l.pos]
	return tok
}

// scanString decodes a quoted literal. The result carries raw bytes, not
// necessarily valid UTF-8, since data segments may hold arbitrary octets.
func (l *lexer) scanString() (token, error) {
	tok := token{kind: tokString, line: l.line, col: l.col}
	l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return tok, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "unterminated string"}
		}
		c := l.src[l.pos]
		if c == '"' {
			l.advance()
			tok.text = sb.String()
			return tok, nil
		}
		if c == '\n' {
			return tok, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "newline in string"}
		}
		if c != '\\' {
			sb.WriteByte(c)
			l.advance()
			continue
		}
		l.advance()
		if l.pos >= len(l.src) {
			return tok, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "unterminated string"}
		}
		esc := l.src[l.pos]
		switch esc {
		case 'n':
			sb.WriteByte('\n')
			l.advance()
		case 't':
			sb.WriteByte('\t')
			l.advance()
		case 'r':
			sb.WriteByte('\r')
			l.advance()
		case '"', '\'', '\\':
			sb.WriteByte(esc)
			l.advance()
		case 'u':
			l.advance()
			r, err := l.scanUnicodeEscape()
			if err != nil {
				return tok, err
			}
			sb.WriteRune(r)
		default:
			hi, ok1 := hexVal(esc)
			lo, ok2 := hexVal(l.peekAt(1))
			if !ok1 || !ok2 {
				return tok, &SyntaxError{Line: l.line, Col: l.col, Msg: "invalid escape sequence"}
			}
			sb.WriteByte(byte(hi<<4 | lo))
			l.advance()
			l.advance()
		}
	}
}

func (l *lexer) scanUnicodeEscape() (rune, error) {
	if l.pos >= len(l.src) || l.src[l.pos] != '{' {
		return 0, &SyntaxError{Line: l.line, Col: l.col, Msg: "invalid \\u escape, want \\u{hex}"}
	}
	l.advance()
	var v rune
	digits := 0
	for l.pos < len(l.src) && l.src[l.pos] != '}' {
		d, ok := hexVal(l.src[l.pos])
		if !ok || digits >= 6 {
			return 0, &SyntaxError{Line: l.line, Col: l.col, Msg: "invalid \\u escape, want \\u{hex}"}
		}
		v = v<<4 | rune(d)
		digits++
		l.advance()
	}
	if l.pos >= len(l.src) || digits == 0 || !utf8.ValidRune(v) {
		return 0, &SyntaxError{Line: l.line, Col: l.col, Msg: "invalid \\u escape, want \\u{hex}"}
	}
	l.advance()
	return v, nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

func isWordByte(c byte) bool {
	switch c {
	case '(', ')', '"', ';':
		return false
	}
	return c > 0x20 && c < 0x7F
}

func quoteByte(c byte) string {
	if c > 0x20 && c < 0x7F {
		return "'" + string(c) + "'"
	}
	return "0x" + string("0123456789abcdef"[c>>4]) + string("0123456789abcdef"[c&0xF])
}
