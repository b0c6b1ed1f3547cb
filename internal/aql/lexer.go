package aql

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/makr-code/themis/internal/themiserr"
)

// Lexer turns AQL source text into a token stream. Identifiers are
// letters/digits/underscore; string literals are double- or
// single-quoted with backslash escapes; `//` runs to end of line.
type Lexer struct {
	src    string
	pos    int
	line   int
	column int
}

// NewLexer constructs a Lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, pos: 0, line: 1, column: 1}
}

func (l *Lexer) peekByte() (byte, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *Lexer) advance() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r, true
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		b, ok := l.peekByte()
		if !ok {
			return
		}
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			l.advance()
			continue
		}
		if b == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/' {
			for {
				c, ok := l.peekByte()
				if !ok || c == '\n' {
					break
				}
				l.advance()
			}
			continue
		}
		return
	}
}

// Next returns the next token in the stream, or a TokEOF token once the
// source is exhausted.
func (l *Lexer) Next() (Token, error) {
	l.skipSpaceAndComments()
	line, col := l.line, l.column
	b, ok := l.peekByte()
	if !ok {
		return Token{Kind: TokEOF, Line: line, Column: col}, nil
	}

	switch {
	case b == '"' || b == '\'':
		return l.lexString(line, col)
	case b >= '0' && b <= '9':
		return l.lexNumber(line, col)
	case isIdentStart(rune(b)):
		return l.lexIdent(line, col)
	default:
		return l.lexPunct(line, col)
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentCont(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *Lexer) lexIdent(line, col int) (Token, error) {
	start := l.pos
	for {
		b, ok := l.peekByte()
		if !ok || !isIdentCont(rune(b)) {
			break
		}
		l.advance()
	}
	text := l.src[start:l.pos]
	upper := strings.ToUpper(text)
	if keywords[upper] {
		return Token{Kind: TokKeyword, Text: upper, Line: line, Column: col}, nil
	}
	return Token{Kind: TokIdent, Text: text, Line: line, Column: col}, nil
}

func (l *Lexer) lexNumber(line, col int) (Token, error) {
	start := l.pos
	for {
		b, ok := l.peekByte()
		if !ok || !(b >= '0' && b <= '9') {
			break
		}
		l.advance()
	}
	if b, ok := l.peekByte(); ok && b == '.' && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		l.advance()
		for {
			b, ok := l.peekByte()
			if !ok || !(b >= '0' && b <= '9') {
				break
			}
			l.advance()
		}
	}
	if b, ok := l.peekByte(); ok && (b == 'e' || b == 'E') {
		save := l.pos
		l.advance()
		if b2, ok := l.peekByte(); ok && (b2 == '+' || b2 == '-') {
			l.advance()
		}
		digits := 0
		for {
			b, ok := l.peekByte()
			if !ok || !(b >= '0' && b <= '9') {
				break
			}
			l.advance()
			digits++
		}
		if digits == 0 {
			l.pos = save
		}
	}
	return Token{Kind: TokNumber, Text: l.src[start:l.pos], Line: line, Column: col}, nil
}

func (l *Lexer) lexString(line, col int) (Token, error) {
	quote, _ := l.advance()
	var sb strings.Builder
	for {
		r, ok := l.advance()
		if !ok {
			return Token{}, themiserr.AtPosition(themiserr.KindParse, line, col, "unterminated string literal")
		}
		if r == rune(quote) {
			break
		}
		if r == '\\' {
			esc, ok := l.advance()
			if !ok {
				return Token{}, themiserr.AtPosition(themiserr.KindParse, line, col, "unterminated string literal")
			}
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '"', '\'':
				sb.WriteRune(esc)
			default:
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(r)
	}
	return Token{Kind: TokString, Text: sb.String(), Line: line, Column: col}, nil
}

var punctuation = []string{
	"==", "!=", "<=", ">=", "&&", "||", "..",
	"(", ")", "[", "]", "{", "}", ",", ".", ":", "=", "<", ">", "+", "-", "*", "/", "%", "!", "?",
}

func (l *Lexer) lexPunct(line, col int) (Token, error) {
	for _, p := range punctuation {
		if strings.HasPrefix(l.src[l.pos:], p) {
			for range p {
				l.advance()
			}
			return Token{Kind: TokPunct, Text: p, Line: line, Column: col}, nil
		}
	}
	r, _ := l.advance()
	return Token{}, themiserr.AtPosition(themiserr.KindParse, line, col, "unexpected character %q", r)
}

// Tokenize drains the lexer into a slice, ending with a TokEOF token.
func Tokenize(src string) ([]Token, error) {
	lx := NewLexer(src)
	var out []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == TokEOF {
			return out, nil
		}
	}
}
