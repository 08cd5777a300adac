package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for PHP source
// ---------------------------------------------------------------------------

// Lexer tokenizes PHP source. Text outside <?php ... ?> is returned as
// inline HTML tokens.
type Lexer struct {
	input     string
	pos       int  // current position in input
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
	inCode    bool // inside <?php ... ?>
	pending   []Token
}

// NewLexer creates a lexer for a whole file, starting in HTML mode.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// newCodeLexer creates a lexer that starts inside a code block. It is used
// for expressions embedded in double-quoted strings.
func newCodeLexer(input string, at Position) *Lexer {
	return &Lexer{
		input:     input,
		line:      at.Line,
		lineStart: -at.Column + 1,
		inCode:    true,
	}
}

func (l *Lexer) peek(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) advance(n int) {
	for ; n > 0 && l.pos < len(l.input); n-- {
		if l.input[l.pos] == '\n' {
			l.line++
			l.lineStart = l.pos + 1
		}
		l.pos++
	}
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

func (l *Lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) errorToken(pos Position, format string, args ...any) Token {
	l.pos = len(l.input)
	return Token{Type: TokenError, Literal: fmt.Sprintf(format, args...), Pos: pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		t := l.pending[0]
		l.pending = l.pending[1:]
		return t
	}
	if !l.inCode {
		return l.inlineHTML()
	}
	if tok, ok := l.skipWhitespaceAndComments(); ok {
		return tok
	}
	pos := l.position()
	c := l.peek(0)
	switch {
	case c == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case c == '?' && l.peek(1) == '>':
		l.advance(2)
		if l.peek(0) == '\n' {
			l.advance(1)
		} else if l.peek(0) == '\r' && l.peek(1) == '\n' {
			l.advance(2)
		}
		l.inCode = false
		// ?> ends a statement.
		return Token{Type: TokenSemicolon, Literal: "?>", Pos: pos}
	case c == '$':
		if isIdentStart(l.peek(1)) {
			l.advance(1)
			return Token{Type: TokenVariable, Literal: l.readIdent(), Pos: pos}
		}
		l.advance(1)
		return Token{Type: TokenDollar, Literal: "$", Pos: pos}
	case isIdentStart(c):
		word := l.readIdent()
		if t, ok := reservedWords[strings.ToLower(word)]; ok {
			return Token{Type: t, Literal: word, Pos: pos}
		}
		return Token{Type: TokenIdentifier, Literal: word, Pos: pos}
	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		return l.readNumber()
	case c == '\'':
		return l.readSingleQuoted()
	case c == '"':
		return l.readDoubleQuoted()
	case c == '(':
		if tok, ok := l.readCast(); ok {
			return tok
		}
	}
	return l.readOperator()
}

// inlineHTML returns the text up to the next open tag.
func (l *Lexer) inlineHTML() Token {
	pos := l.position()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: pos}
	}
	rest := l.input[l.pos:]
	idx := strings.Index(rest, "<?")
	if idx < 0 {
		l.advance(len(rest))
		return Token{Type: TokenInlineHTML, Literal: rest, Pos: pos}
	}
	text := rest[:idx]
	l.advance(idx)
	tagPos := l.position()
	var echo bool
	switch {
	case l.hasPrefix("<?php") || l.hasPrefix("<?PHP"):
		l.advance(5)
	case l.hasPrefix("<?="):
		l.advance(3)
		echo = true
	default:
		l.advance(2)
	}
	l.inCode = true
	if echo {
		l.pending = append(l.pending, Token{Type: TokenEcho, Literal: "<?=", Pos: tagPos})
	}
	if text == "" {
		return l.NextToken()
	}
	return Token{Type: TokenInlineHTML, Literal: text, Pos: pos}
}

// skipWhitespaceAndComments skips blanks and comments. A line comment ends
// before a close tag.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for l.pos < len(l.input) {
		c := l.peek(0)
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance(1)
		case c == '#' || (c == '/' && l.peek(1) == '/'):
			for l.pos < len(l.input) && l.peek(0) != '\n' && !l.hasPrefix("?>") {
				l.advance(1)
			}
		case c == '/' && l.peek(1) == '*':
			pos := l.position()
			end := strings.Index(l.input[l.pos+2:], "*/")
			if end < 0 {
				return l.errorToken(pos, "unterminated comment"), true
			}
			l.advance(end + 4)
		default:
			return Token{}, false
		}
	}
	return Token{}, false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.advance(1)
	}
	return l.input[start:l.pos]
}

// readNumber scans an integer or float literal. The literal is returned
// unconverted; the parser turns it into a value.
func (l *Lexer) readNumber() Token {
	pos := l.position()
	start := l.pos
	if l.peek(0) == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') && isHexDigit(l.peek(2)) {
		l.advance(2)
		for isHexDigit(l.peek(0)) {
			l.advance(1)
		}
		return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
	}
	if l.peek(0) == '0' && (l.peek(1) == 'b' || l.peek(1) == 'B') && (l.peek(2) == '0' || l.peek(2) == '1') {
		l.advance(2)
		for l.peek(0) == '0' || l.peek(0) == '1' {
			l.advance(1)
		}
		return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
	}
	typ := TokenInteger
	for isDigit(l.peek(0)) {
		l.advance(1)
	}
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		typ = TokenFloat
		l.advance(1)
		for isDigit(l.peek(0)) {
			l.advance(1)
		}
	}
	if e := l.peek(0); e == 'e' || e == 'E' {
		n := 1
		if s := l.peek(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peek(n)) {
			typ = TokenFloat
			l.advance(n)
			for isDigit(l.peek(0)) {
				l.advance(1)
			}
		}
	}
	return Token{Type: typ, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readSingleQuoted() Token {
	pos := l.position()
	l.advance(1)
	var b strings.Builder
	for {
		if l.pos >= len(l.input) {
			return l.errorToken(pos, "unterminated string")
		}
		c := l.peek(0)
		if c == '\'' {
			l.advance(1)
			break
		}
		if c == '\\' && (l.peek(1) == '\'' || l.peek(1) == '\\') {
			b.WriteByte(l.peek(1))
			l.advance(2)
			continue
		}
		b.WriteByte(c)
		l.advance(1)
	}
	return Token{Type: TokenString, Literal: b.String(), Pos: pos}
}

// readDoubleQuoted decodes escapes and splits out interpolated variables.
// A string without interpolation is a plain string token.
func (l *Lexer) readDoubleQuoted() Token {
	pos := l.position()
	l.advance(1)
	var (
		parts []TemplatePart
		b     strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, TemplatePart{Text: b.String()})
			b.Reset()
		}
	}
	for {
		if l.pos >= len(l.input) {
			return l.errorToken(pos, "unterminated string")
		}
		c := l.peek(0)
		switch {
		case c == '"':
			l.advance(1)
			flush()
			if len(parts) == 0 {
				return Token{Type: TokenString, Literal: "", Pos: pos}
			}
			if len(parts) == 1 && parts[0].Expr == "" {
				return Token{Type: TokenString, Literal: parts[0].Text, Pos: pos}
			}
			return Token{Type: TokenTemplate, Parts: parts, Pos: pos}
		case c == '\\':
			l.readEscape(&b)
		case c == '$' && isIdentStart(l.peek(1)):
			flush()
			parts = append(parts, l.readSimpleInterpolation())
		case c == '{' && l.peek(1) == '$':
			flush()
			p, err := l.readBraced(1)
			if err != nil {
				return l.errorToken(pos, "%v", err)
			}
			parts = append(parts, p)
		case c == '$' && l.peek(1) == '{':
			flush()
			p, err := l.readBraced(2)
			if err != nil {
				return l.errorToken(pos, "%v", err)
			}
			// ${name} names a variable; ${expr} is a variable variable.
			if isSimpleName(p.Expr) {
				p.Expr = "$" + p.Expr
			} else {
				p.Expr = "${" + p.Expr + "}"
			}
			parts = append(parts, p)
		default:
			b.WriteByte(c)
			l.advance(1)
		}
	}
}

func isSimpleName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func (l *Lexer) readEscape(b *strings.Builder) {
	c := l.peek(1)
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'v':
		b.WriteByte('\v')
	case 'f':
		b.WriteByte('\f')
	case 'e':
		b.WriteByte(0x1b)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n, i := 0, 1
		for ; i <= 3 && l.peek(i) >= '0' && l.peek(i) <= '7'; i++ {
			n = n*8 + int(l.peek(i)-'0')
		}
		b.WriteByte(byte(n))
		l.advance(i)
		return
	case 'x':
		if isHexDigit(l.peek(2)) {
			n, i := 0, 2
			for ; i <= 3 && isHexDigit(l.peek(i)); i++ {
				n = n*16 + hexValue(l.peek(i))
			}
			b.WriteByte(byte(n))
			l.advance(i)
			return
		}
		b.WriteString(`\x`)
	case '\\', '"', '$':
		b.WriteByte(c)
	default:
		b.WriteByte('\\')
		l.advance(1)
		return
	}
	l.advance(2)
}

func hexValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}

// readSimpleInterpolation reads "$name" optionally followed by one
// "[index]" where index is a bare word, a number or a variable.
func (l *Lexer) readSimpleInterpolation() TemplatePart {
	pos := l.position()
	l.advance(1)
	name := l.readIdent()
	expr := "$" + name
	if l.peek(0) == '[' {
		save, saveLine, saveStart := l.pos, l.line, l.lineStart
		l.advance(1)
		var idx string
		switch c := l.peek(0); {
		case c == '$' && isIdentStart(l.peek(1)):
			l.advance(1)
			idx = "$" + l.readIdent()
		case isDigit(c) || c == '-' && isDigit(l.peek(1)):
			start := l.pos
			l.advance(1)
			for isDigit(l.peek(0)) {
				l.advance(1)
			}
			idx = l.input[start:l.pos]
		case isIdentStart(c):
			idx = "'" + l.readIdent() + "'"
		}
		if idx != "" && l.peek(0) == ']' {
			l.advance(1)
			expr += "[" + idx + "]"
		} else {
			l.pos, l.line, l.lineStart = save, saveLine, saveStart
		}
	}
	return TemplatePart{Expr: expr, Pos: pos}
}

// readBraced reads a {...} group skipping skip opening bytes, balancing
// nested braces and quotes.
func (l *Lexer) readBraced(skip int) (TemplatePart, error) {
	pos := l.position()
	l.advance(skip)
	start := l.pos
	depth := 1
	for l.pos < len(l.input) {
		switch c := l.peek(0); c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				expr := l.input[start:l.pos]
				l.advance(1)
				return TemplatePart{Expr: expr, Pos: pos}, nil
			}
		case '\'', '"':
			l.advance(1)
			for l.pos < len(l.input) && l.peek(0) != c {
				if l.peek(0) == '\\' {
					l.advance(1)
				}
				l.advance(1)
			}
		}
		l.advance(1)
	}
	return TemplatePart{}, fmt.Errorf("unterminated interpolation")
}

// readCast recognizes "(type)" casts.
func (l *Lexer) readCast() (Token, bool) {
	pos := l.position()
	i := 1
	for l.peek(i) == ' ' || l.peek(i) == '\t' {
		i++
	}
	start := i
	for isIdentChar(l.peek(i)) {
		i++
	}
	word := strings.ToLower(l.input[min(l.pos+start, len(l.input)):min(l.pos+i, len(l.input))])
	for l.peek(i) == ' ' || l.peek(i) == '\t' {
		i++
	}
	name, ok := castTypes[word]
	if !ok || l.peek(i) != ')' {
		return Token{}, false
	}
	l.advance(i + 1)
	return Token{Type: TokenCast, Literal: name, Pos: pos}, true
}

// operators lists punctuation longest first.
var operators = []struct {
	text string
	typ  TokenType
}{
	{"===", TokenIdentical},
	{"!==", TokenNotIdentical},
	{"<<=", TokenShlAssign},
	{">>=", TokenShrAssign},
	{"??=", TokenCoalesceAssign},
	{"==", TokenEq},
	{"!=", TokenNe},
	{"<>", TokenNe},
	{"<=", TokenLe},
	{">=", TokenGe},
	{"&&", TokenAndAnd},
	{"||", TokenOrOr},
	{"??", TokenCoalesce},
	{"++", TokenInc},
	{"--", TokenDec},
	{"+=", TokenPlusAssign},
	{"-=", TokenMinusAssign},
	{"*=", TokenMulAssign},
	{"/=", TokenDivAssign},
	{"%=", TokenModAssign},
	{".=", TokenConcatAssign},
	{"&=", TokenAndAssign},
	{"|=", TokenOrAssign},
	{"^=", TokenXorAssign},
	{"<<", TokenShl},
	{">>", TokenShr},
	{"=>", TokenArrow},
	{"=", TokenAssign},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{".", TokenDot},
	{"&", TokenAmp},
	{"|", TokenPipe},
	{"^", TokenCaret},
	{"~", TokenTilde},
	{"!", TokenBang},
	{"<", TokenLt},
	{">", TokenGt},
	{"?", TokenQuestion},
	{":", TokenColon},
	{";", TokenSemicolon},
	{",", TokenComma},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{"@", TokenAt},
}

func (l *Lexer) readOperator() Token {
	pos := l.position()
	for _, op := range operators {
		if l.hasPrefix(op.text) {
			l.advance(len(op.text))
			return Token{Type: op.typ, Literal: op.text, Pos: pos}
		}
	}
	return l.errorToken(pos, "unexpected character %q", l.peek(0))
}

// Tokenize returns every token of input up to and including EOF, or the
// first error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		t := l.NextToken()
		tokens = append(tokens, t)
		if t.Type == TokenEOF || t.Type == TokenError {
			return tokens
		}
	}
}
