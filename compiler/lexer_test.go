package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `<?php ( ) [ ] { } ; , => ? : = .= ??= === !== <> ** ++ -- @`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenArrow, "=>"},
		{TokenQuestion, "?"},
		{TokenColon, ":"},
		{TokenAssign, "="},
		{TokenConcatAssign, ".="},
		{TokenCoalesceAssign, "??="},
		{TokenIdentical, "==="},
		{TokenNotIdentical, "!=="},
		{TokenNe, "<>"},
		{TokenStar, "*"},
		{TokenStar, "*"},
		{TokenInc, "++"},
		{TokenDec, "--"},
		{TokenAt, "@"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"0x1F", TokenInteger, "0x1F"},
		{"0b101", TokenInteger, "0b101"},
		{"0755", TokenInteger, "0755"},
		{"3.14", TokenFloat, "3.14"},
		{".5", TokenFloat, ".5"},
		{"1e10", TokenFloat, "1e10"},
		{"1.5E-3", TokenFloat, "1.5E-3"},
	}

	for _, tc := range tests {
		l := NewLexer("<?php " + tc.input)
		tok := l.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`'it\'s'`, "it's"},
		{`'a\nb'`, `a\nb`},
		{`'back\\slash'`, `back\slash`},
		{`"tab\there"`, "tab\there"},
		{`"quote\""`, `quote"`},
		{`"\x41\101"`, "AA"},
		{`"\$notvar"`, "$notvar"},
		{`"unknown \q"`, `unknown \q`},
		{`""`, ""},
	}

	for _, tc := range tests {
		l := NewLexer("<?php " + tc.input)
		tok := l.NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%s): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerInterpolation(t *testing.T) {
	tests := []struct {
		input string
		parts []TemplatePart
	}{
		{`"hi $name!"`, []TemplatePart{{Text: "hi "}, {Expr: "$name"}, {Text: "!"}}},
		{`"$a[0]"`, []TemplatePart{{Expr: "$a[0]"}}},
		{`"$a[key]"`, []TemplatePart{{Expr: "$a['key']"}}},
		{`"$a[$i]"`, []TemplatePart{{Expr: "$a[$i]"}}},
		{`"{$a['x'][1]}"`, []TemplatePart{{Expr: "$a['x'][1]"}}},
		{`"${name}s"`, []TemplatePart{{Expr: "$name"}, {Text: "s"}}},
		{`"${'na' . 'me'}"`, []TemplatePart{{Expr: "${'na' . 'me'}"}}},
		{`"$a["`, []TemplatePart{{Expr: "$a"}, {Text: "["}}},
	}

	for _, tc := range tests {
		l := NewLexer("<?php " + tc.input)
		tok := l.NextToken()
		if tok.Type != TokenTemplate {
			t.Errorf("Lexer(%s): type = %v, want TEMPLATE", tc.input, tok.Type)
			continue
		}
		if len(tok.Parts) != len(tc.parts) {
			t.Errorf("Lexer(%s): %d parts, want %d", tc.input, len(tok.Parts), len(tc.parts))
			continue
		}
		for i, p := range tc.parts {
			if tok.Parts[i].Text != p.Text || tok.Parts[i].Expr != p.Expr {
				t.Errorf("Lexer(%s): part[%d] = %+v, want %+v", tc.input, i, tok.Parts[i], p)
			}
		}
	}
}

func TestLexerKeywordsAreCaseInsensitive(t *testing.T) {
	l := NewLexer("<?php ECHO Foreach aS ELSEIF strlen")
	want := []TokenType{TokenEcho, TokenForeach, TokenAs, TokenElseif, TokenIdentifier}
	for i, typ := range want {
		tok := l.NextToken()
		if tok.Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tok.Type, typ)
		}
	}
}

func TestLexerVariables(t *testing.T) {
	l := NewLexer("<?php $x $$y ${")
	checks := []struct {
		typ TokenType
		lit string
	}{
		{TokenVariable, "x"},
		{TokenDollar, "$"},
		{TokenVariable, "y"},
		{TokenDollar, "$"},
		{TokenLBrace, "{"},
	}
	for i, c := range checks {
		tok := l.NextToken()
		if tok.Type != c.typ || tok.Literal != c.lit {
			t.Errorf("token[%d] = %v, want %v(%q)", i, tok, c.typ, c.lit)
		}
	}
}

func TestLexerCasts(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(int)", "int"},
		{"(integer)", "int"},
		{"( string )", "string"},
		{"(BOOL)", "bool"},
		{"(double)", "float"},
		{"(array)", "array"},
	}
	for _, tc := range tests {
		tok := NewLexer("<?php " + tc.input).NextToken()
		if tok.Type != TokenCast || tok.Literal != tc.want {
			t.Errorf("Lexer(%q) = %v, want CAST(%q)", tc.input, tok, tc.want)
		}
	}

	// Not a cast: a parenthesized constant.
	tok := NewLexer("<?php (FOO)").NextToken()
	if tok.Type != TokenLParen {
		t.Errorf("(FOO) lexed as %v", tok)
	}
}

func TestLexerInlineHTML(t *testing.T) {
	tokens := Tokenize("<p><?php echo 1 ?>\n</p><?= $x ?>")
	want := []TokenType{
		TokenInlineHTML, TokenEcho, TokenInteger, TokenSemicolon,
		TokenInlineHTML, TokenEcho, TokenVariable, TokenSemicolon, TokenEOF,
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(want))
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i], typ)
		}
	}
	if tokens[0].Literal != "<p>" {
		t.Errorf("leading html = %q", tokens[0].Literal)
	}
	// The newline directly after ?> is swallowed.
	if tokens[4].Literal != "</p>" {
		t.Errorf("middle html = %q, want %q", tokens[4].Literal, "</p>")
	}
}

func TestLexerComments(t *testing.T) {
	tokens := Tokenize("<?php // line\n# hash\n/* block\n */ $x")
	if len(tokens) != 2 || tokens[0].Type != TokenVariable {
		t.Fatalf("tokens = %v", tokens)
	}
	if tokens[0].Pos.Line != 4 {
		t.Errorf("line = %d, want 4", tokens[0].Pos.Line)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{
		`<?php 'open`,
		`<?php "open`,
		`<?php /* open`,
		"<?php \x01",
		`<?php "{$a"`,
	}
	for _, input := range tests {
		tokens := Tokenize(input)
		last := tokens[len(tokens)-1]
		if last.Type != TokenError {
			t.Errorf("Tokenize(%q) ended with %v, want an error", input, last)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("<?php\n  $a = 1;")
	tok := l.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("position = %d:%d, want 2:3", tok.Pos.Line, tok.Pos.Column)
	}
}
