package compiler

import (
	"testing"
)

func TestScannerBasicTokens(t *testing.T) {
	input := `( ) { } , . - + ; / *`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSemicolon, ";"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenEOF, ""},
	}

	s := NewScanner(input)
	for i, exp := range expected {
		tok := s.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestScannerOperators(t *testing.T) {
	input := `! != = == < <= > >=`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenBang, "!"},
		{TokenBangEqual, "!="},
		{TokenEqual, "="},
		{TokenEqualEqual, "=="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenEOF, ""},
	}

	s := NewScanner(input)
	for i, exp := range expected {
		tok := s.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestScannerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0", "0"},
		{"3.14", "3.14"},
		{"0.5", "0.5"},
		{"123.456", "123.456"},
	}

	for _, tc := range tests {
		s := NewScanner(tc.input)
		tok := s.NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Scanner(%q): type = %v, want NUMBER", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Scanner(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestScannerNumberTrailingDot(t *testing.T) {
	// "1." is a number followed by a dot, not a float
	s := NewScanner("1.foo")

	tok := s.NextToken()
	if tok.Type != TokenNumber || tok.Literal != "1" {
		t.Errorf("token[0] = %v, want NUMBER(\"1\")", tok)
	}

	tok = s.NextToken()
	if tok.Type != TokenDot {
		t.Errorf("token[1] = %v, want .", tok)
	}

	tok = s.NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "foo" {
		t.Errorf("token[2] = %v, want IDENTIFIER(\"foo\")", tok)
	}
}

func TestScannerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`"hello world"`, "hello world"},
		{`""`, ""},
		{"\"line1\nline2\"", "line1\nline2"},
	}

	for _, tc := range tests {
		s := NewScanner(tc.input)
		tok := s.NextToken()
		if tok.Type != TokenString {
			t.Errorf("Scanner(%q): type = %v, want STRING", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Scanner(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestScannerUnterminatedString(t *testing.T) {
	s := NewScanner(`"no closing`)
	tok := s.NextToken()
	if tok.Type != TokenError {
		t.Errorf("type = %v, want ERROR", tok.Type)
	}
	if tok.Literal != "unterminated string" {
		t.Errorf("literal = %q, want %q", tok.Literal, "unterminated string")
	}
}

func TestScannerIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"foo", TokenIdentifier, "foo"},
		{"FooBar", TokenIdentifier, "FooBar"},
		{"foo123", TokenIdentifier, "foo123"},
		{"_private", TokenIdentifier, "_private"},
		{"andrew", TokenIdentifier, "andrew"}, // prefix of a keyword
		{"classy", TokenIdentifier, "classy"},
	}

	for _, tc := range tests {
		s := NewScanner(tc.input)
		tok := s.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Scanner(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.lit {
			t.Errorf("Scanner(%q): literal = %q, want %q", tc.input, tok.Literal, tc.lit)
		}
	}
}

func TestScannerReservedWords(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"and", TokenAnd},
		{"class", TokenClass},
		{"else", TokenElse},
		{"false", TokenFalse},
		{"for", TokenFor},
		{"fun", TokenFun},
		{"if", TokenIf},
		{"nil", TokenNil},
		{"or", TokenOr},
		{"print", TokenPrint},
		{"return", TokenReturn},
		{"super", TokenSuper},
		{"this", TokenThis},
		{"true", TokenTrue},
		{"var", TokenVar},
		{"while", TokenWhile},
	}

	for _, tc := range tests {
		s := NewScanner(tc.input)
		tok := s.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Scanner(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.input {
			t.Errorf("Scanner(%q): literal = %q, want %q", tc.input, tok.Literal, tc.input)
		}
	}
}

func TestScannerComments(t *testing.T) {
	input := "foo // this is a comment\nbar"
	s := NewScanner(input)

	tok := s.NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "foo" {
		t.Errorf("expected foo identifier, got %v", tok)
	}

	tok = s.NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "bar" {
		t.Errorf("expected bar identifier, got %v", tok)
	}
}

func TestScannerCommentToEOF(t *testing.T) {
	s := NewScanner("foo // trailing comment")

	tok := s.NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "foo" {
		t.Errorf("expected foo identifier, got %v", tok)
	}

	tok = s.NextToken()
	if tok.Type != TokenEOF {
		t.Errorf("expected EOF, got %v", tok)
	}
}

func TestScannerSlashNotComment(t *testing.T) {
	s := NewScanner("6 / 2")

	expected := []TokenType{TokenNumber, TokenSlash, TokenNumber, TokenEOF}
	for i, typ := range expected {
		tok := s.NextToken()
		if tok.Type != typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, typ)
		}
	}
}

func TestScannerUnexpectedCharacter(t *testing.T) {
	s := NewScanner("@")
	tok := s.NextToken()
	if tok.Type != TokenError {
		t.Errorf("type = %v, want ERROR", tok.Type)
	}
	if tok.Literal != "unexpected character: @" {
		t.Errorf("literal = %q, want %q", tok.Literal, "unexpected character: @")
	}
}

func TestScannerLineTracking(t *testing.T) {
	input := "foo\nbar\nbaz"
	s := NewScanner(input)

	tok := s.NextToken()
	if tok.Pos.Line != 1 {
		t.Errorf("foo should be on line 1, got %d", tok.Pos.Line)
	}

	tok = s.NextToken()
	if tok.Pos.Line != 2 {
		t.Errorf("bar should be on line 2, got %d", tok.Pos.Line)
	}

	tok = s.NextToken()
	if tok.Pos.Line != 3 {
		t.Errorf("baz should be on line 3, got %d", tok.Pos.Line)
	}
}

func TestScannerMultilineStringLineTracking(t *testing.T) {
	input := "\"a\nb\" foo"
	s := NewScanner(input)

	tok := s.NextToken()
	if tok.Type != TokenString || tok.Pos.Line != 1 {
		t.Errorf("string should start on line 1, got %v line %d", tok.Type, tok.Pos.Line)
	}

	tok = s.NextToken()
	if tok.Pos.Line != 2 {
		t.Errorf("foo should be on line 2, got %d", tok.Pos.Line)
	}
}

func TestScannerColumnTracking(t *testing.T) {
	input := "fun add\nvar x"
	s := NewScanner(input)

	tok := s.NextToken()
	if tok.Pos.Column != 1 || tok.Pos.Offset != 0 {
		t.Errorf("fun at column %d offset %d, want 1/0", tok.Pos.Column, tok.Pos.Offset)
	}

	tok = s.NextToken()
	if tok.Pos.Column != 5 || tok.Pos.Offset != 4 {
		t.Errorf("add at column %d offset %d, want 5/4", tok.Pos.Column, tok.Pos.Offset)
	}

	tok = s.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 1 {
		t.Errorf("var at line %d column %d, want 2/1", tok.Pos.Line, tok.Pos.Column)
	}

	tok = s.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 5 {
		t.Errorf("x at line %d column %d, want 2/5", tok.Pos.Line, tok.Pos.Column)
	}
}

func TestScannerCompleteProgram(t *testing.T) {
	input := `var answer = 6 * 7;
print answer;`

	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenVar, "var"},
		{TokenIdentifier, "answer"},
		{TokenEqual, "="},
		{TokenNumber, "6"},
		{TokenStar, "*"},
		{TokenNumber, "7"},
		{TokenSemicolon, ";"},
		{TokenPrint, "print"},
		{TokenIdentifier, "answer"},
		{TokenSemicolon, ";"},
		{TokenEOF, ""},
	}

	s := NewScanner(input)
	for i, exp := range expected {
		tok := s.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestTokenize(t *testing.T) {
	input := "var x = 42;"
	tokens := Tokenize(input)

	if len(tokens) != 6 { // var, x, =, 42, ;, EOF
		t.Errorf("expected 6 tokens, got %d", len(tokens))
	}

	if tokens[0].Type != TokenVar {
		t.Errorf("token[0] should be var")
	}
	if tokens[1].Type != TokenIdentifier {
		t.Errorf("token[1] should be identifier")
	}
	if tokens[4].Type != TokenSemicolon {
		t.Errorf("token[4] should be semicolon")
	}
	if tokens[5].Type != TokenEOF {
		t.Errorf("token[5] should be EOF")
	}
}

func TestTokenizeContinuesPastErrors(t *testing.T) {
	tokens := Tokenize("@ foo")

	if len(tokens) != 3 { // error, foo, EOF
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	if tokens[0].Type != TokenError {
		t.Errorf("token[0] should be error, got %v", tokens[0].Type)
	}
	if tokens[1].Type != TokenIdentifier || tokens[1].Literal != "foo" {
		t.Errorf("token[1] = %v, want IDENTIFIER(\"foo\")", tokens[1])
	}
	if tokens[2].Type != TokenEOF {
		t.Errorf("token[2] should be EOF")
	}
}
