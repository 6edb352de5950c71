package compiler

import (
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Scanner: Tokenizer for Lox syntax
// ---------------------------------------------------------------------------

// Scanner tokenizes Lox source code.
type Scanner struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewScanner creates a new scanner for the given input.
func NewScanner(input string) *Scanner {
	s := &Scanner{
		input: input,
		line:  1,
		col:   1,
	}
	s.readChar()
	return s
}

// readChar reads the next character.
func (s *Scanner) readChar() {
	// Leaving the current character: advance the line/column trackers
	if s.ch == '\n' {
		s.line++
		s.col = 1
	} else if s.ch != 0 {
		s.col++
	}

	if s.readPos >= len(s.input) {
		s.ch = 0 // EOF
		s.pos = s.readPos
	} else {
		r, size := utf8.DecodeRuneInString(s.input[s.readPos:])
		s.ch = r
		s.pos = s.readPos
		s.readPos += size
	}
}

// peekChar returns the next character without consuming it.
func (s *Scanner) peekChar() rune {
	if s.readPos >= len(s.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.readPos:])
	return r
}

// position returns the current position.
func (s *Scanner) position() Position {
	return Position{
		Offset: s.pos,
		Line:   s.line,
		Column: s.col,
	}
}

// NextToken returns the next token.
func (s *Scanner) NextToken() Token {
	s.skipWhitespaceAndComments()

	pos := s.position()

	switch {
	case s.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case s.ch == '(':
		s.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}

	case s.ch == ')':
		s.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}

	case s.ch == '{':
		s.readChar()
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}

	case s.ch == '}':
		s.readChar()
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}

	case s.ch == ',':
		s.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case s.ch == '.':
		s.readChar()
		return Token{Type: TokenDot, Literal: ".", Pos: pos}

	case s.ch == '-':
		s.readChar()
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}

	case s.ch == '+':
		s.readChar()
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}

	case s.ch == ';':
		s.readChar()
		return Token{Type: TokenSemicolon, Literal: ";", Pos: pos}

	case s.ch == '/':
		s.readChar()
		return Token{Type: TokenSlash, Literal: "/", Pos: pos}

	case s.ch == '*':
		s.readChar()
		return Token{Type: TokenStar, Literal: "*", Pos: pos}

	case s.ch == '!':
		s.readChar()
		if s.ch == '=' {
			s.readChar()
			return Token{Type: TokenBangEqual, Literal: "!=", Pos: pos}
		}
		return Token{Type: TokenBang, Literal: "!", Pos: pos}

	case s.ch == '=':
		s.readChar()
		if s.ch == '=' {
			s.readChar()
			return Token{Type: TokenEqualEqual, Literal: "==", Pos: pos}
		}
		return Token{Type: TokenEqual, Literal: "=", Pos: pos}

	case s.ch == '<':
		s.readChar()
		if s.ch == '=' {
			s.readChar()
			return Token{Type: TokenLessEqual, Literal: "<=", Pos: pos}
		}
		return Token{Type: TokenLess, Literal: "<", Pos: pos}

	case s.ch == '>':
		s.readChar()
		if s.ch == '=' {
			s.readChar()
			return Token{Type: TokenGreaterEqual, Literal: ">=", Pos: pos}
		}
		return Token{Type: TokenGreater, Literal: ">", Pos: pos}

	case s.ch == '"':
		return s.readString(pos)

	case isDigit(s.ch):
		return s.readNumber(pos)

	case isAlpha(s.ch):
		return s.readIdentifier(pos)

	default:
		ch := s.ch
		s.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
	}
}

// skipWhitespaceAndComments skips whitespace and // line comments.
func (s *Scanner) skipWhitespaceAndComments() {
	for {
		// Skip whitespace
		for s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r' {
			s.readChar()
		}

		// Skip line comments: // to end of line
		if s.ch == '/' && s.peekChar() == '/' {
			for s.ch != '\n' && s.ch != 0 {
				s.readChar()
			}
			continue
		}

		break
	}
}

// readString reads a string literal. Strings have no escape sequences and
// may span multiple lines.
func (s *Scanner) readString(pos Position) Token {
	s.readChar() // consume opening "

	start := s.pos
	for s.ch != '"' && s.ch != 0 {
		s.readChar()
	}

	if s.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
	}

	literal := s.input[start:s.pos]
	s.readChar() // consume closing "

	return Token{Type: TokenString, Literal: literal, Pos: pos}
}

// readNumber reads a number literal: digits with an optional fractional
// part. A trailing dot is not consumed (it is a property access).
func (s *Scanner) readNumber(pos Position) Token {
	start := s.pos

	for isDigit(s.ch) {
		s.readChar()
	}

	if s.ch == '.' && isDigit(s.peekChar()) {
		s.readChar() // consume .
		for isDigit(s.ch) {
			s.readChar()
		}
	}

	return Token{Type: TokenNumber, Literal: s.input[start:s.pos], Pos: pos}
}

// readIdentifier reads an identifier or reserved word.
func (s *Scanner) readIdentifier(pos Position) Token {
	start := s.pos

	for isAlpha(s.ch) || isDigit(s.ch) {
		s.readChar()
	}

	literal := s.input[start:s.pos]

	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}

	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input, including error tokens; the
// sequence always ends with EOF.
func Tokenize(input string) []Token {
	s := NewScanner(input)
	var tokens []Token
	for {
		tok := s.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens
}
