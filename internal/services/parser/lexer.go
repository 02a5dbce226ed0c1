package parser

import (
	"fmt"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Identifiers and literals
	TOKEN_IDENTIFIER
	TOKEN_STRING // String literals (quoted)

	// Keywords
	TOKEN_MODEL
	TOKEN_PROPERTY
	TOKEN_RELATION

	// Delimiters
	TOKEN_EQUALS
	TOKEN_COLON
	TOKEN_SEMICOLON
	TOKEN_LBRACE
	TOKEN_RBRACE
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_COMMA
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_EOF:        "EOF",
	TOKEN_IDENTIFIER: "IDENTIFIER",
	TOKEN_STRING:     "STRING",
	TOKEN_MODEL:      "model",
	TOKEN_PROPERTY:   "property",
	TOKEN_RELATION:   "relation",
	TOKEN_EQUALS:     "=",
	TOKEN_COLON:      ":",
	TOKEN_SEMICOLON:  ";",
	TOKEN_LBRACE:     "{",
	TOKEN_RBRACE:     "}",
	TOKEN_LPAREN:     "(",
	TOKEN_RPAREN:     ")",
	TOKEN_COMMA:      ",",
}

var keywords = map[string]TokenType{
	"model":    TOKEN_MODEL,
	"property": TOKEN_PROPERTY,
	"relation": TOKEN_RELATION,
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer performs lexical analysis
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComment skips single-line comments starting with //
func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// readIdentifier reads an identifier or keyword
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readString reads a string literal enclosed in quotes.
// \" and \\ are unescaped; other escapes are kept as written.
func (l *Lexer) readString() (string, bool) {
	var out []byte
	for {
		l.readChar()
		switch l.ch {
		case 0, '\n':
			return string(out), false
		case '"':
			return string(out), true
		case '\\':
			if next := l.peekChar(); next == '"' || next == '\\' {
				l.readChar()
			}
		}
		out = append(out, l.ch)
	}
}

// singleCharTokens maps punctuation to its token type
var singleCharTokens = map[byte]TokenType{
	'=': TOKEN_EQUALS,
	':': TOKEN_COLON,
	';': TOKEN_SEMICOLON,
	'{': TOKEN_LBRACE,
	'}': TOKEN_RBRACE,
	'(': TOKEN_LPAREN,
	')': TOKEN_RPAREN,
	',': TOKEN_COMMA,
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	for {
		l.skipWhitespace()
		if l.ch == '/' && l.peekChar() == '/' {
			l.skipComment()
		} else {
			break
		}
	}

	line := l.line
	column := l.column

	if t, ok := singleCharTokens[l.ch]; ok {
		tok := &Token{Type: t, Value: string(l.ch), Line: line, Column: column}
		l.readChar()
		return tok, nil
	}

	switch {
	case l.ch == 0:
		return &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}, nil
	case l.ch == '"':
		value, ok := l.readString()
		if !ok {
			return nil, fmt.Errorf("unterminated string at %d:%d", line, column)
		}
		l.readChar() // Skip closing quote
		return &Token{Type: TOKEN_STRING, Value: value, Line: line, Column: column}, nil
	case isLetter(l.ch) || l.ch == '_' || l.ch == '$':
		value := l.readIdentifier()
		tokenType := TOKEN_IDENTIFIER
		if kw, ok := keywords[value]; ok {
			tokenType = kw
		}
		return &Token{Type: tokenType, Value: value, Line: line, Column: column}, nil
	}
	return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
