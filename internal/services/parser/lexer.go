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

	// Identifiers
	TOKEN_IDENTIFIER

	// Keywords
	TOKEN_ENTITY
	TOKEN_RELATION
	TOKEN_ATTRIBUTE

	// Delimiters
	TOKEN_AT
	TOKEN_COLON
	TOKEN_LBRACE
	TOKEN_RBRACE
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_COMMA
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_EOF:        "EOF",
	TOKEN_IDENTIFIER: "IDENTIFIER",
	TOKEN_ENTITY:     "entity",
	TOKEN_RELATION:   "relation",
	TOKEN_ATTRIBUTE:  "attribute",
	TOKEN_AT:         "@",
	TOKEN_COLON:      ":",
	TOKEN_LBRACE:     "{",
	TOKEN_RBRACE:     "}",
	TOKEN_LPAREN:     "(",
	TOKEN_RPAREN:     ")",
	TOKEN_LBRACKET:   "[",
	TOKEN_RBRACKET:   "]",
	TOKEN_COMMA:      ",",
}

var keywords = map[string]TokenType{
	"entity":    TOKEN_ENTITY,
	"relation":  TOKEN_RELATION,
	"attribute": TOKEN_ATTRIBUTE,
}

var delimiters = map[byte]TokenType{
	'@': TOKEN_AT,
	':': TOKEN_COLON,
	'{': TOKEN_LBRACE,
	'}': TOKEN_RBRACE,
	'(': TOKEN_LPAREN,
	')': TOKEN_RPAREN,
	'[': TOKEN_LBRACKET,
	']': TOKEN_RBRACKET,
	',': TOKEN_COMMA,
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

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == ';' {
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
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '-' {
		l.readChar()
	}
	return l.input[position:l.position]
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

	if t, ok := delimiters[l.ch]; ok {
		tok := &Token{Type: t, Value: string(l.ch), Line: line, Column: column}
		l.readChar()
		return tok, nil
	}

	switch {
	case l.ch == 0:
		return &Token{Type: TOKEN_EOF, Line: line, Column: column}, nil
	case isLetter(l.ch) || l.ch == '_':
		value := l.readIdentifier()
		tokenType := TOKEN_IDENTIFIER
		if kw, ok := keywords[value]; ok {
			tokenType = kw
		}
		return &Token{Type: tokenType, Value: value, Line: line, Column: column}, nil
	default:
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
	}
}

// isLetter checks if a character is a letter
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

// isDigit checks if a character is a digit
func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
