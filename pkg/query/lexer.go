package query

import (
	"unicode"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Token is one word of a statement.
type Token struct {
	Value string
	// Quoted is set when the word was written in quotes; Value excludes them.
	Quoted bool
	Pos    int
}

// Lexer splits a statement into words. Words are separated by white
// space; a word that starts with ' or " runs to the matching quote and may
// contain spaces.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize converts the input string into tokens
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			return l.tokens, nil
		}
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) nextToken() (Token, error) {
	start := l.pos
	if q := l.input[l.pos]; q == '\'' || q == '"' {
		return l.readQuoted(q)
	}
	for l.pos < len(l.input) && !unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	return Token{Value: l.input[start:l.pos], Pos: start}, nil
}

// readQuoted reads a quoted word. Quotes do not nest and there are no
// escapes.
func (l *Lexer) readQuoted(quote byte) (Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) {
		if l.input[l.pos] == quote {
			l.pos++
			return Token{Value: l.input[start+1 : l.pos-1], Quoted: true, Pos: start}, nil
		}
		l.pos++
	}
	return Token{}, status.Errorf(status.InvalidArgument, "tokenize",
		"unterminated %c at position %d", quote, start)
}

// Tokenize splits input into tokens.
func Tokenize(input string) ([]Token, error) {
	return NewLexer(input).Tokenize()
}
