package query

import (
	"testing"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"blank", "  \t\r\n ", nil},
		{"words", "put key value", []string{"put", "key", "value"}},
		{"extra spacing", "  get\t\tkey  ", []string{"get", "key"}},
		{"double quotes", `put "a key" value`, []string{"put", "a key", "value"}},
		{"single quotes", `put k 'a value with "quotes"'`, []string{"put", "k", `a value with "quotes"`}},
		{"empty quotes", `get ''`, []string{"get", ""}},
		{"quote inside word", `get ab"c`, []string{"get", `ab"c`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.input, err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %d tokens, want %d", tt.input, len(tokens), len(tt.want))
			}
			for i, tok := range tokens {
				if tok.Value != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, tok.Value, tt.want[i])
				}
			}
		})
	}
}

func TestTokenize_QuotedFlagAndPosition(t *testing.T) {
	tokens, err := Tokenize(`get "k"`)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Quoted || !tokens[1].Quoted {
		t.Errorf("quoted flags = %v, %v", tokens[0].Quoted, tokens[1].Quoted)
	}
	if tokens[1].Pos != 4 {
		t.Errorf("position = %d, want 4", tokens[1].Pos)
	}
}

func TestTokenize_Unterminated(t *testing.T) {
	for _, input := range []string{`get "abc`, `put k 'v`, `"`} {
		_, err := Tokenize(input)
		if status.KindOf(err) != status.InvalidArgument {
			t.Errorf("Tokenize(%q) error = %v, want InvalidArgument", input, err)
		}
	}
}
