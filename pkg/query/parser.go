// Package query parses and dispatches the statements of the cask console.
//
// A statement is a verb followed by its arguments:
//
//	get <key>
//	put <key> <value>
//	delete <key>
//	enumerate
//	compact
//	list bucket
//	select bucket <name>
//	create bucket <name>
//	remove bucket <name>
//	proc begin
//	proc end
//
// Verbs are case-insensitive. Keys and values containing spaces are
// quoted with ' or ".
package query

import (
	"sort"
	"strings"

	"github.com/dd0wney/cluso-cask/pkg/catalog"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Verb names a statement.
type Verb string

const (
	VerbGet          Verb = "get"
	VerbPut          Verb = "put"
	VerbDelete       Verb = "delete"
	VerbEnumerate    Verb = "enumerate"
	VerbCompact      Verb = "compact"
	VerbListBucket   Verb = "list bucket"
	VerbSelectBucket Verb = "select bucket"
	VerbCreateBucket Verb = "create bucket"
	VerbRemoveBucket Verb = "remove bucket"
	VerbProcBegin    Verb = "proc begin"
	VerbProcEnd      Verb = "proc end"
)

type argKind int

const (
	argData   argKind = iota // key or value: must not be empty
	argBucket                // bucket name
)

type param struct {
	name string
	kind argKind
}

// rule describes the arguments a verb takes.
type rule struct {
	params []param
}

// Statement is a parsed statement.
type Statement struct {
	Verb Verb
	Args []string
}

// Handler executes a statement's arguments.
type Handler func(args []string) error

// Parser holds the verb registry and the handlers bound to it.
type Parser struct {
	rules    map[Verb]rule
	prefixes map[string][]string // first word -> allowed second words
	handlers map[Verb]Handler
}

// NewParser creates a parser that knows every verb and has no handlers.
func NewParser() *Parser {
	key := param{"<key>", argData}
	value := param{"<value>", argData}
	bucket := param{"<bucket name>", argBucket}

	p := &Parser{
		rules: map[Verb]rule{
			VerbGet:          {[]param{key}},
			VerbPut:          {[]param{key, value}},
			VerbDelete:       {[]param{key}},
			VerbEnumerate:    {},
			VerbCompact:      {},
			VerbListBucket:   {},
			VerbSelectBucket: {[]param{bucket}},
			VerbCreateBucket: {[]param{bucket}},
			VerbRemoveBucket: {[]param{bucket}},
			VerbProcBegin:    {},
			VerbProcEnd:      {},
		},
		prefixes: make(map[string][]string),
		handlers: make(map[Verb]Handler),
	}
	for v := range p.rules {
		if first, second, ok := strings.Cut(string(v), " "); ok {
			p.prefixes[first] = append(p.prefixes[first], second)
		}
	}
	for _, words := range p.prefixes {
		sort.Strings(words)
	}
	return p
}

// Verbs returns every known verb, sorted.
func (p *Parser) Verbs() []Verb {
	verbs := make([]Verb, 0, len(p.rules))
	for v := range p.rules {
		verbs = append(verbs, v)
	}
	sort.Slice(verbs, func(i, j int) bool { return verbs[i] < verbs[j] })
	return verbs
}

// Usage returns the statement form of v, such as "put <key> <value>".
func (p *Parser) Usage(v Verb) string {
	parts := []string{string(v)}
	for _, prm := range p.rules[v].params {
		parts = append(parts, prm.name)
	}
	return strings.Join(parts, " ")
}

// Bind attaches h to v, replacing any earlier handler.
func (p *Parser) Bind(v Verb, h Handler) error {
	if _, ok := p.rules[v]; !ok {
		return status.Errorf(status.InvalidArgument, "bind", "unknown verb %q", v)
	}
	p.handlers[v] = h
	return nil
}

// Parse parses one statement.
func (p *Parser) Parse(line string) (Statement, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return Statement{}, err
	}
	if len(tokens) == 0 {
		return Statement{}, status.Errorf(status.InvalidArgument, "parse", "empty statement")
	}

	first := tokens[0]
	word := strings.ToLower(first.Value)
	verb := Verb(word)
	rest := tokens[1:]
	if seconds, ok := p.prefixes[word]; ok && !first.Quoted {
		if len(rest) == 0 {
			return Statement{}, status.Errorf(status.InvalidArgument, "parse",
				"expected `%s` after `%s`", strings.Join(seconds, "` or `"), first.Value)
		}
		verb = Verb(word + " " + strings.ToLower(rest[0].Value))
		if _, ok := p.rules[verb]; !ok || rest[0].Quoted {
			return Statement{}, status.Errorf(status.InvalidArgument, "parse",
				"expected `%s` rather than `%s` after `%s`", strings.Join(seconds, "` or `"), rest[0].Value, first.Value)
		}
		rest = rest[1:]
	}

	r, ok := p.rules[verb]
	if !ok || first.Quoted {
		return Statement{}, status.Errorf(status.InvalidArgument, "parse", "undeclared identifier `%s`", first.Value)
	}
	return p.bindArgs(verb, r, rest)
}

func (p *Parser) bindArgs(verb Verb, r rule, tokens []Token) (Statement, error) {
	prev := string(verb)
	args := make([]string, 0, len(r.params))
	for i, prm := range r.params {
		if i >= len(tokens) {
			return Statement{}, status.Errorf(status.InvalidArgument, "parse",
				"expected `%s` after `%s`", prm.name, prev)
		}
		tok := tokens[i]
		switch prm.kind {
		case argData:
			if tok.Value == "" {
				return Statement{}, status.Errorf(status.InvalidArgument, "parse",
					"expected non-empty `%s` after `%s`", prm.name, prev)
			}
		case argBucket:
			if err := catalog.ValidName(tok.Value); err != nil {
				return Statement{}, status.Wrap(err, "query.parse")
			}
		}
		args = append(args, tok.Value)
		prev = tok.Value
	}
	if len(tokens) > len(r.params) {
		return Statement{}, status.Errorf(status.InvalidArgument, "parse",
			"unexpected `%s` after `%s`", tokens[len(r.params)].Value, prev)
	}
	return Statement{Verb: verb, Args: args}, nil
}

// Exec parses line and runs the handler bound to its verb. A verb with no
// handler fails with NotSupported.
func (p *Parser) Exec(line string) error {
	stmt, err := p.Parse(line)
	if err != nil {
		return err
	}
	h, ok := p.handlers[stmt.Verb]
	if !ok {
		return status.Errorf(status.NotSupported, "exec", "no handler bound for `%s`", stmt.Verb)
	}
	return h(stmt.Args)
}
