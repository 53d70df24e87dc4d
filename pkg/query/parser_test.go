package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

func TestParse(t *testing.T) {
	p := NewParser()
	tests := []struct {
		input string
		verb  Verb
		args  []string
	}{
		{"get k", VerbGet, []string{"k"}},
		{"GET k", VerbGet, []string{"k"}},
		{`put "a key" 'a value'`, VerbPut, []string{"a key", "a value"}},
		{"delete k", VerbDelete, []string{"k"}},
		{"enumerate", VerbEnumerate, []string{}},
		{"compact", VerbCompact, []string{}},
		{"list bucket", VerbListBucket, []string{}},
		{"List Bucket", VerbListBucket, []string{}},
		{"select bucket users", VerbSelectBucket, []string{"users"}},
		{"create bucket users", VerbCreateBucket, []string{"users"}},
		{"remove bucket users", VerbRemoveBucket, []string{"users"}},
		{"proc begin", VerbProcBegin, []string{}},
		{"PROC END", VerbProcEnd, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			stmt, err := p.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.verb, stmt.Verb)
			assert.Equal(t, tt.args, stmt.Args)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	p := NewParser()
	tests := []struct {
		input   string
		message string
	}{
		{"", "empty statement"},
		{"fetch k", "undeclared identifier `fetch`"},
		{`"get" k`, "undeclared identifier"},
		{"get", "expected `<key>` after `get`"},
		{"get a b", "unexpected `b` after `a`"},
		{`get ""`, "non-empty `<key>`"},
		{"put k", "expected `<value>` after `k`"},
		{`put k ''`, "non-empty `<value>`"},
		{"put k v x", "unexpected `x` after `v`"},
		{"enumerate all", "unexpected `all` after `enumerate`"},
		{"list", "expected `bucket` after `list`"},
		{"list buckets", "rather than `buckets`"},
		{"select bucket", "expected `<bucket name>`"},
		{"select bucket a/b", "bucket name"},
		{`create bucket "a:b"`, "bucket name"},
		{"remove bucket x y", "unexpected `y` after `x`"},
		{"proc", "`begin` or `end`"},
		{"proc commit", "rather than `commit`"},
		{`get "open`, "unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := p.Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, status.InvalidArgument, status.KindOf(err))
			assert.True(t, strings.Contains(err.Error(), tt.message), "error %q should contain %q", err, tt.message)
		})
	}
}

func TestExec(t *testing.T) {
	p := NewParser()
	var got []string
	require.NoError(t, p.Bind(VerbPut, func(args []string) error {
		got = args
		return nil
	}))

	require.NoError(t, p.Exec(`put k "v w"`))
	assert.Equal(t, []string{"k", "v w"}, got)

	err := p.Exec("get k")
	assert.Equal(t, status.NotSupported, status.KindOf(err))

	err = p.Exec("put k")
	assert.Equal(t, status.InvalidArgument, status.KindOf(err))

	boom := errors.New("boom")
	require.NoError(t, p.Bind(VerbCompact, func([]string) error { return boom }))
	assert.ErrorIs(t, p.Exec("compact"), boom)

	err = p.Bind("truncate", func([]string) error { return nil })
	assert.Equal(t, status.InvalidArgument, status.KindOf(err))
}

func TestVerbsAndUsage(t *testing.T) {
	p := NewParser()
	verbs := p.Verbs()
	assert.Len(t, verbs, 11)
	assert.Equal(t, VerbCompact, verbs[0])
	assert.Equal(t, "put <key> <value>", p.Usage(VerbPut))
	assert.Equal(t, "select bucket <bucket name>", p.Usage(VerbSelectBucket))
	assert.Equal(t, "enumerate", p.Usage(VerbEnumerate))
}
