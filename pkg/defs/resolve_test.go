package defs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []segment
	}{
		{name: "plain", in: "abc", want: []segment{{text: "abc"}}},
		{name: "single", in: "${a.b}", want: []segment{{text: "a.b", ref: true}}},
		{
			name: "mixed",
			in:   "x${a}y${b}",
			want: []segment{{text: "x"}, {text: "a", ref: true}, {text: "y"}, {text: "b", ref: true}},
		},
		{name: "unterminated", in: "x${a", want: []segment{{text: "x${a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestResolve_Transitive(t *testing.T) {
	tree := map[string]any{
		"a": 1,
		"x": map[string]any{
			"y": "${a}",
			"z": "${x.y}",
		},
	}

	once, err := Resolve(tree)
	require.NoError(t, err)

	x := once["x"].(map[string]any)
	assert.Equal(t, "1", x["y"])
	assert.Equal(t, "1", x["z"])

	twice, err := Resolve(once)
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("resolving twice changed the tree (-once +twice):\n%s", diff)
	}

	// The input is left untouched.
	assert.Equal(t, "${a}", tree["x"].(map[string]any)["y"])
}

func TestResolve_ForwardReferenceAndConcat(t *testing.T) {
	tree := map[string]any{
		"first": "${later.value}${later.value}",
		"later": map[string]any{
			"value": "ab",
		},
		"paths": []any{"${later.value}/log", "static"},
	}

	out, err := Resolve(tree)
	require.NoError(t, err)

	assert.Equal(t, "abab", out["first"])
	assert.Equal(t, []any{"ab/log", "static"}, out["paths"])
}

func TestResolve_ListElementReference(t *testing.T) {
	tree := map[string]any{
		"paths": []any{"var/log/syslog"},
		"copy":  "${paths.0}",
	}

	out, err := Resolve(tree)
	require.NoError(t, err)
	assert.Equal(t, "var/log/syslog", out["copy"])
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name string
		tree map[string]any
		want error
	}{
		{
			name: "two node cycle",
			tree: map[string]any{"a": "${b}", "b": "${a}"},
			want: ErrReferenceCycle,
		},
		{
			name: "self reference",
			tree: map[string]any{"a": "x${a}"},
			want: ErrReferenceCycle,
		},
		{
			name: "three node cycle",
			tree: map[string]any{"a": "${b}", "b": "${c}", "c": "${a}", "d": 1},
			want: ErrReferenceCycle,
		},
		{
			name: "missing path",
			tree: map[string]any{"a": "${nope.here}"},
			want: ErrUnresolvedReference,
		},
		{
			name: "mapping target",
			tree: map[string]any{"a": "${b}", "b": map[string]any{"c": 1}},
			want: ErrNonScalarReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.tree)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolve_NoReferences(t *testing.T) {
	tree := map[string]any{"a": 1, "b": []any{true, nil}}

	out, err := Resolve(tree)
	require.NoError(t, err)
	assert.Equal(t, tree, out)
}
