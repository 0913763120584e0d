package runbooks

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	runbooks, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, runbooks, "expected at least one runbook to be loaded")

	// Verify all runbooks have required fields.
	for _, rb := range runbooks {
		t.Run(rb.FilePath, func(t *testing.T) {
			require.NotEmpty(t, rb.Name, "runbook must have a name")
			require.NotEmpty(t, rb.Description, "runbook must have a description")
			require.NotEmpty(t, rb.Content, "runbook must have content")
			require.NotEmpty(t, rb.FilePath, "runbook must have file path")
			require.True(t, len(rb.Origins)+len(rb.IssueTypes) > 0, "runbook must cover a finding")
		})
	}
}

func TestLoadFS(t *testing.T) {
	tests := []struct {
		name        string
		files       fstest.MapFS
		wantNames   []string
		expectError bool
	}{
		{
			name: "sorted by name and non markdown ignored",
			files: fstest.MapFS{
				"b.md":      {Data: []byte("---\nname: zeta\ndescription: z\norigins: [a.b]\n---\nbody")},
				"a.md":      {Data: []byte("---\nname: alpha\ndescription: a\nissue_types: [X]\n---\nbody")},
				"notes.txt": {Data: []byte("ignored")},
				"sub/c.md":  {Data: []byte("ignored")},
			},
			wantNames: []string{"alpha", "zeta"},
		},
		{
			name: "missing description",
			files: fstest.MapFS{
				"a.md": {Data: []byte("---\nname: alpha\norigins: [a.b]\n---\nbody")},
			},
			expectError: true,
		},
		{
			name: "covers nothing",
			files: fstest.MapFS{
				"a.md": {Data: []byte("---\nname: alpha\ndescription: a\n---\nbody")},
			},
			expectError: true,
		},
		{
			name: "malformed frontmatter",
			files: fstest.MapFS{
				"a.md": {Data: []byte("---\nname: [\n---\nbody")},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadFS(tt.files)
			if tt.expectError {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			names := make([]string, 0, len(got))
			for _, rb := range got {
				names = append(names, rb.Name)
			}

			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantFM      string
		wantBody    string
		expectError bool
	}{
		{
			name:     "valid frontmatter",
			input:    "---\nname: Test\n---\nBody content",
			wantFM:   "name: Test",
			wantBody: "Body content",
		},
		{
			name:     "leading whitespace",
			input:    "\n\n---\nname: Test\n---\n\nBody content\n",
			wantFM:   "name: Test",
			wantBody: "Body content",
		},
		{
			name:        "missing opening delimiter",
			input:       "name: Test\n---\nBody content",
			expectError: true,
		},
		{
			name:        "missing closing delimiter",
			input:       "---\nname: Test\nBody content",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, err := splitFrontmatter([]byte(tt.input))
			if tt.expectError {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFM, string(fm))
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}
