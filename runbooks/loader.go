// Package runbooks provides embedded remediation guides for raised findings.
package runbooks

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/ycheck/pkg/types"
)

//go:embed *.md
var runbookFiles embed.FS

// Load reads the embedded runbooks.
func Load() ([]types.Runbook, error) {
	return LoadFS(runbookFiles)
}

// LoadFS reads every top-level markdown file of fsys. Each file must start
// with YAML frontmatter delimited by "---" markers.
func LoadFS(fsys fs.FS) ([]types.Runbook, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading runbook directory: %w", err)
	}

	runbooks := make([]types.Runbook, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading runbook %s: %w", entry.Name(), err)
		}

		rb, err := parseRunbook(data, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parsing runbook %s: %w", entry.Name(), err)
		}

		runbooks = append(runbooks, rb)
	}

	sort.Slice(runbooks, func(i, j int) bool { return runbooks[i].Name < runbooks[j].Name })

	return runbooks, nil
}

// parseRunbook extracts YAML frontmatter and markdown body from file content.
func parseRunbook(data []byte, filename string) (types.Runbook, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return types.Runbook{}, err
	}

	var rb types.Runbook
	if err := yaml.Unmarshal(frontmatter, &rb); err != nil {
		return types.Runbook{}, fmt.Errorf("unmarshaling frontmatter: %w", err)
	}

	rb.Content = string(body)
	rb.FilePath = filename

	switch {
	case rb.Name == "":
		return types.Runbook{}, errors.New("runbook must have a name in frontmatter")
	case rb.Description == "":
		return types.Runbook{}, errors.New("runbook must have a description in frontmatter")
	case len(rb.IssueTypes) == 0 && len(rb.Origins) == 0:
		return types.Runbook{}, errors.New("runbook must list issue_types or origins")
	}

	return rb, nil
}

// splitFrontmatter separates YAML frontmatter from markdown body.
func splitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	const delimiter = "---"

	data = bytes.TrimSpace(data)
	if !bytes.HasPrefix(data, []byte(delimiter)) {
		return nil, nil, errors.New("file must start with YAML frontmatter delimiter '---'")
	}

	data = data[len(delimiter):]

	idx := bytes.Index(data, []byte("\n"+delimiter))
	if idx == -1 {
		return nil, nil, errors.New("missing closing frontmatter delimiter '---'")
	}

	frontmatter = bytes.TrimSpace(data[:idx])
	body = bytes.TrimSpace(data[idx+len("\n"+delimiter):])

	return frontmatter, body, nil
}
