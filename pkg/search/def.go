// Package search is the pattern search backend used by events and
// scenarios. It scans snapshot files and command output line by line,
// returning tagged matches that are addressable by tag and, for sequence
// definitions, grouped into start/body/end sections.
package search

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoPattern is returned when a definition has no pattern to search for.
var ErrNoPattern = errors.New("search definition has no pattern")

// Sequence tag suffixes.
const (
	SuffixStart = "-start"
	SuffixBody  = "-body"
	SuffixEnd   = "-end"
)

// Input names where search text comes from: globs relative to the data root
// and/or a command whose output is scanned.
type Input struct {
	Paths   []string
	Command string
}

// IsZero reports whether the input names nothing.
func (i Input) IsZero() bool {
	return len(i.Paths) == 0 && i.Command == ""
}

// ParseInput parses {path: <glob or list>, command: <string>}. A bare
// string is a single path.
func ParseInput(raw any) (Input, error) {
	switch t := raw.(type) {
	case string:
		return Input{Paths: []string{t}}, nil
	case map[string]any:
		var in Input

		switch p := t["path"].(type) {
		case nil:
		case string:
			in.Paths = []string{p}
		case []any:
			for _, e := range p {
				s, ok := e.(string)
				if !ok {
					return Input{}, fmt.Errorf("input path entries must be strings, got %v", e)
				}

				in.Paths = append(in.Paths, s)
			}
		default:
			return Input{}, fmt.Errorf("input path must be a string or list, got %v", p)
		}

		if c, ok := t["command"]; ok {
			s, ok := c.(string)
			if !ok {
				return Input{}, fmt.Errorf("input command must be a string, got %v", c)
			}

			in.Command = s
		}

		if in.IsZero() {
			return Input{}, errors.New("input names neither a path nor a command")
		}

		return in, nil
	default:
		return Input{}, fmt.Errorf("input must be a string or mapping, got %v", raw)
	}
}

// Def is one search definition. A simple definition has Expr; a sequence
// definition has Start and optionally Body and End.
type Def struct {
	Tag   string
	Input Input
	// Hint is matched before any other pattern; lines it rejects are
	// skipped.
	Hint *regexp.Regexp

	Expr *regexp.Regexp

	Start *regexp.Regexp
	Body  *regexp.Regexp
	End   *regexp.Regexp

	// Passthrough keeps every raw match of a sequence definition without
	// grouping it into sections.
	Passthrough bool
}

// Patterns holds the uncompiled patterns of a definition.
type Patterns struct {
	Hint  string
	Expr  string
	Start string
	Body  string
	End   string
}

// NewDef compiles p into a definition tagged tag. Expr and Start are
// mutually exclusive.
func NewDef(tag string, in Input, p Patterns) (*Def, error) {
	if p.Expr == "" && p.Start == "" {
		return nil, fmt.Errorf("%s: %w", tag, ErrNoPattern)
	}

	if p.Expr != "" && p.Start != "" {
		return nil, fmt.Errorf("%s: expr and start are mutually exclusive", tag)
	}

	d := &Def{Tag: tag, Input: in}

	for _, c := range []struct {
		src string
		dst **regexp.Regexp
	}{
		{p.Hint, &d.Hint},
		{p.Expr, &d.Expr},
		{p.Start, &d.Start},
		{p.Body, &d.Body},
		{p.End, &d.End},
	} {
		if c.src == "" {
			continue
		}

		re, err := regexp.Compile(c.src)
		if err != nil {
			return nil, fmt.Errorf("%s: compiling %q: %w", tag, c.src, err)
		}

		*c.dst = re
	}

	return d, nil
}

// IsSequence reports whether d is a sequence definition.
func (d *Def) IsSequence() bool {
	return d.Start != nil
}

// Tags returns every tag results of d can carry.
func (d *Def) Tags() []string {
	if !d.IsSequence() {
		return []string{d.Tag}
	}

	return []string{d.Tag + SuffixStart, d.Tag + SuffixBody, d.Tag + SuffixEnd}
}
