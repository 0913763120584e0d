// Package issues persists the findings of a domain pass: potential issues
// and known-bug matches, each in its own YAML document inside the domain's
// working directory.
package issues

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrWorkDirMissing is returned when the working directory of the store
// does not exist.
var ErrWorkDirMissing = errors.New("working directory does not exist")

// Document names and root keys.
const (
	IssuesFile = "issues.yaml"
	BugsFile   = "known_bugs.yaml"

	IssuesKey = "potential-issues"
	BugsKey   = "bugs-detected"
)

// Issue is a potential issue raised by a scenario.
type Issue struct {
	Type    string         `yaml:"type" json:"type"`
	Desc    string         `yaml:"desc" json:"desc"`
	Origin  string         `yaml:"origin" json:"origin"`
	Context map[string]any `yaml:"context,omitempty" json:"context,omitempty"`
}

// Bug is a match against a known bug, keyed by its tracker reference.
type Bug struct {
	ID      string         `yaml:"id" json:"id"`
	Desc    string         `yaml:"desc" json:"desc"`
	Origin  string         `yaml:"origin" json:"origin"`
	Context map[string]any `yaml:"context,omitempty" json:"context,omitempty"`
}

// sameAs reports whether b and o would be written as the same entry.
func (b Bug) sameAs(o Bug) bool {
	if b.ID != o.ID || b.Desc != o.Desc || b.Origin != o.Origin {
		return false
	}

	if len(b.Context) == 0 || len(o.Context) == 0 {
		return len(b.Context) == len(o.Context)
	}

	// Compare the encoded form: values read back from the document may
	// carry different Go types than freshly raised ones.
	x, errX := yaml.Marshal(b.Context)
	y, errY := yaml.Marshal(o.Context)

	return errX == nil && errY == nil && string(x) == string(y)
}

type issuesDoc struct {
	Issues []Issue `yaml:"potential-issues"`
}

type bugsDoc struct {
	Bugs []Bug `yaml:"bugs-detected"`
}

// Store appends findings to the documents of one working directory. It
// assumes a single writer.
type Store struct {
	log logrus.FieldLogger
	dir string
}

// NewStore creates a store writing below dir. The directory is only checked
// when a finding is written.
func NewStore(log logrus.FieldLogger, dir string) *Store {
	return &Store{
		log: log.WithField("component", "issue_store"),
		dir: dir,
	}
}

// Dir returns the working directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// AddIssue appends issue to the issues document.
func (s *Store) AddIssue(issue Issue) error {
	var doc issuesDoc
	if err := s.read(IssuesFile, &doc); err != nil {
		return err
	}

	doc.Issues = append(doc.Issues, issue)

	if err := s.write(IssuesFile, doc); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"type":   issue.Type,
		"origin": issue.Origin,
	}).Debug("Issue recorded")

	return nil
}

// AddBug appends bug to the known bugs document unless an identical entry
// is already there.
func (s *Store) AddBug(bug Bug) error {
	var doc bugsDoc
	if err := s.read(BugsFile, &doc); err != nil {
		return err
	}

	for _, b := range doc.Bugs {
		if b.sameAs(bug) {
			s.log.WithField("id", bug.ID).Debug("Bug already recorded")

			return nil
		}
	}

	doc.Bugs = append(doc.Bugs, bug)

	if err := s.write(BugsFile, doc); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"id":     bug.ID,
		"origin": bug.Origin,
	}).Debug("Bug recorded")

	return nil
}

// Issues returns the recorded issues in insertion order.
func (s *Store) Issues() ([]Issue, error) {
	var doc issuesDoc
	if err := s.read(IssuesFile, &doc); err != nil {
		return nil, err
	}

	return doc.Issues, nil
}

// Bugs returns the recorded bugs in insertion order.
func (s *Store) Bugs() ([]Bug, error) {
	var doc bugsDoc
	if err := s.read(BugsFile, &doc); err != nil {
		return nil, err
	}

	return doc.Bugs, nil
}

func (s *Store) checkDir() error {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %q", ErrWorkDirMissing, s.dir)
	}

	return nil
}

// read decodes name into out. An absent document leaves out empty.
func (s *Store) read(name string, out any) error {
	if err := s.checkDir(); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("reading %s: %w", name, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}

	return nil
}

func (s *Store) write(name string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	return nil
}

// Origin derives the origin of a finding from the domain and the rule file
// that raised it: "<domain>.<file name without extension>".
func Origin(domain, file string) string {
	base := filepath.Base(file)
	for _, ext := range []string{".py", ".yaml", ".yml"} {
		base = strings.TrimSuffix(base, ext)
	}

	if base == "" || base == "." {
		return domain
	}

	return domain + "." + base
}
