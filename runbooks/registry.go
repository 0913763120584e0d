package runbooks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/issues"
	"github.com/ethpandaops/ycheck/pkg/types"
)

// Registry holds loaded runbooks and matches them to findings.
type Registry struct {
	log      logrus.FieldLogger
	runbooks []types.Runbook
	byName   map[string]*types.Runbook
	mu       sync.RWMutex
}

// NewRegistry creates a new runbook registry and loads all embedded runbooks.
func NewRegistry(log logrus.FieldLogger) (*Registry, error) {
	runbooks, err := Load()
	if err != nil {
		return nil, fmt.Errorf("loading runbooks: %w", err)
	}

	return newRegistry(log, runbooks), nil
}

func newRegistry(log logrus.FieldLogger, runbooks []types.Runbook) *Registry {
	log = log.WithField("component", "runbook_registry")

	byName := make(map[string]*types.Runbook, len(runbooks))
	for i := range runbooks {
		byName[runbooks[i].Name] = &runbooks[i]
	}

	log.WithField("runbook_count", len(runbooks)).Debug("Runbook registry loaded")

	return &Registry{
		log:      log,
		runbooks: runbooks,
		byName:   byName,
	}
}

// All returns all loaded runbooks.
func (r *Registry) All() []types.Runbook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.Runbook, len(r.runbooks))
	copy(result, r.runbooks)

	return result
}

// Get returns a runbook by name, or nil if not found.
func (r *Registry) Get(name string) *types.Runbook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byName[name]
}

// Count returns the number of loaded runbooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.runbooks)
}

// Tags returns all unique tags across all runbooks, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tagSet := make(map[string]struct{})
	for _, rb := range r.runbooks {
		for _, tag := range rb.Tags {
			tagSet[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// Match returns the runbooks covering a finding of issueType raised from
// origin.
func (r *Registry) Match(issueType, origin string) []types.Runbook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.Runbook

	for i := range r.runbooks {
		if r.runbooks[i].Covers(issueType, origin) {
			out = append(out, r.runbooks[i])
		}
	}

	return out
}

// ForIssues returns the names of the runbooks covering any of the issues,
// without duplicates and in registry order.
func (r *Registry) ForIssues(list []issues.Issue) []string {
	seen := make(map[string]struct{}, len(list))

	var names []string

	for _, i := range list {
		for _, rb := range r.Match(i.Type, i.Origin) {
			if _, ok := seen[rb.Name]; ok {
				continue
			}

			seen[rb.Name] = struct{}{}
			names = append(names, rb.Name)
		}
	}

	return names
}
