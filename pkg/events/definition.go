// Package events correlates search results with the events declared in a
// domain's event definitions and dispatches them to registered callbacks.
package events

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/ethpandaops/ycheck/pkg/defs"
	"github.com/ethpandaops/ycheck/pkg/expr"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// ErrNoInput is returned for an event with no input of its own or
// inherited from an enclosing group.
var ErrNoInput = errors.New("event has no input")

// Kind is the kind of an event.
type Kind string

const (
	KindSimple      Kind = "simple"
	KindSequence    Kind = "sequence"
	KindPassthrough Kind = "passthrough"
)

// Definition is one declared event.
type Definition struct {
	// Name is the event name.
	Name string
	// Group is the dotted path of the enclosing group below the domain.
	Group string
	// Path is the full dotted path, starting with the domain.
	Path string
	Kind Kind
	// Search is the search definition tagged with Path.
	Search *search.Def
	// Requires excludes the event when not met. May be nil.
	Requires expr.Requirement
	Source   string
}

// Key returns "<group>.<event>", or the bare name for events declared at
// the top of the domain.
func (d *Definition) Key() string {
	if d.Group == "" {
		return d.Name
	}

	return d.Group + "." + d.Name
}

// LoadDefinitions builds the event definitions declared below root. When
// filter is set only the event whose full or domain-relative path equals
// filter is returned.
func LoadDefinitions(root *defs.Node, filter string) ([]*Definition, error) {
	var out []*Definition

	for _, leaf := range root.Leaves() {
		if leaf == root {
			continue
		}

		if filter != "" && leaf.Path() != filter && leaf.RelPath() != filter {
			continue
		}

		d, err := newDefinition(leaf)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", leaf.Path(), err)
		}

		out = append(out, d)
	}

	return out, nil
}

func newDefinition(n *defs.Node) (*Definition, error) {
	d := &Definition{
		Name:   n.Name,
		Path:   n.Path(),
		Source: n.SourceFile(),
	}

	if n.Parent != nil {
		d.Group = n.Parent.RelPath()
	}

	rawInput, ok := n.Lookup(defs.KeyInput)
	if !ok {
		return nil, ErrNoInput
	}

	in, err := search.ParseInput(rawInput)
	if err != nil {
		return nil, err
	}

	p := search.Patterns{
		Hint:  propString(n, defs.KeyHint),
		Expr:  propString(n, defs.KeyExpr),
		Start: propString(n, defs.KeyStart),
		Body:  propString(n, defs.KeyBody),
		End:   propString(n, defs.KeyEnd),
	}

	sd, err := search.NewDef(d.Path, in, p)
	if err != nil {
		return nil, err
	}

	d.Search = sd

	passthrough := false
	if raw, ok := n.Get(defs.KeyPassthrough); ok {
		passthrough, err = cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", defs.KeyPassthrough, err)
		}
	}

	switch {
	case passthrough:
		d.Kind = KindPassthrough
		sd.Passthrough = true
	case sd.IsSequence():
		d.Kind = KindSequence
	default:
		d.Kind = KindSimple
	}

	if raw, ok := n.Lookup(defs.KeyRequires); ok {
		req, err := expr.ParseRequires(raw)
		if err != nil {
			return nil, fmt.Errorf("requires: %w", err)
		}

		d.Requires = req
	}

	return d, nil
}

func propString(n *defs.Node, key string) string {
	v, ok := n.Get(key)
	if !ok || v == nil {
		return ""
	}

	return cast.ToString(v)
}
