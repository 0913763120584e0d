package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethpandaops/ycheck/pkg/facts"
)

// Requirement is a parsed requirement predicate.
type Requirement interface {
	// Eval interprets the predicate against already collected facts.
	Eval(f facts.Facts) (bool, error)
	String() string
}

// Requirement keys.
const (
	ReqApt      = "apt"
	ReqSnap     = "snap"
	ReqSystemd  = "systemd"
	ReqProperty = "property"
	ReqPath     = "path"
	ReqAnd      = "and"
	ReqOr       = "or"
	ReqNot      = "not"
)

// aptReq is met when any of the named packages is installed.
type aptReq struct{ names []string }

func (r aptReq) Eval(f facts.Facts) (bool, error) {
	for _, n := range r.names {
		if _, ok := f.PackageVersion(n); ok {
			return true, nil
		}
	}

	return false, nil
}

func (r aptReq) String() string { return "apt(" + strings.Join(r.names, ",") + ")" }

// snapReq is met when any of the named snaps is installed.
type snapReq struct{ names []string }

func (r snapReq) Eval(f facts.Facts) (bool, error) {
	for _, n := range r.names {
		if _, ok := f.SnapVersion(n); ok {
			return true, nil
		}
	}

	return false, nil
}

func (r snapReq) String() string { return "snap(" + strings.Join(r.names, ",") + ")" }

// systemdReq is met when every named service exists and, if states are
// given, is in one of them.
type systemdReq struct {
	services map[string][]facts.ServiceState
}

func (r systemdReq) Eval(f facts.Facts) (bool, error) {
	for name, states := range r.services {
		got, ok := f.ServiceState(name)
		if !ok {
			return false, nil
		}

		if len(states) == 0 {
			continue
		}

		matched := false

		for _, s := range states {
			if s == got {
				matched = true

				break
			}
		}

		if !matched {
			return false, nil
		}
	}

	return true, nil
}

func (r systemdReq) String() string {
	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}

	sort.Strings(names)

	return "systemd(" + strings.Join(names, ",") + ")"
}

// propertyReq is met when the property's value, threaded through steps, is
// truthy. A missing property is never met.
type propertyReq struct {
	name  string
	steps []Step
}

func (r propertyReq) Eval(f facts.Facts) (bool, error) {
	val, ok := f.Property(r.name)
	if !ok {
		return false, nil
	}

	out, err := RunSteps(val, r.steps, Env{Facts: f})
	if err != nil {
		return false, fmt.Errorf("property %s: %w", r.name, err)
	}

	return Truthy(out), nil
}

func (r propertyReq) String() string { return "property(" + r.name + ")" }

type pathReq struct{ path string }

func (r pathReq) Eval(f facts.Facts) (bool, error) { return f.PathExists(r.path), nil }

func (r pathReq) String() string { return "path(" + r.path + ")" }

type allReq []Requirement

func (r allReq) Eval(f facts.Facts) (bool, error) {
	for _, sub := range r {
		ok, err := sub.Eval(f)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func (r allReq) String() string { return "and(" + joinReqs(r) + ")" }

type anyReq []Requirement

func (r anyReq) Eval(f facts.Facts) (bool, error) {
	for _, sub := range r {
		ok, err := sub.Eval(f)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

func (r anyReq) String() string { return "or(" + joinReqs(r) + ")" }

type notReq struct{ inner Requirement }

func (r notReq) Eval(f facts.Facts) (bool, error) {
	ok, err := r.inner.Eval(f)

	return !ok, err
}

func (r notReq) String() string { return "not(" + r.inner.String() + ")" }

func joinReqs(reqs []Requirement) string {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = r.String()
	}

	return strings.Join(parts, ",")
}

// ParseRequires parses a requirement mapping or a list of mappings. Several
// keys in one mapping, and several list entries, must all be met.
func ParseRequires(raw any) (Requirement, error) {
	switch t := raw.(type) {
	case []any:
		out := make(allReq, 0, len(t))

		for _, e := range t {
			r, err := ParseRequires(e)
			if err != nil {
				return nil, err
			}

			out = append(out, r)
		}

		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		out := make(allReq, 0, len(keys))

		for _, k := range keys {
			r, err := parseRequirement(k, t[k])
			if err != nil {
				return nil, err
			}

			out = append(out, r)
		}

		if len(out) == 1 {
			return out[0], nil
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: requires must be a mapping or list, got %v", ErrSyntax, raw)
	}
}

func parseRequirement(key string, val any) (Requirement, error) {
	switch key {
	case ReqApt:
		names, err := stringList(val)
		if err != nil {
			return nil, fmt.Errorf("apt: %w", err)
		}

		return aptReq{names: names}, nil
	case ReqSnap:
		names, err := stringList(val)
		if err != nil {
			return nil, fmt.Errorf("snap: %w", err)
		}

		return snapReq{names: names}, nil
	case ReqSystemd:
		return parseSystemd(val)
	case ReqProperty:
		return parseProperty(val)
	case ReqPath:
		p, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: path must be a string", ErrSyntax)
		}

		return pathReq{path: p}, nil
	case ReqAnd, ReqOr:
		list, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes a list", ErrSyntax, key)
		}

		subs := make([]Requirement, 0, len(list))

		for _, e := range list {
			r, err := ParseRequires(e)
			if err != nil {
				return nil, err
			}

			subs = append(subs, r)
		}

		if key == ReqAnd {
			return allReq(subs), nil
		}

		return anyReq(subs), nil
	case ReqNot:
		inner, err := ParseRequires(val)
		if err != nil {
			return nil, err
		}

		return notReq{inner: inner}, nil
	default:
		return nil, fmt.Errorf("%w: unknown requirement type %q", ErrSyntax, key)
	}
}

func parseSystemd(val any) (Requirement, error) {
	r := systemdReq{services: make(map[string][]facts.ServiceState, 2)}

	switch t := val.(type) {
	case string, []any:
		names, err := stringList(t)
		if err != nil {
			return nil, fmt.Errorf("systemd: %w", err)
		}

		for _, n := range names {
			r.services[n] = nil
		}
	case map[string]any:
		for name, states := range t {
			list, err := stringList(states)
			if err != nil {
				return nil, fmt.Errorf("systemd %s: %w", name, err)
			}

			wanted := make([]facts.ServiceState, 0, len(list))
			for _, s := range list {
				wanted = append(wanted, facts.ServiceState(s))
			}

			r.services[name] = wanted
		}
	default:
		return nil, fmt.Errorf("%w: systemd takes a name, list or mapping", ErrSyntax)
	}

	return r, nil
}

func parseProperty(val any) (Requirement, error) {
	switch t := val.(type) {
	case string:
		return propertyReq{name: t}, nil
	case map[string]any:
		name, ok := t["path"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: property mapping needs a path", ErrSyntax)
		}

		r := propertyReq{name: name}

		if raw, ok := t["ops"]; ok {
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: property ops must be a list", ErrSyntax)
			}

			steps, err := ParseSteps(list)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}

			r.steps = steps
		}

		return r, nil
	default:
		return nil, fmt.Errorf("%w: property takes a path or mapping", ErrSyntax)
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))

		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected string, got %v", ErrSyntax, e)
			}

			out = append(out, s)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected string or list, got %v", ErrSyntax, v)
	}
}

// EvalRequires parses raw and evaluates it against f.
func EvalRequires(raw any, f facts.Facts) (bool, error) {
	r, err := ParseRequires(raw)
	if err != nil {
		return false, err
	}

	return r.Eval(f)
}
