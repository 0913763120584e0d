package defs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnresolvedReference is returned when a ${path} names nothing in
	// the tree.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrReferenceCycle is returned when references form a loop.
	ErrReferenceCycle = errors.New("reference cycle")
	// ErrNonScalarReference is returned when a ${path} names a mapping or
	// a list.
	ErrNonScalarReference = errors.New("reference to non-scalar value")
)

const (
	refOpen  = "${"
	refClose = "}"
)

// segment is one piece of a tokenized string: either literal text or a
// reference path.
type segment struct {
	text string
	ref  bool
}

// tokenize splits s into literal and reference segments. An unterminated
// "${" is kept as literal text.
func tokenize(s string) []segment {
	var out []segment

	for {
		start := strings.Index(s, refOpen)
		if start < 0 {
			break
		}

		end := strings.Index(s[start+len(refOpen):], refClose)
		if end < 0 {
			break
		}

		if start > 0 {
			out = append(out, segment{text: s[:start]})
		}

		path := strings.TrimSpace(s[start+len(refOpen) : start+len(refOpen)+end])
		out = append(out, segment{text: path, ref: true})
		s = s[start+len(refOpen)+end+len(refClose):]
	}

	if s != "" {
		out = append(out, segment{text: s})
	}

	return out
}

func hasRefs(segs []segment) bool {
	for _, s := range segs {
		if s.ref {
			return true
		}
	}

	return false
}

// Resolve returns a copy of tree with every ${dotted.path} placeholder
// replaced by the string form of the value at that path. Paths are absolute
// from the root of tree and may point forward. List elements are addressed
// by index. Resolving an already resolved tree is a no-op.
func Resolve(tree map[string]any) (map[string]any, error) {
	scalars := make(map[string]any, 64)
	containers := make(map[string]struct{}, 16)
	flatten("", tree, scalars, containers)

	// Build the dependency graph between reference-bearing strings.
	tokens := make(map[string][]segment, 8)
	for p, v := range scalars {
		s, ok := v.(string)
		if !ok {
			continue
		}

		segs := tokenize(s)
		if hasRefs(segs) {
			tokens[p] = segs
		}
	}

	if len(tokens) == 0 {
		return deepCopy(tree).(map[string]any), nil
	}

	dependents := make(map[string][]string, len(tokens))
	indegree := make(map[string]int, len(tokens))

	for p, segs := range tokens {
		indegree[p] += 0

		for _, s := range segs {
			if !s.ref {
				continue
			}

			if _, ok := scalars[s.text]; !ok {
				if _, isContainer := containers[s.text]; isContainer {
					return nil, fmt.Errorf("%w: ${%s} at %s", ErrNonScalarReference, s.text, p)
				}

				return nil, fmt.Errorf("%w: ${%s} at %s", ErrUnresolvedReference, s.text, p)
			}

			if _, ok := tokens[s.text]; ok {
				dependents[s.text] = append(dependents[s.text], p)
				indegree[p]++
			}
		}
	}

	// Kahn's algorithm; anything left with a positive indegree is on or
	// behind a cycle.
	queue := make([]string, 0, len(tokens))
	for p, d := range indegree {
		if d == 0 {
			queue = append(queue, p)
		}
	}

	sort.Strings(queue)

	resolved := make(map[string]string, len(tokens))

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		var b strings.Builder

		for _, s := range tokens[p] {
			if !s.ref {
				b.WriteString(s.text)

				continue
			}

			if r, ok := resolved[s.text]; ok {
				b.WriteString(r)
			} else {
				b.WriteString(stringify(scalars[s.text]))
			}
		}

		resolved[p] = b.String()

		next := dependents[p]
		sort.Strings(next)

		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(resolved) != len(tokens) {
		var stuck []string

		for p := range tokens {
			if _, ok := resolved[p]; !ok {
				stuck = append(stuck, p)
			}
		}

		sort.Strings(stuck)

		return nil, fmt.Errorf("%w: %s", ErrReferenceCycle, strings.Join(stuck, ", "))
	}

	out := deepCopy(tree).(map[string]any)
	for p, v := range resolved {
		assign(out, p, v)
	}

	return out, nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "." + name
}

func flatten(prefix string, v any, scalars map[string]any, containers map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		if prefix != "" {
			containers[prefix] = struct{}{}
		}

		for k, val := range t {
			flatten(join(prefix, k), val, scalars, containers)
		}
	case []any:
		containers[prefix] = struct{}{}

		for i, val := range t {
			flatten(join(prefix, strconv.Itoa(i)), val, scalars, containers)
		}
	default:
		scalars[prefix] = v
	}
}

// assign sets the scalar at dotted path p. Keys containing dots are matched
// greedily against the remaining path.
func assign(root map[string]any, p string, value string) {
	var cur any = root

	rest := p
	for rest != "" {
		switch t := cur.(type) {
		case map[string]any:
			k, next, ok := matchKey(t, rest)
			if !ok {
				return
			}

			if next == "" {
				t[k] = value

				return
			}

			cur, rest = t[k], next
		case []any:
			head, next, _ := strings.Cut(rest, ".")

			i, err := strconv.Atoi(head)
			if err != nil || i < 0 || i >= len(t) {
				return
			}

			if next == "" {
				t[i] = value

				return
			}

			cur, rest = t[i], next
		default:
			return
		}
	}
}

func matchKey(m map[string]any, rest string) (key, next string, ok bool) {
	if _, exists := m[rest]; exists {
		return rest, "", true
	}

	parts := strings.Split(rest, ".")
	for i := len(parts) - 1; i >= 1; i-- {
		k := strings.Join(parts[:i], ".")
		if _, exists := m[k]; exists {
			return k, strings.Join(parts[i:], "."), true
		}
	}

	return "", "", false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}
