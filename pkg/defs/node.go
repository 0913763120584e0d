package defs

import (
	"sort"
	"strings"
)

// Property keys. Any other key whose value is a mapping becomes a child
// group.
const (
	KeyInput       = "input"
	KeyRequires    = "requires"
	KeyExpr        = "expr"
	KeyHint        = "hint"
	KeyStart       = "start"
	KeyBody        = "body"
	KeyEnd         = "end"
	KeyPassthrough = "passthrough-results"
	KeyVars        = "vars"
	KeyChecks      = "checks"
	KeyConclusions = "conclusions"
	KeyDecision    = "decision"
	KeyRaises      = "raises"
	KeyPriority    = "priority"
	KeyConstraints = "constraints"
)

var propertyKeys = map[string]struct{}{
	KeyInput:       {},
	KeyRequires:    {},
	KeyExpr:        {},
	KeyHint:        {},
	KeyStart:       {},
	KeyBody:        {},
	KeyEnd:         {},
	KeyPassthrough: {},
	KeyVars:        {},
	KeyChecks:      {},
	KeyConclusions: {},
	KeyDecision:    {},
	KeyRaises:      {},
	KeyPriority:    {},
	KeyConstraints: {},
}

// IsPropertyKey reports whether key names a node property rather than a
// child group.
func IsPropertyKey(key string) bool {
	_, ok := propertyKeys[key]

	return ok
}

// Node is a group (has children) or a leaf (a rule) in a definition tree.
// Each node is owned by its parent.
type Node struct {
	Name     string
	Parent   *Node
	Props    map[string]any
	Children []*Node
	// Source is the document this node was read from. Only set on nodes
	// that correspond to a whole document.
	Source string
}

// Build creates a node tree from resolved content. sources maps dotted
// paths (rooted at name) to document file names.
func Build(name string, content map[string]any, sources map[string]string) *Node {
	return build(nil, name, name, content, sources)
}

func build(parent *Node, name, path string, content map[string]any, sources map[string]string) *Node {
	n := &Node{
		Name:   name,
		Parent: parent,
		Props:  make(map[string]any, len(content)),
		Source: sources[path],
	}

	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		v := content[k]

		sub, isMap := v.(map[string]any)
		if isMap && !IsPropertyKey(k) {
			n.Children = append(n.Children, build(n, k, path+"."+k, sub, sources))

			continue
		}

		n.Props[k] = v
	}

	return n
}

// IsLeaf reports whether the node has no child groups.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Path returns the dotted path of n from the tree root, including the root.
func (n *Node) Path() string {
	if n.Parent == nil {
		return n.Name
	}

	return n.Parent.Path() + "." + n.Name
}

// RelPath returns the dotted path of n below the tree root.
func (n *Node) RelPath() string {
	if n.Parent == nil {
		return ""
	}

	if n.Parent.Parent == nil {
		return n.Name
	}

	return n.Parent.RelPath() + "." + n.Name
}

// Root returns the root of the tree n belongs to.
func (n *Node) Root() *Node {
	for n.Parent != nil {
		n = n.Parent
	}

	return n
}

// Get returns a property defined on n itself.
func (n *Node) Get(key string) (any, bool) {
	v, ok := n.Props[key]

	return v, ok
}

// Lookup returns the property from n or its nearest ancestor that defines
// it.
func (n *Node) Lookup(key string) (any, bool) {
	for cur := n; cur != nil; cur = cur.Parent {
		if v, ok := cur.Props[key]; ok {
			return v, true
		}
	}

	return nil, false
}

// Vars returns the vars of n merged with those of its ancestors; nearer
// definitions win.
func (n *Node) Vars() map[string]any {
	out := make(map[string]any, 8)

	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		vars, ok := chain[i].Props[KeyVars].(map[string]any)
		if !ok {
			continue
		}

		for k, v := range vars {
			out[k] = v
		}
	}

	return out
}

// SourceFile returns the document n was read from, walking up to the
// nearest node that carries one.
func (n *Node) SourceFile() string {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Source != "" {
			return cur.Source
		}
	}

	return ""
}

// Child returns the direct child called name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// Find returns the descendant at the dotted path relative to n.
func (n *Node) Find(path string) *Node {
	if path == "" {
		return n
	}

	cur := n
	for _, part := range strings.Split(path, ".") {
		cur = cur.Child(part)
		if cur == nil {
			return nil
		}
	}

	return cur
}

// Leaves returns every leaf below n in depth-first, name-sorted order. A
// leaf root returns itself.
func (n *Node) Leaves() []*Node {
	if n.IsLeaf() {
		return []*Node{n}
	}

	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}

	return out
}

// Walk calls fn for n and every descendant, parents first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)

	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Raw converts the subtree back to plain mappings.
func (n *Node) Raw() map[string]any {
	out := make(map[string]any, len(n.Props)+len(n.Children))
	for k, v := range n.Props {
		out[k] = v
	}

	for _, c := range n.Children {
		out[c.Name] = c.Raw()
	}

	return out
}
