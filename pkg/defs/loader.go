// Package defs loads rule definition trees from a directory of YAML
// documents, resolves ${...} references inside them and exposes a typed
// group/leaf view over the result.
package defs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateName is returned when a directory and a document in the same
// directory would produce the same tree key.
var ErrDuplicateName = errors.New("duplicate definition name")

// Tree is a loaded and resolved definition tree for one domain.
type Tree struct {
	// Root is the group named after the domain.
	Root *Node
	// Files lists the documents that contributed to the tree, excluding
	// directory-global files.
	Files []string
}

// Loader builds definition trees from a filesystem. Results are cached per
// domain for the lifetime of the loader.
type Loader struct {
	log   logrus.FieldLogger
	fsys  fs.FS
	mu    sync.Mutex
	cache map[string]*Tree
}

// NewLoader creates a loader reading from fsys. Domains are top-level
// directories of fsys.
func NewLoader(log logrus.FieldLogger, fsys fs.FS) *Loader {
	return &Loader{
		log:   log.WithField("component", "defs_loader"),
		fsys:  fsys,
		cache: make(map[string]*Tree, 4),
	}
}

// Load returns the resolved definition tree of domain. It returns a nil tree
// and no error when the domain holds no loadable documents.
func (l *Loader) Load(domain string) (*Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.cache[domain]; ok {
		return t, nil
	}

	log := l.log.WithField("domain", domain)

	if _, err := fs.Stat(l.fsys, domain); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("No definitions directory for domain")

			return nil, nil
		}

		return nil, fmt.Errorf("reading definitions of %s: %w", domain, err)
	}

	w := &walker{fsys: l.fsys, sources: make(map[string]string, 16)}

	content, err := w.loadDir(domain, domain)
	if err != nil {
		return nil, fmt.Errorf("loading definitions of %s: %w", domain, err)
	}

	if len(w.files) == 0 {
		log.Debug("Nothing to load")

		return nil, nil
	}

	resolved, err := Resolve(map[string]any{domain: content})
	if err != nil {
		return nil, fmt.Errorf("resolving definitions of %s: %w", domain, err)
	}

	root, err := asMap(resolved[domain], domain)
	if err != nil {
		return nil, err
	}

	sort.Strings(w.files)

	t := &Tree{
		Root:  Build(domain, root, w.sources),
		Files: w.files,
	}

	l.cache[domain] = t

	log.WithField("file_count", len(t.Files)).Debug("Definitions loaded")

	return t, nil
}

// Reset drops all cached trees.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]*Tree, 4)
}

type walker struct {
	fsys    fs.FS
	files   []string
	sources map[string]string
}

func isDocument(name string) bool {
	ext := path.Ext(name)

	return ext == ".yaml" || ext == ".yml"
}

func docName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// loadDir loads dir whose dotted tree path is treePath. Only the global file
// of dir itself is merged into the documents of dir.
func (w *walker) loadDir(dir, treePath string) (map[string]any, error) {
	entries, err := fs.ReadDir(w.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var globals map[string]any

	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) || docName(e.Name()) != path.Base(dir) {
			continue
		}

		globals, err = w.readDocument(path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}

		break
	}

	out := make(map[string]any, len(entries))

	for _, e := range entries {
		name := e.Name()
		full := path.Join(dir, name)

		switch {
		case e.IsDir():
			sub, err := w.loadDir(full, treePath+"."+name)
			if err != nil {
				return nil, err
			}

			if len(sub) == 0 {
				continue
			}

			if _, ok := out[name]; ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, full)
			}

			out[name] = sub
		case isDocument(name):
			if docName(name) == path.Base(dir) {
				continue
			}

			doc, err := w.readDocument(full)
			if err != nil {
				return nil, err
			}

			for k, v := range globals {
				if _, ok := doc[k]; !ok {
					doc[k] = deepCopy(v)
				}
			}

			key := docName(name)
			if _, ok := out[key]; ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, full)
			}

			out[key] = doc
			w.files = append(w.files, full)
			w.sources[treePath+"."+key] = full
		}
	}

	return out, nil
}

func (w *walker) readDocument(name string) (map[string]any, error) {
	data, err := fs.ReadFile(w.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	if raw == nil {
		return make(map[string]any), nil
	}

	return asMap(normalize(raw), name)
}

func asMap(v any, name string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: top level must be a mapping, got %T", name, v)
	}

	return m, nil
}

// normalize converts YAML-decoded values so every mapping is map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}

		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}

		return out
	default:
		return v
	}
}

func deepCopy(v any) any {
	return normalize(v)
}
