// Package plugin defines domain plugins and the registry that holds them.
package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/events"
	"github.com/ethpandaops/ycheck/pkg/options"
)

// ErrPluginNotFound is returned when a plugin name is not registered.
var ErrPluginNotFound = errors.New("plugin not found")

// Plugin is one analysis domain. It declares which facts the domain cares
// about and provides the callbacks its event definitions dispatch to.
type Plugin interface {
	// Name is the domain name. Definitions live under <defs>/events/<name>
	// and <defs>/scenarios/<name>.
	Name() string
	// Init parses the plugin section of the config file. rawConfig is nil
	// when the config file has no section for the plugin.
	Init(rawConfig []byte) error
	// Packages are regular expressions selecting the deb and snap packages
	// of the domain.
	Packages() []string
	// Services are regular expressions selecting the services of the domain.
	Services() []string
	// Properties returns host properties read from the snapshot at dataRoot.
	Properties(dataRoot string) (map[string]any, error)
	// EventCallbacks maps event names to callbacks.
	EventCallbacks(opts *options.Registry) map[string]events.Callback
	// Definitions returns bundled rule definitions with events/ and
	// scenarios/ at the top level, or nil.
	Definitions() fs.FS
}

// Registry holds the available plugins.
type Registry struct {
	log         logrus.FieldLogger
	mu          sync.RWMutex
	all         map[string]Plugin
	initialized []Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{
		log: log.WithField("component", "plugin_registry"),
		all: make(map[string]Plugin, 4),
	}
}

// Add registers a plugin. A later plugin with the same name replaces the
// earlier one.
func (r *Registry) Add(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.all[p.Name()]; ok {
		r.log.WithField("plugin", p.Name()).Warn("Replacing registered plugin")
	}

	r.all[p.Name()] = p
}

// Get returns the registered plugin called name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.all[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	return p, nil
}

// Names returns the sorted names of all registered plugins.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.all))
	for name := range r.all {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// InitPlugin initializes the named plugin with its raw config section.
func (r *Registry) InitPlugin(name string, rawConfig []byte) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}

	if err := p.Init(rawConfig); err != nil {
		return fmt.Errorf("initializing plugin %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, q := range r.initialized {
		if q.Name() == name {
			r.initialized[i] = p

			return nil
		}
	}

	r.initialized = append(r.initialized, p)

	sort.Slice(r.initialized, func(i, j int) bool {
		return r.initialized[i].Name() < r.initialized[j].Name()
	})

	r.log.WithField("plugin", name).Debug("Plugin initialized")

	return nil
}

// InitAll initializes every registered plugin. configs maps plugin names to
// their raw config sections.
func (r *Registry) InitAll(configs map[string][]byte) error {
	for _, name := range r.Names() {
		if err := r.InitPlugin(name, configs[name]); err != nil {
			return err
		}
	}

	return nil
}

// Initialized returns the initialized plugins sorted by name.
func (r *Registry) Initialized() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.initialized))
	copy(out, r.initialized)

	return out
}

// Select returns the initialized plugins called names, in the order given.
// An empty names selects every initialized plugin.
func (r *Registry) Select(names []string) ([]Plugin, error) {
	initialized := r.Initialized()

	if len(names) == 0 {
		return initialized, nil
	}

	byName := make(map[string]Plugin, len(initialized))
	for _, p := range initialized {
		byName[p.Name()] = p
	}

	out := make([]Plugin, 0, len(names))

	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
		}

		out = append(out, p)
	}

	return out, nil
}
