// Package options provides the process-wide typed option registry consumed by
// the ycheck engine.
//
// Options are declared in named groups. Group names and option names share a
// single case-insensitive namespace across every registered group. Values
// written with Set are coerced to the option's declared type.
package options

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	// ErrUnknownOption is returned when reading or writing an option that was
	// never registered.
	ErrUnknownOption = errors.New("unknown option")
	// ErrNameCollision is returned when a group or option name is registered
	// twice (case-insensitive).
	ErrNameCollision = errors.New("name already registered")
)

// ValueType is the declared type of an option value.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
	TypeFloat
	// TypeDuration accepts Go duration strings ("30s") or a number of seconds.
	TypeDuration
)

// String returns the type name.
func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	case TypeDuration:
		return "duration"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// Coerce converts v to the Go type backing t.
func (t ValueType) Coerce(v any) (any, error) {
	switch t {
	case TypeString:
		return cast.ToStringE(v)
	case TypeInt:
		return cast.ToIntE(v)
	case TypeBool:
		return cast.ToBoolE(v)
	case TypeFloat:
		return cast.ToFloat64E(v)
	case TypeDuration:
		switch n := v.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			secs, err := cast.ToFloat64E(n)
			if err != nil {
				return nil, err
			}

			return time.Duration(secs * float64(time.Second)), nil
		}

		return cast.ToDurationE(v)
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

// Option describes one configurable value. Options are immutable once
// registered.
type Option struct {
	Name        string
	Description string
	Default     any
	Type        ValueType
}

// Group is a named, ordered collection of options.
type Group struct {
	Name    string
	Options []Option
}

// NewGroup creates an option group.
func NewGroup(name string, opts ...Option) Group {
	return Group{Name: name, Options: opts}
}

// Registry maps option names to their current values. It provides no
// locking; callers must not mutate it concurrently with readers.
type Registry struct {
	groups   map[string]string
	options  map[string]Option
	defaults map[string]any
	values   map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups:   make(map[string]string, 4),
		options:  make(map[string]Option, 16),
		defaults: make(map[string]any, 16),
		values:   make(map[string]any, 16),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds groups to the registry and seeds their defaults. Either all
// groups are registered or, on error, none are.
func (r *Registry) Register(groups ...Group) error {
	seen := make(map[string]string, 16)
	pending := make(map[string]any, 16)

	claim := func(name, owner string) error {
		k := key(name)
		if prev, ok := r.groups[k]; ok {
			return fmt.Errorf("%w: %q (group %s)", ErrNameCollision, name, prev)
		}

		if opt, ok := r.options[k]; ok {
			return fmt.Errorf("%w: %q (option %s)", ErrNameCollision, name, opt.Name)
		}

		if prev, ok := seen[k]; ok {
			return fmt.Errorf("%w: %q (%s)", ErrNameCollision, name, prev)
		}

		seen[k] = owner

		return nil
	}

	for _, g := range groups {
		if err := claim(g.Name, "group "+g.Name); err != nil {
			return err
		}

		for _, opt := range g.Options {
			if err := claim(opt.Name, "option in group "+g.Name); err != nil {
				return err
			}

			val, err := opt.Type.Coerce(opt.Default)
			if err != nil {
				return fmt.Errorf("coercing default of option %q to %s: %w", opt.Name, opt.Type, err)
			}

			pending[key(opt.Name)] = val
		}
	}

	for _, g := range groups {
		r.groups[key(g.Name)] = g.Name

		for _, opt := range g.Options {
			k := key(opt.Name)
			r.options[k] = opt
			r.defaults[k] = pending[k]
			r.values[k] = pending[k]
		}
	}

	return nil
}

// Get returns the current value of an option.
func (r *Registry) Get(name string) (any, error) {
	k := key(name)
	if _, ok := r.options[k]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}

	return r.values[k], nil
}

// Set coerces value to the option's type and stores it.
func (r *Registry) Set(name string, value any) error {
	k := key(name)

	opt, ok := r.options[k]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}

	val, err := opt.Type.Coerce(value)
	if err != nil {
		return fmt.Errorf("setting option %q: cannot coerce %v to %s: %w", opt.Name, value, opt.Type, err)
	}

	r.values[k] = val

	return nil
}

// SetMany applies several values. Nothing is written unless every value is
// valid.
func (r *Registry) SetMany(values map[string]any) error {
	coerced := make(map[string]any, len(values))

	for name, value := range values {
		k := key(name)

		opt, ok := r.options[k]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOption, name)
		}

		val, err := opt.Type.Coerce(value)
		if err != nil {
			return fmt.Errorf("setting option %q: cannot coerce %v to %s: %w", opt.Name, value, opt.Type, err)
		}

		coerced[k] = val
	}

	for k, v := range coerced {
		r.values[k] = v
	}

	return nil
}

// Reset discards every Set and restores the registered defaults.
func (r *Registry) Reset() {
	r.values = make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		r.values[k] = v
	}
}

// Snapshot returns a copy of the current values keyed by option name.
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[r.options[k].Name] = v
	}

	return out
}

// Defaults returns a copy of the registered defaults keyed by option name.
func (r *Registry) Defaults() map[string]any {
	out := make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		out[r.options[k].Name] = v
	}

	return out
}

// Options returns all registered options sorted by name.
func (r *Registry) Options() []Option {
	out := make([]Option, 0, len(r.options))
	for _, opt := range r.options {
		out = append(out, opt)
	}

	sort.Slice(out, func(i, j int) bool { return key(out[i].Name) < key(out[j].Name) })

	return out
}

// String returns a string option value.
func (r *Registry) String(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}

	return cast.ToStringE(v)
}

// Int returns an int option value.
func (r *Registry) Int(name string) (int, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}

	return cast.ToIntE(v)
}

// Bool returns a bool option value.
func (r *Registry) Bool(name string) (bool, error) {
	v, err := r.Get(name)
	if err != nil {
		return false, err
	}

	return cast.ToBoolE(v)
}

// Duration returns a duration option value.
func (r *Registry) Duration(name string) (time.Duration, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}

	return cast.ToDurationE(v)
}
