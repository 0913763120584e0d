// Package facts provides the host facts that requirement predicates are
// evaluated against: installed packages, service states and arbitrary
// named properties collected from a snapshot.
package facts

import "strings"

// ServiceState is the state of a service unit as captured in the snapshot.
type ServiceState string

const (
	ServiceUnknown  ServiceState = ""
	ServiceEnabled  ServiceState = "enabled"
	ServiceDisabled ServiceState = "disabled"
	ServiceMasked   ServiceState = "masked"
	ServiceStatic   ServiceState = "static"
	ServiceIndirect ServiceState = "indirect"
)

// Facts is implemented by fact providers. Missing facts are reported through
// the boolean returns; callers treat them as "requirement not met".
type Facts interface {
	// PackageVersion returns the installed version of a deb package.
	PackageVersion(name string) (string, bool)
	// SnapVersion returns the installed version of a snap.
	SnapVersion(name string) (string, bool)
	// ServiceState returns the unit state of a service.
	ServiceState(name string) (ServiceState, bool)
	// Property returns a named host property.
	Property(name string) (any, bool)
	// PathExists reports whether a path exists in the snapshot.
	PathExists(path string) bool
}

// Static is an in-memory fact provider.
type Static struct {
	Packages   map[string]string
	Snaps      map[string]string
	Services   map[string]ServiceState
	Properties map[string]any
	Paths      map[string]bool
}

var _ Facts = (*Static)(nil)

// PackageVersion implements Facts.
func (s *Static) PackageVersion(name string) (string, bool) {
	v, ok := s.Packages[name]

	return v, ok
}

// SnapVersion implements Facts.
func (s *Static) SnapVersion(name string) (string, bool) {
	v, ok := s.Snaps[name]

	return v, ok
}

// ServiceState implements Facts.
func (s *Static) ServiceState(name string) (ServiceState, bool) {
	v, ok := s.Services[strings.TrimSuffix(name, ".service")]

	return v, ok
}

// Property implements Facts. Dotted names are also looked up through nested
// maps, so "a.b" finds Properties["a"]["b"].
func (s *Static) Property(name string) (any, bool) {
	return lookupProperty(s.Properties, name)
}

// PathExists implements Facts.
func (s *Static) PathExists(path string) bool {
	return s.Paths[path]
}

func lookupProperty(props map[string]any, name string) (any, bool) {
	if v, ok := props[name]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(name, ".")
	if !found {
		return nil, false
	}

	sub, ok := props[head].(map[string]any)
	if !ok {
		return nil, false
	}

	return lookupProperty(sub, rest)
}
