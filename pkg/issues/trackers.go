package issues

import (
	"strings"

	"github.com/ethpandaops/ycheck/pkg/defaults"
)

// DefaultBugKind is the raised type recognised as a bug when no trackers
// are configured.
const DefaultBugKind = defaults.BugTracker

// Trackers maps raised types that denote bugs to the URL prefix of their
// tracker.
type Trackers map[string]string

// DefaultTrackers returns the built-in bug trackers.
func DefaultTrackers() Trackers {
	return Trackers{
		DefaultBugKind: defaults.BugTrackerURL,
	}
}

// IsBug reports whether kind is a bug type.
func (t Trackers) IsBug(kind string) bool {
	_, ok := t[kind]

	return ok
}

// BugID returns the tracker reference of bug id raised as kind.
func (t Trackers) BugID(kind, id string) string {
	prefix := t[kind]
	if prefix == "" || strings.HasPrefix(id, prefix) {
		return id
	}

	return prefix + id
}
