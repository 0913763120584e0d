package facts

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Snapshot-relative locations of the command captures the provider reads.
const (
	DpkgListPath      = "sos_commands/dpkg/dpkg_-l"
	SnapListPath      = "sos_commands/snap/snap_list_--all"
	UnitFilesListPath = "sos_commands/systemd/systemctl_list-unit-files"
)

// SnapshotConfig selects which facts a domain cares about.
type SnapshotConfig struct {
	// DataRoot is the root of the extracted snapshot.
	DataRoot string
	// Packages are regular expressions matched against deb and snap names.
	// An empty list keeps every package.
	Packages []string
	// Services are regular expressions matched against service names. An
	// empty list keeps every service.
	Services []string
	// Properties are domain-supplied host properties.
	Properties map[string]any
}

// Snapshot is a fact provider backed by command captures in a snapshot.
type Snapshot struct {
	root       string
	packages   map[string]string
	snaps      map[string]string
	services   map[string]ServiceState
	properties map[string]any
}

var _ Facts = (*Snapshot)(nil)

// NewSnapshot reads the package and service captures under cfg.DataRoot.
// Captures missing from the snapshot yield no facts rather than an error.
func NewSnapshot(log logrus.FieldLogger, cfg SnapshotConfig) (*Snapshot, error) {
	log = log.WithField("component", "snapshot_facts")

	pkgRE, err := compileAll(cfg.Packages)
	if err != nil {
		return nil, fmt.Errorf("compiling package patterns: %w", err)
	}

	svcRE, err := compileAll(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("compiling service patterns: %w", err)
	}

	s := &Snapshot{
		root:       cfg.DataRoot,
		packages:   make(map[string]string, 16),
		snaps:      make(map[string]string, 4),
		services:   make(map[string]ServiceState, 16),
		properties: cfg.Properties,
	}

	if s.properties == nil {
		s.properties = make(map[string]any)
	}

	readers := []struct {
		path  string
		parse func([]byte)
	}{
		{DpkgListPath, func(b []byte) { parseDpkgList(b, pkgRE, s.packages) }},
		{SnapListPath, func(b []byte) { parseSnapList(b, pkgRE, s.snaps) }},
		{UnitFilesListPath, func(b []byte) { parseUnitFiles(b, svcRE, s.services) }},
	}

	for _, r := range readers {
		data, err := os.ReadFile(filepath.Join(cfg.DataRoot, r.path))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.WithField("path", r.path).Debug("Capture not present in snapshot")

				continue
			}

			return nil, fmt.Errorf("reading %s: %w", r.path, err)
		}

		r.parse(data)
	}

	log.WithFields(logrus.Fields{
		"packages": len(s.packages),
		"snaps":    len(s.snaps),
		"services": len(s.services),
	}).Debug("Snapshot facts collected")

	return s, nil
}

// PackageVersion implements Facts.
func (s *Snapshot) PackageVersion(name string) (string, bool) {
	v, ok := s.packages[name]

	return v, ok
}

// SnapVersion implements Facts.
func (s *Snapshot) SnapVersion(name string) (string, bool) {
	v, ok := s.snaps[name]

	return v, ok
}

// ServiceState implements Facts.
func (s *Snapshot) ServiceState(name string) (ServiceState, bool) {
	v, ok := s.services[strings.TrimSuffix(name, ".service")]

	return v, ok
}

// Property implements Facts.
func (s *Snapshot) Property(name string) (any, bool) {
	return lookupProperty(s.properties, name)
}

// PathExists implements Facts.
func (s *Snapshot) PathExists(path string) bool {
	_, err := os.Stat(filepath.Join(s.root, path))

	return err == nil
}

// Packages returns the collected deb packages and versions.
func (s *Snapshot) Packages() map[string]string {
	out := make(map[string]string, len(s.packages))
	for k, v := range s.packages {
		out[k] = v
	}

	return out
}

// Services returns the collected service states.
func (s *Snapshot) Services() map[string]ServiceState {
	out := make(map[string]ServiceState, len(s.services))
	for k, v := range s.services {
		out[k] = v
	}

	return out
}

// compileAll compiles name patterns as given. Patterns carry their own
// anchors, so "^ovs-" selects every name starting with "ovs-".
func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}

		out = append(out, re)
	}

	return out, nil
}

func matchAny(res []*regexp.Regexp, name string) bool {
	if len(res) == 0 {
		return true
	}

	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}

func eachFields(data []byte, fn func(fields []string)) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			fn(fields)
		}
	}
}

// parseDpkgList reads "dpkg -l" output; only installed ("ii") rows count.
func parseDpkgList(data []byte, res []*regexp.Regexp, out map[string]string) {
	eachFields(data, func(f []string) {
		if f[0] != "ii" || len(f) < 3 {
			return
		}

		name, _, _ := strings.Cut(f[1], ":")
		if matchAny(res, name) {
			out[name] = f[2]
		}
	})
}

// parseSnapList reads "snap list --all" output, skipping disabled revisions.
func parseSnapList(data []byte, res []*regexp.Regexp, out map[string]string) {
	eachFields(data, func(f []string) {
		if f[0] == "Name" || len(f) < 2 {
			return
		}

		if strings.Contains(f[len(f)-1], "disabled") {
			return
		}

		if matchAny(res, f[0]) {
			out[f[0]] = f[1]
		}
	})
}

// parseUnitFiles reads "systemctl list-unit-files" output for .service units.
func parseUnitFiles(data []byte, res []*regexp.Regexp, out map[string]ServiceState) {
	eachFields(data, func(f []string) {
		if len(f) < 2 || !strings.HasSuffix(f[0], ".service") {
			return
		}

		name := strings.TrimSuffix(f[0], ".service")
		name = strings.TrimSuffix(name, "@")

		if matchAny(res, name) {
			out[name] = ServiceState(f[1])
		}
	})
}
