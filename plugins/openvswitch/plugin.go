// Package openvswitch is the Open vSwitch analysis domain.
package openvswitch

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/ycheck/pkg/plugin"
)

// Name is the domain name.
const Name = "openvswitch"

//go:embed defs
var defsFS embed.FS

// Plugin implements plugin.Plugin for Open vSwitch.
type Plugin struct {
	cfg Config
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates a new openvswitch plugin.
func New() *Plugin {
	p := &Plugin{}
	p.cfg.ApplyDefaults()

	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return Name }

// Init parses the plugin section of the config file. Empty input keeps
// the defaults.
func (p *Plugin) Init(rawConfig []byte) error {
	p.cfg = Config{}

	if len(rawConfig) > 0 {
		if err := yaml.Unmarshal(rawConfig, &p.cfg); err != nil {
			return fmt.Errorf("parsing openvswitch config: %w", err)
		}
	}

	p.cfg.ApplyDefaults()

	return p.cfg.Validate()
}

// Packages returns the patterns selecting Open vSwitch and OVN packages.
func (p *Plugin) Packages() []string {
	return []string{
		`^openvswitch-`,
		`^python3?-openvswitch`,
		`^ovn-`,
		`^microovn$`,
	}
}

// Services returns the patterns selecting Open vSwitch and OVN services.
func (p *Plugin) Services() []string {
	return []string{
		`^ovs-`,
		`^ovsdb-`,
		`^openvswitch-`,
		`^ovn-`,
	}
}

// Definitions returns the bundled rule definitions.
func (p *Plugin) Definitions() fs.FS {
	sub, err := fs.Sub(defsFS, "defs")
	if err != nil {
		// defs is embedded at build time.
		panic(err)
	}

	return sub
}
