package openvswitch

import (
	"errors"
	"path/filepath"
)

// Snapshot-relative captures read for host properties.
const (
	DefaultBridgesPath     = "sos_commands/openvswitch/ovs-vsctl_-t_5_list-br"
	DefaultOtherConfigPath = "sos_commands/openvswitch/ovs-vsctl_-t_5_get_Open_vSwitch_._other_config"
)

// Config is the openvswitch section of the config file.
type Config struct {
	// BridgesPath is the capture of `ovs-vsctl list-br`.
	BridgesPath string `yaml:"bridges_path"`
	// OtherConfigPath is the capture of the Open_vSwitch other_config column.
	OtherConfigPath string `yaml:"other_config_path"`
}

// ApplyDefaults fills unset capture paths.
func (c *Config) ApplyDefaults() {
	if c.BridgesPath == "" {
		c.BridgesPath = DefaultBridgesPath
	}

	if c.OtherConfigPath == "" {
		c.OtherConfigPath = DefaultOtherConfigPath
	}
}

// Validate checks that capture paths are relative to the snapshot root.
func (c *Config) Validate() error {
	if filepath.IsAbs(c.BridgesPath) || filepath.IsAbs(c.OtherConfigPath) {
		return errors.New("capture paths must be relative to the data root")
	}

	return nil
}
