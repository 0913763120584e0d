package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/ycheck/pkg/config"
	"github.com/ethpandaops/ycheck/pkg/plugin"

	ovsplugin "github.com/ethpandaops/ycheck/plugins/openvswitch"
)

// buildPluginRegistry creates a plugin registry with all compiled-in plugins
// and initializes them with their config sections.
func buildPluginRegistry(cfg *config.Config) (*plugin.Registry, error) {
	reg := plugin.NewRegistry(log)

	reg.Add(ovsplugin.New())

	raw, err := cfg.PluginConfigs()
	if err != nil {
		return nil, err
	}

	if err := reg.InitAll(raw); err != nil {
		return nil, err
	}

	return reg, nil
}

// outputJSON marshals a value to JSON and writes it to w.
func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

// outputYAML encodes a value as YAML to w.
func outputYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}

	return enc.Close()
}

// isTerminal returns true if stdout is a terminal (TTY).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
