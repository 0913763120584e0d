// Package config provides configuration loading for ycheck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/ycheck/pkg/defaults"
	"github.com/ethpandaops/ycheck/pkg/issues"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/options"
)

// DefaultPath is read when no path is given and CONFIG_PATH is unset.
const DefaultPath = defaults.ConfigPath

// Config is the main configuration structure.
type Config struct {
	Logging observability.LoggerConfig `yaml:"logging"`
	Metrics MetricsConfig              `yaml:"metrics"`
	// WorkRoot is the parent of the per-domain working directories.
	WorkRoot string `yaml:"work_root"`
	// BugTrackers maps raised types to the URL prefix of their tracker.
	// Entries are added to the built-in trackers.
	BugTrackers map[string]string `yaml:"bug_trackers,omitempty"`
	// Options are applied to the option registry before any domain runs.
	Options map[string]any `yaml:"options,omitempty"`
	// Plugins holds the raw config section of each domain plugin.
	Plugins map[string]yaml.Node `yaml:"plugins,omitempty"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics of a run in the node_exporter
	// textfile format.
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config

	applyDefaults(&cfg)

	return &cfg
}

// Load loads configuration from a YAML file with environment variable substitution.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = DefaultPath
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// Substitute environment variables
	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("substituting env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// PluginConfigYAML returns the raw YAML bytes for a given plugin name.
// Returns nil if the plugin is not configured.
func (c *Config) PluginConfigYAML(name string) ([]byte, error) {
	node, ok := c.Plugins[name]
	if !ok {
		return nil, nil
	}

	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("marshaling plugin %q config: %w", name, err)
	}

	return data, nil
}

// PluginConfigs returns the raw config section of every configured plugin.
func (c *Config) PluginConfigs() (map[string][]byte, error) {
	out := make(map[string][]byte, len(c.Plugins))

	for name := range c.Plugins {
		data, err := c.PluginConfigYAML(name)
		if err != nil {
			return nil, err
		}

		out[name] = data
	}

	return out, nil
}

// Trackers returns the built-in bug trackers extended by BugTrackers.
func (c *Config) Trackers() issues.Trackers {
	t := issues.DefaultTrackers()
	for kind, prefix := range c.BugTrackers {
		t[kind] = prefix
	}

	return t
}

// ApplyOptions writes the options section to reg. Nothing is written when
// any value is unknown or invalid.
func (c *Config) ApplyOptions(reg *options.Registry) error {
	if len(c.Options) == 0 {
		return nil
	}

	if err := reg.SetMany(c.Options); err != nil {
		return fmt.Errorf("applying options: %w", err)
	}

	return nil
}

// envVarWithDefaultPattern matches ${VAR_NAME:-default} patterns.
var envVarWithDefaultPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variable values.
// Lines that are comments (starting with #) are skipped.
// Missing environment variables without defaults are replaced with empty strings (lenient mode).
func substituteEnvVars(content string) (string, error) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		// Skip lines that are YAML comments.
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		lines[i] = envVarWithDefaultPattern.ReplaceAllStringFunc(line, func(match string) string {
			parts := envVarWithDefaultPattern.FindStringSubmatch(match)
			varName := parts[1]
			defaultVal := ""
			if len(parts) > 2 {
				defaultVal = parts[2]
			}

			value := os.Getenv(varName)
			if value == "" {
				return defaultVal
			}

			return value
		})
	}

	return strings.Join(lines, "\n"), nil
}

// applyDefaults sets default values for configuration fields.
func applyDefaults(cfg *Config) {
	cfg.Logging.ApplyDefaults()

	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), defaults.WorkDirName)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !observability.IsValidLogLevel(string(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is invalid", c.Logging.Level)
	}

	if !observability.IsValidLogFormat(string(c.Logging.Format)) {
		return fmt.Errorf("logging.format %q is invalid", c.Logging.Format)
	}

	for kind, prefix := range c.BugTrackers {
		if kind == "" || prefix == "" {
			return fmt.Errorf("bug_trackers entry %q needs a type and a URL prefix", kind)
		}
	}

	return nil
}
