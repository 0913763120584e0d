package options

import "github.com/ethpandaops/ycheck/pkg/defaults"

// Names of the options consumed by the engine.
const (
	PluginName            = "plugin_name"
	PluginYAMLDefs        = "plugin_yaml_defs"
	PluginTmpDir          = "plugin_tmp_dir"
	DataRoot              = "data_root"
	EventFilter           = "event_filter"
	ScenarioFilter        = "scenario_filter"
	MaxParallelTasks      = "max_parallel_tasks"
	EventTallyGranularity = "event_tally_granularity"
	MachineReadable       = "machine_readable"
	CommandTimeout        = "command_timeout"
	CommandCacheSize      = "command_cache_size"
)

// Tally granularities accepted by event_tally_granularity.
const (
	GranularityDate = "date"
	GranularityTime = "time"
)

// Core returns the option group read by the engine itself.
func Core() Group {
	return NewGroup("core",
		Option{
			Name:        PluginName,
			Description: "Name of the domain plugin currently running.",
			Default:     "",
			Type:        TypeString,
		},
		Option{
			Name:        PluginYAMLDefs,
			Description: "Root directory holding events/ and scenarios/ rule definitions. Empty uses the definitions bundled with the plugin.",
			Default:     "",
			Type:        TypeString,
		},
		Option{
			Name:        PluginTmpDir,
			Description: "Working directory of the current domain; must exist before findings are written.",
			Default:     "",
			Type:        TypeString,
		},
		Option{
			Name:        DataRoot,
			Description: "Root of the captured snapshot that input paths are relative to.",
			Default:     defaults.DataRoot,
			Type:        TypeString,
		},
		Option{
			Name:        EventFilter,
			Description: "Restrict events to a single dotted event path.",
			Default:     "",
			Type:        TypeString,
		},
		Option{
			Name:        ScenarioFilter,
			Description: "Restrict scenarios to a single dotted scenario path.",
			Default:     "",
			Type:        TypeString,
		},
		Option{
			Name:        MaxParallelTasks,
			Description: "Maximum number of concurrent search tasks.",
			Default:     defaults.MaxParallelTasks,
			Type:        TypeInt,
		},
		Option{
			Name:        EventTallyGranularity,
			Description: "Bucket event tallies by date or by date and time.",
			Default:     GranularityDate,
			Type:        TypeString,
		},
		Option{
			Name:        MachineReadable,
			Description: "Render output for machines rather than humans.",
			Default:     false,
			Type:        TypeBool,
		},
		Option{
			Name:        CommandTimeout,
			Description: "Timeout for commands run to produce search input.",
			Default:     defaults.CommandTimeout,
			Type:        TypeDuration,
		},
		Option{
			Name:        CommandCacheSize,
			Description: "Number of command outputs kept in the command cache.",
			Default:     defaults.CommandCacheSize,
			Type:        TypeInt,
		},
	)
}

// NewCoreRegistry returns a registry with the core group registered.
func NewCoreRegistry() *Registry {
	r := NewRegistry()
	if err := r.Register(Core()); err != nil {
		// Core is a fixed, collision-free group.
		panic(err)
	}

	return r
}
