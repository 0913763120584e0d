// Package defaults provides production default values for ycheck.
package defaults

import "time"

const (
	// ConfigPath is the config file read when no --config flag is given.
	ConfigPath = "ycheck.yaml"
	// WorkDirName is the directory under the OS temp dir holding
	// per-domain working directories.
	WorkDirName = "ycheck"

	// DataRoot is the snapshot root when none is configured.
	DataRoot = "/"
	// MaxParallelTasks bounds concurrent search tasks.
	MaxParallelTasks = 8
	// CommandTimeout bounds a command-backed search input.
	CommandTimeout = 300 * time.Second
	// CommandCacheSize is the number of command outputs kept per run.
	CommandCacheSize = 128

	// BugTracker and BugTrackerURL name the known-bug kind available
	// without configuration.
	BugTracker    = "LaunchpadBug"
	BugTrackerURL = "https://bugs.launchpad.net/bugs/"
)
