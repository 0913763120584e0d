// Package version provides build version information.
package version

import "fmt"

// These variables are set at build time via ldflags:
//
//	-X github.com/ethpandaops/ycheck/internal/version.Version=v1.2.3
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String formats the build information for display.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
