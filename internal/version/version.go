// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

// These variables are populated by the Go linker (LDFLAGS) at build time.
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String is the value printed by snap --version.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, CommitHash, BuildDate)
}
