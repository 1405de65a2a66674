// Package config loads .snap.yaml and resolves the effective settings.
//
// # Configuration Precedence
//
// Values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (--theme, --no-color, --ci, --log-level, --log-format, --verbose)
//  2. Environment variables (SNAP_THEME, SNAP_NO_COLOR, NO_COLOR, SNAP_CI, CI,
//     SNAP_LOG_LEVEL, SNAP_LOG_FORMAT, SNAP_VERBOSE, SNAP_DEBUG)
//  3. YAML config file (.snap.yaml in the project root, or
//     $XDG_CONFIG_HOME/snap/.snap.yaml)
//  4. Hardcoded defaults
//
// # CI Mode Behavior
//
// CI mode (--ci, CI=true, or ci: true) implies no color. Interactive prompts
// are never used in CI; see the orchestrator's --all mode.
//
// # File Layout
//
//	runner:
//	  command: [go, test, -count=1, -json, -run, "{run}", "{pkg}"]
//	  verbose: false
//	snapshots:
//	  dir: __snapshots__
//	  ext: .snap
//	ignore: [testdata]
//	log:
//	  level: info
//	  format: text
//	theme: default
package config
