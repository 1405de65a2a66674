package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Flags holds command-line values. The *Set fields record whether the user
// passed the flag explicitly.
type Flags struct {
	Theme     string
	LogLevel  string
	LogFormat string
	Debug     bool

	NoColor    bool
	NoColorSet bool
	CI         bool
	CISet      bool
	Verbose    bool
	VerboseSet bool
}

// Resolved is the effective configuration after applying precedence.
type Resolved struct {
	Command     []string
	Verbose     bool
	SnapshotDir string
	SnapshotExt string
	Ignore      []string
	LogLevel    string
	LogFormat   string
	Theme       string
	NoColor     bool
	CI          bool

	// Path is the config file that was loaded, "" for none.
	Path string

	// Resolution metadata (for debugging)
	ThemeSource    string // "cli", "env", "file", "default"
	NoColorSource  string
	CISource       string
	LogLevelSource string
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
	validThemes  = []string{"default", "orca", "mono"}
)

// Resolve loads the config file for root and applies env and flags over it.
func Resolve(root string, flags Flags) (*Resolved, error) {
	file, path, err := Load(root)
	if err != nil {
		return nil, err
	}
	return resolve(file, path, flags)
}

func resolve(file *FileConfig, path string, flags Flags) (*Resolved, error) {
	r := &Resolved{
		Command:        file.Runner.Command,
		Verbose:        file.Runner.Verbose,
		SnapshotDir:    file.Snapshots.Dir,
		SnapshotExt:    file.Snapshots.Ext,
		Ignore:         file.Ignore,
		LogLevel:       file.Log.Level,
		LogFormat:      file.Log.Format,
		Theme:          file.Theme,
		NoColor:        file.NoColor,
		CI:             file.CI,
		Path:           path,
		ThemeSource:    "file",
		NoColorSource:  "file",
		CISource:       "file",
		LogLevelSource: "file",
	}
	if path == "" {
		r.ThemeSource, r.NoColorSource, r.CISource, r.LogLevelSource = "default", "default", "default", "default"
	}

	switch {
	case flags.Theme != "":
		r.Theme, r.ThemeSource = flags.Theme, "cli"
	case os.Getenv("SNAP_THEME") != "":
		r.Theme, r.ThemeSource = os.Getenv("SNAP_THEME"), "env"
	}

	if flags.NoColorSet {
		r.NoColor, r.NoColorSource = flags.NoColor, "cli"
	} else if v := getEnvBool("SNAP_NO_COLOR", "NO_COLOR"); v != nil {
		r.NoColor, r.NoColorSource = *v, "env"
	}

	if flags.CISet {
		r.CI, r.CISource = flags.CI, "cli"
	} else if v := getEnvBool("SNAP_CI", "CI"); v != nil {
		r.CI, r.CISource = *v, "env"
	}

	if flags.VerboseSet {
		r.Verbose = flags.Verbose
	} else if v := getEnvBool("SNAP_VERBOSE"); v != nil {
		r.Verbose = *v
	}

	switch {
	case flags.Debug:
		r.LogLevel, r.LogLevelSource = "debug", "cli"
	case flags.LogLevel != "":
		r.LogLevel, r.LogLevelSource = flags.LogLevel, "cli"
	case os.Getenv("SNAP_DEBUG") != "":
		r.LogLevel, r.LogLevelSource = "debug", "env"
	case os.Getenv("SNAP_LOG_LEVEL") != "":
		r.LogLevel, r.LogLevelSource = os.Getenv("SNAP_LOG_LEVEL"), "env"
	}
	r.LogLevel = strings.ToLower(r.LogLevel)

	switch {
	case flags.LogFormat != "":
		r.LogFormat = flags.LogFormat
	case os.Getenv("SNAP_LOG_FORMAT") != "":
		r.LogFormat = os.Getenv("SNAP_LOG_FORMAT")
	}
	r.LogFormat = strings.ToLower(r.LogFormat)

	// CI mode implies NoColor
	if r.CI {
		r.NoColor = true
	}
	if r.NoColor {
		r.Theme = "mono"
	}

	if err := validateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return r, nil
}

// getEnvBool reads a boolean from environment variables, trying multiple keys.
// Returns nil if none are set, or a pointer to the boolean value.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}

func validateResolved(r *Resolved) error {
	if len(r.Command) == 0 || r.Command[0] == "" {
		return fmt.Errorf("runner.command must name a program")
	}
	if r.SnapshotDir == "" || strings.ContainsAny(r.SnapshotDir, `/\`) {
		return fmt.Errorf("snapshots.dir must be a single directory name, got %q", r.SnapshotDir)
	}
	if !strings.HasPrefix(r.SnapshotExt, ".") || len(r.SnapshotExt) < 2 {
		return fmt.Errorf("snapshots.ext must start with a dot, got %q", r.SnapshotExt)
	}
	if !slices.Contains(validLevels, r.LogLevel) {
		return fmt.Errorf("invalid log level %q (must be: %s)", r.LogLevel, strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validFormats, r.LogFormat) {
		return fmt.Errorf("invalid log format %q (must be: %s)", r.LogFormat, strings.Join(validFormats, ", "))
	}
	if !slices.Contains(validThemes, r.Theme) {
		return fmt.Errorf("invalid theme %q (must be: %s)", r.Theme, strings.Join(validThemes, ", "))
	}
	return nil
}
